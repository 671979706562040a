package ingestion_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/ingestion"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
)

func parse(t *testing.T, eventType, payload string) (ingestion.Event, error) {
	t.Helper()
	return ingestion.ParseRawEvent(ingestion.RawEvent{
		EventType: eventType,
		Data:      []byte(payload),
	})
}

func TestParseOraclePriceUpdate(t *testing.T) {
	ev, err := parse(t, "OraclePriceUpdate", `{
		"market_kind": "perp",
		"market_index": 3,
		"price": 100000000,
		"confidence": 10000,
		"delay": 2,
		"has_enough_data_points": true,
		"timestamp_us": 1700000000000000
	}`)
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	upd, ok := ev.(*ingestion.OraclePriceUpdate)
	if !ok {
		t.Fatalf("event type = %T", ev)
	}
	if upd.Kind != ingestion.MarketKindPerp || upd.MarketIndex != 3 {
		t.Errorf("kind/index = %s/%d", upd.Kind, upd.MarketIndex)
	}
	if upd.Price.Cmp(num.BN(100_000_000)) != 0 || upd.Confidence.Cmp(num.BN(10_000)) != 0 {
		t.Errorf("price/confidence = %s/%s", upd.Price, upd.Confidence)
	}
	if !upd.HasEnough || upd.Delay != 2 {
		t.Errorf("has_enough/delay = %v/%d", upd.HasEnough, upd.Delay)
	}
	if upd.Timestamp.UnixMicro() != 1_700_000_000_000_000 {
		t.Errorf("timestamp = %d us", upd.Timestamp.UnixMicro())
	}
}

func TestParseOraclePriceUpdateRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"unknown kind", `{"market_kind": "futures", "price": 1}`, "market_kind"},
		{"negative confidence", `{"market_kind": "spot", "price": 1, "confidence": -5}`, "confidence"},
		{"malformed json", `{`, "OraclePriceUpdate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, "OraclePriceUpdate", tt.payload)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestParsePerpFill(t *testing.T) {
	fillID := uuid.New()
	userID := uuid.New()
	ev, err := parse(t, "PerpFill", `{
		"fill_id": "`+fillID.String()+`",
		"user_id": "`+userID.String()+`",
		"market_index": 0,
		"direction": "short",
		"base_amount": 1000000000,
		"timestamp_us": 1700000000000000
	}`)
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	fill, ok := ev.(*ingestion.PerpFill)
	if !ok {
		t.Fatalf("event type = %T", ev)
	}
	if fill.FillID != fillID || fill.UserID != userID {
		t.Error("ids did not round-trip")
	}
	if fill.Direction != amm.Short {
		t.Errorf("direction = %v, want short", fill.Direction)
	}
	if fill.BaseAmount.Cmp(num.BN(1_000_000_000)) != 0 {
		t.Errorf("base amount = %s", fill.BaseAmount)
	}
}

func TestParsePerpFillRejects(t *testing.T) {
	valid := func(mutations string) string {
		return `{"fill_id": "` + uuid.New().String() + `", "user_id": "` + uuid.New().String() + `",
			"market_index": 0, "direction": "long", "base_amount": 100` + mutations + `}`
	}

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"bad fill id", `{"fill_id": "nope", "user_id": "` + uuid.New().String() + `", "direction": "long", "base_amount": 1}`, "fill_id"},
		{"bad user id", `{"fill_id": "` + uuid.New().String() + `", "user_id": "nope", "direction": "long", "base_amount": 1}`, "user_id"},
		{"zero size", valid(`, "base_amount": 0`), "base_amount"},
		{"unknown direction", valid(`, "direction": "sideways"`), "direction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, "PerpFill", tt.payload)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseFundingSettle(t *testing.T) {
	ev, err := parse(t, "FundingSettle", `{
		"market_index": 1,
		"cumulative_funding_rate_long": 5000000000,
		"cumulative_funding_rate_short": 4900000000,
		"timestamp_us": 1700000000000000
	}`)
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	settle, ok := ev.(*ingestion.FundingSettle)
	if !ok {
		t.Fatalf("event type = %T", ev)
	}
	if settle.MarketIndex != 1 {
		t.Errorf("market index = %d", settle.MarketIndex)
	}
	if settle.CumulativeFundingRateLong.Cmp(num.BN(5_000_000_000)) != 0 ||
		settle.CumulativeFundingRateShort.Cmp(num.BN(4_900_000_000)) != 0 {
		t.Errorf("rates = %s/%s", settle.CumulativeFundingRateLong, settle.CumulativeFundingRateShort)
	}
}

func TestParseSpotBalanceUpdate(t *testing.T) {
	userID := uuid.New()
	ev, err := parse(t, "SpotBalanceUpdate", `{
		"user_id": "`+userID.String()+`",
		"market_index": 1,
		"scaled_balance": 5000000000,
		"balance_type": "borrow",
		"timestamp_us": 1700000000000000
	}`)
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	upd, ok := ev.(*ingestion.SpotBalanceUpdate)
	if !ok {
		t.Fatalf("event type = %T", ev)
	}
	if upd.BalanceType != state.BalanceTypeBorrow {
		t.Errorf("balance type = %v, want borrow", upd.BalanceType)
	}
	if upd.ScaledBalance.Cmp(num.BN(5_000_000_000)) != 0 {
		t.Errorf("scaled balance = %s", upd.ScaledBalance)
	}

	if _, err := parse(t, "SpotBalanceUpdate", `{"user_id": "`+userID.String()+`", "scaled_balance": -1, "balance_type": "deposit"}`); err == nil {
		t.Error("negative scaled balance accepted")
	}
	if _, err := parse(t, "SpotBalanceUpdate", `{"user_id": "`+userID.String()+`", "scaled_balance": 1, "balance_type": "loan"}`); err == nil {
		t.Error("unknown balance type accepted")
	}
}

func TestParseCurveCommand(t *testing.T) {
	ev, err := parse(t, "CurveCommand", `{
		"market_index": 0,
		"kind": "repeg",
		"new_peg": 101000000,
		"timestamp_us": 1700000000000000
	}`)
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	cmd, ok := ev.(*ingestion.CurveCommand)
	if !ok {
		t.Fatalf("event type = %T", ev)
	}
	if cmd.Kind != ingestion.CurveCommandRepeg || cmd.NewPeg.Cmp(num.BN(101_000_000)) != 0 {
		t.Errorf("kind/new_peg = %s/%s", cmd.Kind, cmd.NewPeg)
	}

	ev, err = parse(t, "CurveCommand", `{"market_index": 0, "kind": "budgeted_k",
		"budget": -5000000, "upper_bound_pct": 1020000, "lower_bound_pct": 980000}`)
	if err != nil {
		t.Fatalf("ParseRawEvent budgeted_k: %v", err)
	}
	cmd = ev.(*ingestion.CurveCommand)
	if cmd.Budget.Cmp(num.BN(-5_000_000)) != 0 || cmd.UpperBoundPct != 1_020_000 {
		t.Errorf("budget/bounds = %s/%d", cmd.Budget, cmd.UpperBoundPct)
	}
}

func TestParseCurveCommandRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"unknown kind", `{"kind": "recenter"}`},
		{"repeg without peg", `{"kind": "repeg"}`},
		{"update_k without sqrt_k", `{"kind": "update_k"}`},
		{"budgeted_k without bounds", `{"kind": "budgeted_k", "budget": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parse(t, "CurveCommand", tt.payload); err == nil {
				t.Error("malformed command accepted")
			}
		})
	}
}

func TestParseUnknownEventType(t *testing.T) {
	if _, err := parse(t, "Liquidation", `{}`); err == nil {
		t.Error("unknown event type accepted")
	}
}
