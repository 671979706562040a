package ingestion

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/observability"
	"github.com/drift-labs/protocol-v2-sub006/internal/oracle"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
	"github.com/drift-labs/protocol-v2-sub006/internal/testutil"
)

// Prometheus collectors register globally, so the test binary builds one set.
var applierMetrics = observability.NewMetrics()

func newTestApplier(t *testing.T) (*Applier, *state.MarketStore, *state.UserStore) {
	t.Helper()
	markets := testutil.NewTestMarketStore(t)
	users := state.NewUserStore()
	ap := NewApplier(markets, users, oracle.NewCache(), applierMetrics, zerolog.Nop(), nil, nil)
	return ap, markets, users
}

func TestApplyOraclePriceMovesTwap(t *testing.T) {
	ap, markets, _ := newTestApplier(t)

	// A +10% print over a full five-minute window must carry the short TWAP
	// all the way to the print; the per-update clamp only guards against
	// order-of-magnitude outliers.
	err := ap.Apply(&OraclePriceUpdate{
		Kind:        MarketKindPerp,
		MarketIndex: 0,
		Price:       num.BN(110*constants.PricePrecision),
		Confidence:  num.BN(11_000),
		Delay:       1,
		HasEnough:   true,
		Timestamp:   time.Unix(constants.FiveMinuteSeconds, 0),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	market, _ := markets.PerpMarket(0)
	a := market.Amm
	if want := num.BN(110*constants.PricePrecision); a.LastOraclePriceTwap5Min.Cmp(want) != 0 {
		t.Errorf("oracle twap 5min = %s, want %s", a.LastOraclePriceTwap5Min, want)
	}
	// Funding-period TWAP decays over its hour window: (100e6*3300 + 110e6*300) / 3600.
	if want := num.BN(100_833_333); a.LastOraclePriceTwap.Cmp(want) != 0 {
		t.Errorf("oracle twap = %s, want %s", a.LastOraclePriceTwap, want)
	}
}

func TestApplyPerpFillRejectsTimestampRegression(t *testing.T) {
	ap, markets, users := newTestApplier(t)

	market, _ := markets.PerpMarket(0)
	market.Amm.LastMarkPriceTwapTs = 1_000

	userID := uuid.New()
	err := ap.Apply(&PerpFill{
		FillID:      uuid.New(),
		UserID:      userID,
		MarketIndex: 0,
		Direction:   amm.Long,
		BaseAmount:  num.BN(constants.BasePrecision),
		Timestamp:   time.Unix(500, 0),
	})
	if !errors.Is(err, amm.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}

	// A rejected fill leaves no trace: the curve never swapped and the user
	// was never created, so a redelivery applies exactly once.
	if want := num.BN(100*constants.AMMReservePrecision); market.Amm.BaseAssetReserve.Cmp(want) != 0 {
		t.Errorf("base reserve mutated on rejected fill: %s", market.Amm.BaseAssetReserve)
	}
	if market.Amm.BaseAssetAmountWithAmm.Sign() != 0 {
		t.Errorf("net exposure mutated on rejected fill: %s", market.Amm.BaseAssetAmountWithAmm)
	}
	if _, ok := users.User(userID); ok {
		t.Error("user created on rejected fill")
	}
}

func TestApplyPerpFillCommitsPositionAndTwap(t *testing.T) {
	ap, markets, users := newTestApplier(t)

	userID := uuid.New()
	err := ap.Apply(&PerpFill{
		FillID:      uuid.New(),
		UserID:      userID,
		MarketIndex: 0,
		Direction:   amm.Long,
		BaseAmount:  num.BN(constants.BasePrecision),
		Timestamp:   time.Unix(60, 0),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	user, ok := users.User(userID)
	if !ok {
		t.Fatal("user not created")
	}
	pos, ok := user.PerpPosition(0)
	if !ok {
		t.Fatal("position not created")
	}
	if want := num.BN(constants.BasePrecision); pos.BaseAssetAmount.Cmp(want) != 0 {
		t.Errorf("base = %s, want %s", pos.BaseAssetAmount, want)
	}
	if want := num.BN(-101_010_102); pos.QuoteEntryAmount.Cmp(want) != 0 {
		t.Errorf("quote entry = %s, want %s", pos.QuoteEntryAmount, want)
	}

	market, _ := markets.PerpMarket(0)
	if market.Amm.LastMarkPriceTwapTs != 60 {
		t.Errorf("mark twap ts = %d, want 60", market.Amm.LastMarkPriceTwapTs)
	}
}
