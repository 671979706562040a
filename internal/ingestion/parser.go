package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed Event. The shell validates and parses before anything touches the
// stores.
func ParseRawEvent(raw RawEvent) (Event, error) {
	switch raw.EventType {
	case "OraclePriceUpdate":
		return parseOraclePriceUpdate(raw.Data)
	case "PerpFill":
		return parsePerpFill(raw.Data)
	case "FundingSettle":
		return parseFundingSettle(raw.Data)
	case "SpotBalanceUpdate":
		return parseSpotBalanceUpdate(raw.Data)
	case "CurveCommand":
		return parseCurveCommand(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", raw.EventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type oraclePriceUpdateJSON struct {
	MarketKind  string `json:"market_kind"` // "perp" or "spot"
	MarketIndex uint16 `json:"market_index"`
	Price       int64  `json:"price"`
	Confidence  int64  `json:"confidence"`
	Delay       int64  `json:"delay"`
	HasEnough   bool   `json:"has_enough_data_points"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOraclePriceUpdate(data []byte) (*OraclePriceUpdate, error) {
	var j oraclePriceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OraclePriceUpdate: %w", err)
	}

	kind := MarketKindPerp
	if j.MarketKind == string(MarketKindSpot) {
		kind = MarketKindSpot
	} else if j.MarketKind != string(MarketKindPerp) {
		return nil, fmt.Errorf("parse market_kind: unknown %q", j.MarketKind)
	}
	if j.Confidence < 0 {
		return nil, fmt.Errorf("parse confidence: negative")
	}

	return &OraclePriceUpdate{
		Kind:        kind,
		MarketIndex: j.MarketIndex,
		Price:       num.BN(j.Price),
		Confidence:  num.BN(j.Confidence),
		Delay:       j.Delay,
		HasEnough:   j.HasEnough,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type perpFillJSON struct {
	FillID      string `json:"fill_id"`
	UserID      string `json:"user_id"`
	MarketIndex uint16 `json:"market_index"`
	Direction   string `json:"direction"` // "long" or "short"
	BaseAmount  int64  `json:"base_amount"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePerpFill(data []byte) (*PerpFill, error) {
	var j perpFillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PerpFill: %w", err)
	}

	fillID, err := uuid.Parse(j.FillID)
	if err != nil {
		return nil, fmt.Errorf("parse fill_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	if j.BaseAmount <= 0 {
		return nil, fmt.Errorf("parse base_amount: must be positive")
	}

	direction := amm.Long
	switch j.Direction {
	case "long":
	case "short":
		direction = amm.Short
	default:
		return nil, fmt.Errorf("parse direction: unknown %q", j.Direction)
	}

	return &PerpFill{
		FillID:      fillID,
		UserID:      userID,
		MarketIndex: j.MarketIndex,
		Direction:   direction,
		BaseAmount:  num.BN(j.BaseAmount),
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type fundingSettleJSON struct {
	MarketIndex                uint16 `json:"market_index"`
	CumulativeFundingRateLong  int64  `json:"cumulative_funding_rate_long"`
	CumulativeFundingRateShort int64  `json:"cumulative_funding_rate_short"`
	TimestampUs                int64  `json:"timestamp_us"`
}

func parseFundingSettle(data []byte) (*FundingSettle, error) {
	var j fundingSettleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FundingSettle: %w", err)
	}

	return &FundingSettle{
		MarketIndex:                j.MarketIndex,
		CumulativeFundingRateLong:  num.BN(j.CumulativeFundingRateLong),
		CumulativeFundingRateShort: num.BN(j.CumulativeFundingRateShort),
		Timestamp:                  time.UnixMicro(j.TimestampUs),
	}, nil
}

type spotBalanceUpdateJSON struct {
	UserID        string `json:"user_id"`
	MarketIndex   uint16 `json:"market_index"`
	ScaledBalance int64  `json:"scaled_balance"`
	BalanceType   string `json:"balance_type"` // "deposit" or "borrow"
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseSpotBalanceUpdate(data []byte) (*SpotBalanceUpdate, error) {
	var j spotBalanceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SpotBalanceUpdate: %w", err)
	}

	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	if j.ScaledBalance < 0 {
		return nil, fmt.Errorf("parse scaled_balance: negative")
	}

	balanceType := state.BalanceTypeDeposit
	switch j.BalanceType {
	case "deposit":
	case "borrow":
		balanceType = state.BalanceTypeBorrow
	default:
		return nil, fmt.Errorf("parse balance_type: unknown %q", j.BalanceType)
	}

	return &SpotBalanceUpdate{
		UserID:        userID,
		MarketIndex:   j.MarketIndex,
		ScaledBalance: num.BN(j.ScaledBalance),
		BalanceType:   balanceType,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type curveCommandJSON struct {
	MarketIndex   uint16 `json:"market_index"`
	Kind          string `json:"kind"` // "repeg", "update_k", "budgeted_k"
	NewPeg        int64  `json:"new_peg,omitempty"`
	NewSqrtK      int64  `json:"new_sqrt_k,omitempty"`
	Budget        int64  `json:"budget,omitempty"`
	UpperBoundPct int64  `json:"upper_bound_pct,omitempty"`
	LowerBoundPct int64  `json:"lower_bound_pct,omitempty"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseCurveCommand(data []byte) (*CurveCommand, error) {
	var j curveCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CurveCommand: %w", err)
	}

	cmd := &CurveCommand{
		MarketIndex:   j.MarketIndex,
		Kind:          CurveCommandKind(j.Kind),
		Budget:        num.BN(j.Budget),
		UpperBoundPct: j.UpperBoundPct,
		LowerBoundPct: j.LowerBoundPct,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}

	switch cmd.Kind {
	case CurveCommandRepeg:
		if j.NewPeg <= 0 {
			return nil, fmt.Errorf("parse new_peg: must be positive")
		}
		cmd.NewPeg = num.BN(j.NewPeg)
	case CurveCommandUpdateK:
		if j.NewSqrtK <= 0 {
			return nil, fmt.Errorf("parse new_sqrt_k: must be positive")
		}
		cmd.NewSqrtK = num.BN(j.NewSqrtK)
	case CurveCommandBudgetedK:
		if j.UpperBoundPct <= 0 || j.LowerBoundPct <= 0 {
			return nil, fmt.Errorf("parse bounds: must be positive")
		}
	default:
		return nil, fmt.Errorf("parse kind: unknown %q", j.Kind)
	}

	return cmd, nil
}
