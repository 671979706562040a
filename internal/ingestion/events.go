package ingestion

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
)

// Event is a typed, validated input the applier feeds into the stores and
// curve engines.
type Event interface {
	EventType() string
}

// MarketKind distinguishes perp and spot oracle updates.
type MarketKind string

const (
	MarketKindPerp MarketKind = "perp"
	MarketKindSpot MarketKind = "spot"
)

// OraclePriceUpdate carries one consumed oracle record for one market.
type OraclePriceUpdate struct {
	Kind        MarketKind
	MarketIndex uint16
	Price       *big.Int
	Confidence  *big.Int
	Delay       int64
	HasEnough   bool
	Timestamp   time.Time
}

func (*OraclePriceUpdate) EventType() string { return "OraclePriceUpdate" }

// PerpFill is one taker fill to price against the curve.
type PerpFill struct {
	FillID      uuid.UUID
	UserID      uuid.UUID
	MarketIndex uint16
	Direction   amm.PositionDirection
	BaseAmount  *big.Int
	Timestamp   time.Time
}

func (*PerpFill) EventType() string { return "PerpFill" }

// FundingSettle advances a market's cumulative funding rates and settles
// every open position's funding cursor.
type FundingSettle struct {
	MarketIndex                uint16
	CumulativeFundingRateLong  *big.Int
	CumulativeFundingRateShort *big.Int
	Timestamp                  time.Time
}

func (*FundingSettle) EventType() string { return "FundingSettle" }

// SpotBalanceUpdate replaces a user's spot balance for one market.
type SpotBalanceUpdate struct {
	UserID        uuid.UUID
	MarketIndex   uint16
	ScaledBalance *big.Int
	BalanceType   state.BalanceType
	Timestamp     time.Time
}

func (*SpotBalanceUpdate) EventType() string { return "SpotBalanceUpdate" }

// CurveCommandKind selects the admin curve operation.
type CurveCommandKind string

const (
	CurveCommandRepeg     CurveCommandKind = "repeg"
	CurveCommandUpdateK   CurveCommandKind = "update_k"
	CurveCommandBudgetedK CurveCommandKind = "budgeted_k"
)

// CurveCommand is an admin-injected curve mutation.
type CurveCommand struct {
	MarketIndex uint16
	Kind        CurveCommandKind

	// NewPeg for repeg, PegPrecision.
	NewPeg *big.Int
	// NewSqrtK for update_k, AMMReservePrecision.
	NewSqrtK *big.Int
	// Budget and bounds for budgeted_k. Quote precision; bounds are
	// PercentagePrecision scale factors.
	Budget        *big.Int
	UpperBoundPct int64
	LowerBoundPct int64

	Timestamp time.Time
}

func (*CurveCommand) EventType() string { return "CurveCommand" }
