// Package margin computes signed total collateral and unsigned margin
// requirement for one user over an in-memory market snapshot. It is a pure
// computation layer: callers pass all oracle data in and persist nothing
// through it.
package margin

import (
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/num"
)

// Mode selects which margin ratio and weight tier a calculation uses.
type Mode int

const (
	ModeInitial Mode = iota
	ModeMaintenance
	// ModeFill resolves to Initial when the order being filled increases
	// risk, Maintenance otherwise.
	ModeFill
)

func (m Mode) String() string {
	switch m {
	case ModeInitial:
		return "Initial"
	case ModeMaintenance:
		return "Maintenance"
	case ModeFill:
		return "Fill"
	default:
		return "Unknown"
	}
}

// Context configures one margin calculation.
type Context struct {
	Mode Mode
	// RiskIncreasing only matters under ModeFill.
	RiskIncreasing bool
}

// initial reports whether the calculation applies initial-tier ratios and
// weights.
func (c Context) initial() bool {
	switch c.Mode {
	case ModeInitial:
		return true
	case ModeFill:
		return c.RiskIncreasing
	default:
		return false
	}
}

// Calculation is the result of valuing one user's full account.
type Calculation struct {
	Context Context

	// TotalCollateral is signed, quote precision. MarginRequirement is
	// non-negative, quote precision.
	TotalCollateral   *big.Int
	MarginRequirement *big.Int

	TotalSpotAssetValue     *big.Int
	TotalSpotLiabilityValue *big.Int
	TotalPerpLiabilityValue *big.Int
	TotalPerpPnL            *big.Int

	NumSpotLiabilities int
	NumPerpLiabilities int

	// WithIsolatedLiability is set when any held liability sits in an
	// isolated risk tier.
	WithIsolatedLiability bool

	// AllOraclesValid clears when any market the user has exposure on fails
	// its oracle guards. The calculation still completes.
	AllOraclesValid bool
}

func newCalculation(ctx Context) *Calculation {
	return &Calculation{
		Context:                 ctx,
		TotalCollateral:         num.BN(0),
		MarginRequirement:       num.BN(0),
		TotalSpotAssetValue:     num.BN(0),
		TotalSpotLiabilityValue: num.BN(0),
		TotalPerpLiabilityValue: num.BN(0),
		TotalPerpPnL:            num.BN(0),
		AllOraclesValid:         true,
	}
}

// NumLiabilities counts spot borrows and perp exposures together.
func (c *Calculation) NumLiabilities() int {
	return c.NumSpotLiabilities + c.NumPerpLiabilities
}

// MeetsRequirement reports whether collateral covers the requirement.
func (c *Calculation) MeetsRequirement() bool {
	return c.TotalCollateral.Cmp(c.MarginRequirement) >= 0
}

// FreeCollateral is collateral above the requirement, floored at zero.
func (c *Calculation) FreeCollateral() *big.Int {
	free := num.Sub(c.TotalCollateral, c.MarginRequirement)
	if free.Sign() < 0 {
		return num.BN(0)
	}
	return free
}

// CanExerciseRisk gates risk-increasing actions and withdrawals: the account
// must meet the requirement, every oracle backing a liability must be valid,
// and an isolated-tier liability must be the only liability held.
func (c *Calculation) CanExerciseRisk() bool {
	if !c.MeetsRequirement() {
		return false
	}
	if !c.AllOraclesValid && c.NumLiabilities() > 0 {
		return false
	}
	if c.WithIsolatedLiability && c.NumLiabilities() > 1 {
		return false
	}
	return true
}
