package amm

import (
	"fmt"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
)

// PegFromTargetPrice returns the peg multiplier that moves the reserve price
// to targetPrice without touching the reserves, rounded half-up and floored
// at one.
func PegFromTargetPrice(targetPrice, baseReserve, quoteReserve *big.Int) (*big.Int, error) {
	if quoteReserve.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive quote reserve", ErrInvalidInput)
	}
	// Price and peg share a precision, so the peg is target*base/quote
	// rounded half up.
	half, err := num.Div(quoteReserve, num.BN(2))
	if err != nil {
		return nil, err
	}
	peg, err := num.Div(num.Add(num.Mul(targetPrice, baseReserve), half), quoteReserve)
	if err != nil {
		return nil, err
	}
	return num.Max(peg, num.BN(1)), nil
}

// RepegCost prices changing only the peg: the curve's unsettled inventory is
// revalued at the new peg, and the difference in its close-out value is the
// quote cost (positive when the change is against the curve).
func (a *AMM) RepegCost(newPeg *big.Int) (*big.Int, error) {
	if newPeg.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive peg", ErrInvalidInput)
	}
	// dQuote = quote - terminal_quote is the reserve the curve's inventory
	// displaces; its quote value scales linearly with the peg.
	dQuote := num.Sub(a.QuoteAssetReserve, a.TerminalQuoteAssetReserve)
	cost, err := num.MulDiv(
		dQuote,
		num.Sub(newPeg, a.PegMultiplier),
		num.BN(constants.AMMTimesPegToQuotePrecisionRatio),
	)
	if err != nil {
		return nil, err
	}
	return cost, nil
}

// ApplyRepeg commits a peg change, charging its cost to the fee pool.
func (a *AMM) ApplyRepeg(newPeg *big.Int) (*big.Int, error) {
	cost, err := a.RepegCost(newPeg)
	if err != nil {
		return nil, err
	}
	scratch := a.Clone()
	scratch.PegMultiplier = num.Clone(newPeg)
	scratch.TotalFeeMinusDistributions = num.Sub(scratch.TotalFeeMinusDistributions, cost)
	if err := scratch.ValidateInvariant(); err != nil {
		return nil, err
	}
	a.commit(scratch)
	return cost, nil
}

// MovePrice realigns the reserves and sqrt_k to a caller-supplied target.
// Emergency-only: the caller owns the consistency of the triple; the curve
// still refuses targets that break the invariant tolerance.
func (a *AMM) MovePrice(baseReserve, quoteReserve, sqrtK *big.Int) error {
	if baseReserve.Sign() <= 0 || quoteReserve.Sign() <= 0 || sqrtK.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive reserve target", ErrInvalidInput)
	}
	scratch := a.Clone()
	scratch.BaseAssetReserve = num.Clone(baseReserve)
	scratch.QuoteAssetReserve = num.Clone(quoteReserve)
	scratch.SqrtK = num.Clone(sqrtK)
	if err := scratch.UpdateConcentrationBounds(); err != nil {
		return err
	}
	if err := scratch.updateTerminalQuoteReserve(); err != nil {
		return err
	}
	if err := scratch.ValidateInvariant(); err != nil {
		return err
	}
	a.commit(scratch)
	return nil
}

// Recenter re-seeds the curve around a target price at the current depth,
// keeping net exposure priced in: the base reserve absorbs the inventory so
// existing positions close against the same depth. Emergency-only.
func (a *AMM) Recenter(targetPrice *big.Int) error {
	if targetPrice.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive target price", ErrInvalidInput)
	}
	newPeg, err := PegFromTargetPrice(targetPrice, a.SqrtK, a.SqrtK)
	if err != nil {
		return err
	}
	scratch := a.Clone()
	scratch.PegMultiplier = newPeg
	scratch.BaseAssetReserve = num.Sub(scratch.SqrtK, scratch.BaseAssetAmountWithAmm)
	if scratch.BaseAssetReserve.Sign() <= 0 {
		return fmt.Errorf("%w: inventory exceeds recentered depth", ErrInvariantViolation)
	}
	quote, err := num.Div(num.Mul(scratch.SqrtK, scratch.SqrtK), scratch.BaseAssetReserve)
	if err != nil {
		return err
	}
	scratch.QuoteAssetReserve = quote
	if err := scratch.UpdateConcentrationBounds(); err != nil {
		return err
	}
	if err := scratch.updateTerminalQuoteReserve(); err != nil {
		return err
	}
	if err := scratch.ValidateInvariant(); err != nil {
		return err
	}
	a.commit(scratch)
	return nil
}

// FormulaicRepegBudget is the fee surplus available for formulaic repegs:
// retained fees above half of all exchange fees collected.
func (a *AMM) FormulaicRepegBudget() *big.Int {
	lowerBound, _ := num.Div(a.TotalExchangeFee, num.BN(2))
	budget := num.Sub(a.TotalFeeMinusDistributions, lowerBound)
	return num.Max(budget, num.BN(0))
}
