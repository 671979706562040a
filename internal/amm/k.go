package amm

import (
	"fmt"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
)

// UpdateKResult is a proposed depth change, produced by GetUpdateKResult and
// applied atomically by UpdateK.
type UpdateKResult struct {
	SqrtK             *big.Int
	BaseAssetReserve  *big.Int
	QuoteAssetReserve *big.Int
}

// GetUpdateKResult scales the reserves to a new sqrt_k. When bounded, a
// depth decrease past MaxKDecreaseBps of sqrt_k is rejected, as is any
// decrease that would leave net exposure above one third of the new depth.
func (a *AMM) GetUpdateKResult(newSqrtK *big.Int, bounded bool) (*UpdateKResult, error) {
	if newSqrtK.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive sqrt_k target", ErrInvalidInput)
	}
	decreasing := newSqrtK.Cmp(a.SqrtK) < 0
	if decreasing {
		if bounded {
			drop := num.Sub(a.SqrtK, newSqrtK)
			maxDrop, err := num.MulDiv(a.SqrtK, num.BN(constants.MaxKDecreaseBps), num.BN(10_000))
			if err != nil {
				return nil, err
			}
			if drop.Cmp(maxDrop) > 0 {
				return nil, fmt.Errorf("%w: sqrt_k decrease exceeds %d bps", ErrInvariantViolation, constants.MaxKDecreaseBps)
			}
		}
		third, err := num.Div(newSqrtK, num.BN(3))
		if err != nil {
			return nil, err
		}
		if num.Abs(a.BaseAssetAmountWithAmm).Cmp(third) > 0 {
			return nil, fmt.Errorf("%w: net exposure exceeds a third of new depth", ErrInvariantViolation)
		}
	}

	newBase, err := num.MulDiv(a.BaseAssetReserve, newSqrtK, a.SqrtK)
	if err != nil {
		return nil, err
	}
	if newBase.Sign() <= 0 {
		return nil, fmt.Errorf("%w: scaled base reserve degenerate", ErrInvariantViolation)
	}
	newQuote, err := num.Div(num.Mul(newSqrtK, newSqrtK), newBase)
	if err != nil {
		return nil, err
	}
	return &UpdateKResult{
		SqrtK:             num.Clone(newSqrtK),
		BaseAssetReserve:  newBase,
		QuoteAssetReserve: newQuote,
	}, nil
}

// AdjustKCost prices a proposed depth change: the signed quote cost of the
// curve's net position being revalued at the new reserves. Deepening with
// inventory on either side costs (> 0); shrinking recoups (< 0).
func (a *AMM) AdjustKCost(update *UpdateKResult) (*big.Int, error) {
	valueBefore, err := a.BaseAssetValue(a.BaseAssetAmountWithAmm)
	if err != nil {
		return nil, err
	}
	scratch := a.Clone()
	scratch.SqrtK = num.Clone(update.SqrtK)
	scratch.BaseAssetReserve = num.Clone(update.BaseAssetReserve)
	scratch.QuoteAssetReserve = num.Clone(update.QuoteAssetReserve)
	valueAfter, err := scratch.BaseAssetValue(a.BaseAssetAmountWithAmm)
	if err != nil {
		return nil, err
	}
	if a.BaseAssetAmountWithAmm.Sign() > 0 {
		// Users net long: the curve pays quote buying the base back, and
		// deeper reserves raise that payout.
		return num.Sub(valueAfter, valueBefore), nil
	}
	// Users net short: the curve recoups quote on close; less recouped at
	// the new depth is a positive cost.
	return num.Sub(valueBefore, valueAfter), nil
}

// UpdateK applies a proposed depth change atomically, charging its cost to
// the fee pool and revalidating the whole curve before committing.
func (a *AMM) UpdateK(update *UpdateKResult) (*big.Int, error) {
	cost, err := a.AdjustKCost(update)
	if err != nil {
		return nil, err
	}
	scratch := a.Clone()
	scratch.SqrtK = num.Clone(update.SqrtK)
	scratch.BaseAssetReserve = num.Clone(update.BaseAssetReserve)
	scratch.QuoteAssetReserve = num.Clone(update.QuoteAssetReserve)
	if err := scratch.UpdateConcentrationBounds(); err != nil {
		return nil, err
	}
	if err := scratch.updateTerminalQuoteReserve(); err != nil {
		return nil, err
	}
	scratch.TotalFeeMinusDistributions = num.Sub(scratch.TotalFeeMinusDistributions, cost)
	if err := scratch.ValidateInvariant(); err != nil {
		return nil, err
	}
	a.commit(scratch)
	return cost, nil
}

// CalculateBudgetedKScale solves the k scale p = numerator/denominator such
// that the quote cost of moving to depth p*sqrt_k stays within |budget|.
// Positive budget spends to deepen, negative demands recouping by shrinking.
// The result is clamped to [lowerBoundPct, upperBoundPct] (PercentagePrecision).
//
// Derivation: cost(p) = q*y*d^2*(p-1) / ((x+d)*(p*x+d) * scale) with x, y the
// reserves, d the net exposure, q the peg. Solving cost(p) = budget gives
// p = (q*y*d^2 - c*d*(x+d)) / (q*y*d^2 + c*x*(x+d)), with c = -budget.
// When the budget out-spends any finite deepening (denominator <= 0) the
// solve clamps to the upper bound; the mirror degenerate case on a recoup
// (numerator <= 0) is fatal. The asymmetry is intentional and preserved.
func (a *AMM) CalculateBudgetedKScale(budget *big.Int, upperBoundPct, lowerBoundPct int64) (*big.Int, *big.Int, error) {
	if upperBoundPct < constants.PercentagePrecision || lowerBoundPct > constants.PercentagePrecision || lowerBoundPct <= 0 {
		return nil, nil, fmt.Errorf("%w: malformed k scale bounds", ErrInvalidInput)
	}
	if budget.Sign() == 0 || a.BaseAssetAmountWithAmm.Sign() == 0 {
		return num.BN(constants.PercentagePrecision), num.BN(constants.PercentagePrecision), nil
	}

	x, err := num.WideFromBig(a.BaseAssetReserve)
	if err != nil {
		return nil, nil, err
	}
	y, err := num.WideFromBig(a.QuoteAssetReserve)
	if err != nil {
		return nil, nil, err
	}
	q, err := num.WideFromBig(a.PegMultiplier)
	if err != nil {
		return nil, nil, err
	}
	d, err := num.WideFromBig(a.BaseAssetAmountWithAmm)
	if err != nil {
		return nil, nil, err
	}
	// c = -budget, scaled up to reserve-product units.
	c, err := num.WideFromBig(num.Mul(num.Neg(budget), num.BN(constants.AMMTimesPegToQuotePrecisionRatio)))
	if err != nil {
		return nil, nil, err
	}

	xd, err := num.WideAdd(x, d)
	if err != nil {
		return nil, nil, err
	}
	qyd2, err := wideProduct(q, y, d, d)
	if err != nil {
		return nil, nil, err
	}
	cdxd, err := wideProduct(c, d, xd)
	if err != nil {
		return nil, nil, err
	}
	cxxd, err := wideProduct(c, x, xd)
	if err != nil {
		return nil, nil, err
	}

	numerator, err := num.WideSub(qyd2, cdxd)
	if err != nil {
		return nil, nil, err
	}
	denominator, err := num.WideAdd(qyd2, cxxd)
	if err != nil {
		return nil, nil, err
	}

	if c.Sign() < 0 && denominator.Sign() <= 0 {
		// Spending more than any finite deepening costs: take the bound.
		return num.BN(upperBoundPct), num.BN(constants.PercentagePrecision), nil
	}
	if numerator.Sign() <= 0 || denominator.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: degenerate budgeted k solve", ErrInvalidKScale)
	}

	scaledNumer, err := num.WideMul(numerator, num.WideFromInt64(constants.PercentagePrecision))
	if err != nil {
		return nil, nil, err
	}
	pctWide, err := num.WideDiv(scaledNumer, denominator)
	if err != nil {
		return nil, nil, err
	}
	curPct := pctWide.Big()
	if curPct.Cmp(num.BN(upperBoundPct)) > 0 {
		return num.BN(upperBoundPct), num.BN(constants.PercentagePrecision), nil
	}
	if curPct.Cmp(num.BN(lowerBoundPct)) < 0 {
		return num.BN(lowerBoundPct), num.BN(constants.PercentagePrecision), nil
	}
	return numerator.Big(), denominator.Big(), nil
}

// ApplyBudgetedK runs the solve and applies the resulting depth change,
// returning the realized cost and the new sqrt_k.
func (a *AMM) ApplyBudgetedK(budget *big.Int, upperBoundPct, lowerBoundPct int64) (*big.Int, *big.Int, error) {
	numer, denom, err := a.CalculateBudgetedKScale(budget, upperBoundPct, lowerBoundPct)
	if err != nil {
		return nil, nil, err
	}
	var newSqrtK *big.Int
	if numer.Cmp(denom) < 0 {
		// Shrinking: round toward the old depth so the realized recoup
		// stays within the budget.
		newSqrtK, err = num.CeilDiv(num.Mul(a.SqrtK, numer), denom)
	} else {
		newSqrtK, err = num.Div(num.Mul(a.SqrtK, numer), denom)
	}
	if err != nil {
		return nil, nil, err
	}
	update, err := a.GetUpdateKResult(newSqrtK, true)
	if err != nil {
		return nil, nil, err
	}
	cost, err := a.UpdateK(update)
	if err != nil {
		return nil, nil, err
	}
	return cost, num.Clone(a.SqrtK), nil
}

// wideProduct multiplies wide values left to right, failing on overflow.
func wideProduct(vs ...num.Wide) (num.Wide, error) {
	r := vs[0]
	var err error
	for _, v := range vs[1:] {
		r, err = num.WideMul(r, v)
		if err != nil {
			return num.Wide{}, err
		}
	}
	return r, nil
}
