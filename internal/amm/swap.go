package amm

import (
	"fmt"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
)

// SwapDirection says whether the swap adds to or removes from the input
// reserve.
type SwapDirection int

const (
	SwapAdd SwapDirection = iota
	SwapRemove
)

// PositionDirection is the taker's side for a fill.
type PositionDirection int

const (
	Long PositionDirection = iota
	Short
)

func (d PositionDirection) String() string {
	if d == Long {
		return "long"
	}
	return "short"
}

// AssetType selects which reserve a swap amount denominates.
type AssetType int

const (
	AssetBase AssetType = iota
	AssetQuote
)

// SwapDirectionFor maps a taker direction to the swap direction on the given
// input asset: a long removes base from the curve, a short removes quote.
func SwapDirectionFor(input AssetType, direction PositionDirection) SwapDirection {
	if direction == Long && input == AssetBase {
		return SwapRemove
	}
	if direction == Short && input == AssetQuote {
		return SwapRemove
	}
	return SwapAdd
}

// CalculateSwapOutput moves amount through the constant-product curve,
// preserving the invariant. Remove fails when amount exceeds the input
// reserve. Returns (newInputReserve, newOutputReserve).
func CalculateSwapOutput(inputReserve, amount *big.Int, direction SwapDirection, invariant *big.Int) (*big.Int, *big.Int, error) {
	if amount.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: negative swap amount", ErrInvalidInput)
	}
	var newInput *big.Int
	if direction == SwapAdd {
		newInput = num.Add(inputReserve, amount)
	} else {
		if amount.Cmp(inputReserve) > 0 {
			return nil, nil, fmt.Errorf("%w: swap amount %s exceeds reserve %s", ErrInvalidInput, amount, inputReserve)
		}
		newInput = num.Sub(inputReserve, amount)
	}
	newOutput, err := num.Div(invariant, newInput)
	if err != nil {
		return nil, nil, err
	}
	return newInput, newOutput, nil
}

// ReservesAfterSwap runs a swap against the given reserve pair and returns
// the resulting (base, quote) reserves. Quote-denominated amounts are first
// converted to reserve units through the peg.
func ReservesAfterSwap(
	baseReserve, quoteReserve, sqrtK, peg *big.Int,
	input AssetType, amount *big.Int, direction SwapDirection,
) (*big.Int, *big.Int, error) {
	invariant := num.Mul(sqrtK, sqrtK)
	if input == AssetQuote {
		reserveAmount, err := num.MulDiv(amount, num.BN(constants.AMMTimesPegToQuotePrecisionRatio), peg)
		if err != nil {
			return nil, nil, err
		}
		newQuote, newBase, err := CalculateSwapOutput(quoteReserve, reserveAmount, direction, invariant)
		if err != nil {
			return nil, nil, err
		}
		return newBase, newQuote, nil
	}
	newBase, newQuote, err := CalculateSwapOutput(baseReserve, amount, direction, invariant)
	if err != nil {
		return nil, nil, err
	}
	return newBase, newQuote, nil
}

// QuoteSwapped converts a quote-reserve delta into quote-asset units through
// the peg, rounding against the remover.
func QuoteSwapped(quoteReserveDelta *big.Int, peg *big.Int, direction SwapDirection) (*big.Int, error) {
	delta := num.Abs(quoteReserveDelta)
	if direction == SwapRemove {
		delta = num.Add(delta, num.BN(1))
	}
	amount, err := num.MulDiv(delta, peg, num.BN(constants.AMMTimesPegToQuotePrecisionRatio))
	if err != nil {
		return nil, err
	}
	if direction == SwapRemove {
		amount = num.Add(amount, num.BN(1))
	}
	return amount, nil
}

// SwapResult is a committed fill against the curve.
type SwapResult struct {
	BaseAssetAmount         *big.Int // unsigned fill size, base precision
	QuoteAssetAmount        *big.Int // quote paid/received at the spread price
	QuoteAssetAmountSurplus *big.Int // spread-vs-true difference kept as fee
	NewBaseAssetReserve     *big.Int
	NewQuoteAssetReserve    *big.Int
}

// SwapBaseAsset fills baseAmount for the taker in the given direction. The
// fill prices against the directional spread reserve pair (long fills use the
// ask side, shorts the bid side), then the true reserve delta is recomputed on
// the raw curve; the difference accrues as fee surplus. State is mutated only
// after the post-swap curve revalidates.
func (a *AMM) SwapBaseAsset(baseAmount *big.Int, direction PositionDirection) (*SwapResult, error) {
	if baseAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: fill size must be positive", ErrInvalidInput)
	}
	if a.OrderStepSize <= 0 {
		return nil, fmt.Errorf("%w: zero order step size", ErrInvalidInput)
	}
	if rem := new(big.Int).Mod(baseAmount, num.BN(a.OrderStepSize)); rem.Sign() != 0 {
		return nil, fmt.Errorf("%w: fill size not a step multiple", ErrInvalidInput)
	}

	swapDir := SwapDirectionFor(AssetBase, direction)

	// Price against the spread reserves biased against the taker.
	spreadBase, spreadQuote, err := a.SpreadReserves(direction)
	if err != nil {
		return nil, err
	}
	spreadSqrtK, err := num.Sqrt(num.Mul(spreadBase, spreadQuote))
	if err != nil {
		return nil, err
	}
	_, spreadQuoteAfter, err := ReservesAfterSwap(spreadBase, spreadQuote, spreadSqrtK, a.PegMultiplier, AssetBase, baseAmount, swapDir)
	if err != nil {
		return nil, err
	}
	quoteDir := SwapAdd
	if direction == Long {
		quoteDir = SwapRemove
	}
	// A long removes base, pushing quote reserve up: the taker pays the
	// delta. A short adds base, pulling quote down: the taker receives it.
	spreadDelta := num.Sub(spreadQuoteAfter, spreadQuote)
	quoteAmount, err := QuoteSwapped(spreadDelta, a.PegMultiplier, quoteDir)
	if err != nil {
		return nil, err
	}

	// True delta on the raw curve.
	newBase, newQuote, err := ReservesAfterSwap(a.BaseAssetReserve, a.QuoteAssetReserve, a.SqrtK, a.PegMultiplier, AssetBase, baseAmount, swapDir)
	if err != nil {
		return nil, err
	}
	trueDelta := num.Sub(newQuote, a.QuoteAssetReserve)
	trueQuote, err := QuoteSwapped(trueDelta, a.PegMultiplier, quoteDir)
	if err != nil {
		return nil, err
	}

	// The spread is biased against the taker: longs pay more than true,
	// shorts receive less. Either way the surplus is non-negative.
	var surplus *big.Int
	if direction == Long {
		surplus = num.Sub(quoteAmount, trueQuote)
	} else {
		surplus = num.Sub(trueQuote, quoteAmount)
	}
	if surplus.Sign() < 0 {
		return nil, fmt.Errorf("%w: spread fill priced better than curve", ErrInvariantViolation)
	}

	scratch := a.Clone()
	scratch.BaseAssetReserve = newBase
	scratch.QuoteAssetReserve = newQuote
	if direction == Long {
		scratch.BaseAssetAmountWithAmm = num.Add(scratch.BaseAssetAmountWithAmm, baseAmount)
	} else {
		scratch.BaseAssetAmountWithAmm = num.Sub(scratch.BaseAssetAmountWithAmm, baseAmount)
	}
	scratch.TotalExchangeFee = num.Add(scratch.TotalExchangeFee, surplus)
	scratch.TotalFeeMinusDistributions = num.Add(scratch.TotalFeeMinusDistributions, surplus)
	if err := scratch.updateTerminalQuoteReserve(); err != nil {
		return nil, err
	}
	if err := scratch.ValidateInvariant(); err != nil {
		return nil, err
	}
	a.commit(scratch)

	return &SwapResult{
		BaseAssetAmount:         num.Clone(baseAmount),
		QuoteAssetAmount:        quoteAmount,
		QuoteAssetAmountSurplus: surplus,
		NewBaseAssetReserve:     num.Clone(newBase),
		NewQuoteAssetReserve:    num.Clone(newQuote),
	}, nil
}

// updateTerminalQuoteReserve recomputes the quote reserve at net-flat.
func (a *AMM) updateTerminalQuoteReserve() error {
	if a.BaseAssetAmountWithAmm.Sign() == 0 {
		a.TerminalQuoteAssetReserve = num.Clone(a.QuoteAssetReserve)
		return nil
	}
	directionToClose := Short
	if a.BaseAssetAmountWithAmm.Sign() < 0 {
		directionToClose = Long
	}
	_, newQuote, err := ReservesAfterSwap(
		a.BaseAssetReserve, a.QuoteAssetReserve, a.SqrtK, a.PegMultiplier,
		AssetBase, num.Abs(a.BaseAssetAmountWithAmm),
		SwapDirectionFor(AssetBase, directionToClose),
	)
	if err != nil {
		return err
	}
	a.TerminalQuoteAssetReserve = newQuote
	return nil
}

// BaseAssetValue prices closing a signed base position against the current
// raw reserves, in quote units.
func (a *AMM) BaseAssetValue(baseAmount *big.Int) (*big.Int, error) {
	if baseAmount.Sign() == 0 {
		return num.BN(0), nil
	}
	directionToClose := Short
	if baseAmount.Sign() < 0 {
		directionToClose = Long
	}
	_, newQuote, err := ReservesAfterSwap(
		a.BaseAssetReserve, a.QuoteAssetReserve, a.SqrtK, a.PegMultiplier,
		AssetBase, num.Abs(baseAmount),
		SwapDirectionFor(AssetBase, directionToClose),
	)
	if err != nil {
		return nil, err
	}
	delta := num.Abs(num.Sub(newQuote, a.QuoteAssetReserve))
	return num.MulDiv(delta, a.PegMultiplier, num.BN(constants.AMMTimesPegToQuotePrecisionRatio))
}
