package state

import (
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/num"
)

// PerpPosition is one user's position in one perp market. Amounts carry
// BasePrecision (base) and QuotePrecision (quote). Created lazily on first
// order; logically removed once flat with no orders, LP shares, or
// unsettled PnL.
type PerpPosition struct {
	MarketIndex uint16

	// BaseAssetAmount is signed: positive long, negative short.
	BaseAssetAmount *big.Int
	// QuoteAssetAmount is the signed quote leg, including settled funding.
	QuoteAssetAmount *big.Int
	// QuoteEntryAmount tracks cost basis excluding fees.
	QuoteEntryAmount *big.Int
	// QuoteBreakEvenAmount tracks cost basis including fees.
	QuoteBreakEvenAmount *big.Int

	// Resting order reservations, signed: bids positive, asks negative.
	OpenBids   *big.Int
	OpenAsks   *big.Int
	OpenOrders int64

	LPShares *big.Int

	// LastCumulativeFundingRate is the funding cursor at last settlement.
	LastCumulativeFundingRate *big.Int
}

// NewPerpPosition returns an empty position for the market.
func NewPerpPosition(marketIndex uint16) *PerpPosition {
	return &PerpPosition{
		MarketIndex:               marketIndex,
		BaseAssetAmount:           num.BN(0),
		QuoteAssetAmount:          num.BN(0),
		QuoteEntryAmount:          num.BN(0),
		QuoteBreakEvenAmount:      num.BN(0),
		OpenBids:                  num.BN(0),
		OpenAsks:                  num.BN(0),
		LPShares:                  num.BN(0),
		LastCumulativeFundingRate: num.BN(0),
	}
}

// IsOpen reports whether the position still carries exposure or claims.
func (p *PerpPosition) IsOpen() bool {
	return p.BaseAssetAmount.Sign() != 0 ||
		p.QuoteAssetAmount.Sign() != 0 ||
		p.OpenOrders != 0 ||
		p.LPShares.Sign() != 0
}

// WorstCaseBaseAmount is the exposure if the larger-magnitude resting side
// fills entirely: base plus whichever of open bids/asks moves it further.
func (p *PerpPosition) WorstCaseBaseAmount() *big.Int {
	withBids := num.Add(p.BaseAssetAmount, p.OpenBids)
	withAsks := num.Add(p.BaseAssetAmount, p.OpenAsks)
	if num.Abs(withBids).Cmp(num.Abs(withAsks)) > 0 {
		return withBids
	}
	return withAsks
}

// UnrealizedFunding is the quote owed to (positive) or by (negative) the
// position since its funding cursor, given the market's cumulative rate for
// its side.
func (p *PerpPosition) UnrealizedFunding(cumulativeRate *big.Int, fundingToQuoteRatio int64) (*big.Int, error) {
	if p.BaseAssetAmount.Sign() == 0 {
		return num.BN(0), nil
	}
	delta := num.Sub(cumulativeRate, p.LastCumulativeFundingRate)
	raw, err := num.FloorDiv(num.Mul(delta, num.Abs(p.BaseAssetAmount)), num.BN(fundingToQuoteRatio))
	if err != nil {
		return nil, err
	}
	// Longs pay a positive accrued rate; shorts receive it.
	if p.BaseAssetAmount.Sign() > 0 {
		return num.Neg(raw), nil
	}
	return raw, nil
}

// SpotPosition is one user's balance in one spot market: a scaled balance
// with a deposit/borrow sign plus resting order reservations.
type SpotPosition struct {
	MarketIndex   uint16
	ScaledBalance *big.Int // non-negative, SpotBalancePrecision
	BalanceType   BalanceType

	OpenBids   *big.Int
	OpenAsks   *big.Int
	OpenOrders int64
}

// NewSpotPosition returns an empty deposit position for the market.
func NewSpotPosition(marketIndex uint16) *SpotPosition {
	return &SpotPosition{
		MarketIndex:   marketIndex,
		ScaledBalance: num.BN(0),
		BalanceType:   BalanceTypeDeposit,
		OpenBids:      num.BN(0),
		OpenAsks:      num.BN(0),
	}
}

// IsOpen reports whether the position holds a balance or orders.
func (p *SpotPosition) IsOpen() bool {
	return p.ScaledBalance.Sign() != 0 || p.OpenOrders != 0
}

// SignedTokenAmount is the token amount with the borrow sign applied.
func (p *SpotPosition) SignedTokenAmount(market *SpotMarket) (*big.Int, error) {
	tokens, err := market.TokenAmount(p.ScaledBalance, p.BalanceType)
	if err != nil {
		return nil, err
	}
	if p.BalanceType == BalanceTypeBorrow {
		return num.Neg(tokens), nil
	}
	return tokens, nil
}

// WorstCaseTokenAmount is the signed token amount after the larger-magnitude
// resting side fills.
func (p *SpotPosition) WorstCaseTokenAmount(market *SpotMarket) (*big.Int, error) {
	tokens, err := p.SignedTokenAmount(market)
	if err != nil {
		return nil, err
	}
	withBids := num.Add(tokens, p.OpenBids)
	withAsks := num.Add(tokens, p.OpenAsks)
	if num.Abs(withBids).Cmp(num.Abs(withAsks)) > 0 {
		return withBids, nil
	}
	return withAsks, nil
}
