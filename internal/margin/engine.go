package margin

import (
	"fmt"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/oracle"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
)

var (
	ErrUnknownMarket = fmt.Errorf("margin: unknown market")
	ErrMissingOracle = fmt.Errorf("margin: missing oracle data")
)

// OracleSet carries per-market oracle inputs for one calculation. The engine
// never fetches prices itself.
type OracleSet struct {
	Perp map[uint16]*oracle.PriceData
	Spot map[uint16]*oracle.PriceData
}

// Engine values user accounts against a market snapshot. It holds no locks;
// the caller serializes mutation against reads.
type Engine struct {
	Markets *state.MarketStore
}

func NewEngine(markets *state.MarketStore) *Engine {
	return &Engine{Markets: markets}
}

// Calculate values every open position the user holds. An oracle failing its
// guards does not abort the calculation; it clears AllOraclesValid so gated
// callers can reject.
func (e *Engine) Calculate(user *state.User, oracles OracleSet, ctx Context) (*Calculation, error) {
	calc := newCalculation(ctx)

	for _, pos := range user.SpotPositions {
		if !pos.IsOpen() {
			continue
		}
		if err := e.applySpotPosition(calc, pos, oracles, ctx); err != nil {
			return nil, err
		}
	}

	for _, pos := range user.PerpPositions {
		if !pos.IsOpen() {
			continue
		}
		if err := e.applyPerpPosition(calc, user, pos, oracles, ctx); err != nil {
			return nil, err
		}
	}

	return calc, nil
}

func (e *Engine) applySpotPosition(calc *Calculation, pos *state.SpotPosition, oracles OracleSet, ctx Context) error {
	market, ok := e.Markets.SpotMarket(pos.MarketIndex)
	if !ok {
		return fmt.Errorf("%w: spot %d", ErrUnknownMarket, pos.MarketIndex)
	}

	if pos.OpenOrders > 0 {
		orderSurcharge := num.BN(pos.OpenOrders * constants.OpenOrderMarginRequirement)
		calc.MarginRequirement = num.Add(calc.MarginRequirement, orderSurcharge)
	}

	// The quote asset counts 1:1 with no oracle and no weight.
	if market.IsQuoteMarket() {
		tokens, err := pos.SignedTokenAmount(market)
		if err != nil {
			return err
		}
		value, err := quoteValue(num.Abs(tokens), num.BN(constants.PricePrecision), tokens.Sign() < 0)
		if err != nil {
			return err
		}
		if tokens.Sign() >= 0 {
			calc.TotalCollateral = num.Add(calc.TotalCollateral, value)
			calc.TotalSpotAssetValue = num.Add(calc.TotalSpotAssetValue, value)
		} else {
			calc.MarginRequirement = num.Add(calc.MarginRequirement, value)
			calc.TotalSpotLiabilityValue = num.Add(calc.TotalSpotLiabilityValue, value)
			calc.NumSpotLiabilities++
		}
		return nil
	}

	data, ok := oracles.Spot[pos.MarketIndex]
	if !ok || data == nil {
		return fmt.Errorf("%w: spot %d", ErrMissingOracle, pos.MarketIndex)
	}
	if err := oracle.Validate(data, market.OracleGuards, market.LastOraclePriceTwap5Min); err != nil {
		calc.AllOraclesValid = false
	}

	wc, err := pos.WorstCaseTokenAmount(market)
	if err != nil {
		return err
	}
	if wc.Sign() == 0 {
		return nil
	}
	isLiability := wc.Sign() < 0
	price := market.WorstOraclePrice(data, isLiability)
	value, err := quoteValue(num.Abs(wc), price, isLiability)
	if err != nil {
		return err
	}

	if isLiability {
		weight, err := market.LiabilityWeight(value, ctx.initial())
		if err != nil {
			return err
		}
		weighted, err := num.CeilDiv(num.Mul(value, num.BN(weight)), num.BN(constants.SpotWeightPrecision))
		if err != nil {
			return err
		}
		calc.MarginRequirement = num.Add(calc.MarginRequirement, weighted)
		calc.TotalSpotLiabilityValue = num.Add(calc.TotalSpotLiabilityValue, value)
		calc.NumSpotLiabilities++
		if market.Tier.IsIsolated() {
			calc.WithIsolatedLiability = true
		}
		return nil
	}

	weight, err := market.AssetWeight(value, ctx.initial())
	if err != nil {
		return err
	}
	weighted, err := num.Div(num.Mul(value, num.BN(weight)), num.BN(constants.SpotWeightPrecision))
	if err != nil {
		return err
	}
	calc.TotalCollateral = num.Add(calc.TotalCollateral, weighted)
	calc.TotalSpotAssetValue = num.Add(calc.TotalSpotAssetValue, value)
	return nil
}

func (e *Engine) applyPerpPosition(calc *Calculation, user *state.User, pos *state.PerpPosition, oracles OracleSet, ctx Context) error {
	market, ok := e.Markets.PerpMarket(pos.MarketIndex)
	if !ok {
		return fmt.Errorf("%w: perp %d", ErrUnknownMarket, pos.MarketIndex)
	}
	data, ok := oracles.Perp[pos.MarketIndex]
	if !ok || data == nil {
		return fmt.Errorf("%w: perp %d", ErrMissingOracle, pos.MarketIndex)
	}
	if err := oracle.Validate(data, market.OracleGuards, market.Amm.LastOraclePriceTwap5Min); err != nil {
		calc.AllOraclesValid = false
	}

	price := market.SettlementPrice(data.Price)

	baseSim, quoteSim, err := simulateLPSettle(pos, market.Amm, price)
	if err != nil {
		return err
	}

	funding, err := unrealizedFunding(pos, market.Amm)
	if err != nil {
		return err
	}

	// Signed close-out value of the settled base plus quote legs.
	baseValue, err := num.FloorDiv(num.Mul(baseSim, price), num.BN(constants.BasePrecision))
	if err != nil {
		return err
	}
	pnl := num.Add(quoteSim, baseValue, funding)
	calc.TotalPerpPnL = num.Add(calc.TotalPerpPnL, pnl)

	wc := worstCaseBase(baseSim, pos.OpenBids, pos.OpenAsks)
	if wc.Sign() != 0 {
		notional, err := num.CeilDiv(num.Mul(num.Abs(wc), price), num.BN(constants.BasePrecision))
		if err != nil {
			return err
		}
		notional, err = e.adjustByQuotePrice(notional, oracles)
		if err != nil {
			return err
		}
		ratio, err := market.MarginRatio(num.Abs(wc), ctx.initial())
		if err != nil {
			return err
		}
		// User overrides raise the initial ratio, never lower it.
		if ctx.initial() && user.MaxMarginRatio > ratio {
			ratio = user.MaxMarginRatio
		}
		required, err := num.CeilDiv(num.Mul(notional, num.BN(ratio)), num.BN(constants.MarginPrecision))
		if err != nil {
			return err
		}
		calc.MarginRequirement = num.Add(calc.MarginRequirement, required)
		calc.TotalPerpLiabilityValue = num.Add(calc.TotalPerpLiabilityValue, notional)
	}

	if pos.OpenOrders > 0 {
		orderSurcharge := num.BN(pos.OpenOrders * constants.OpenOrderMarginRequirement)
		calc.MarginRequirement = num.Add(calc.MarginRequirement, orderSurcharge)
	}
	if pos.LPShares.Sign() > 0 {
		calc.MarginRequirement = num.Add(calc.MarginRequirement, num.BN(constants.LPShareMarginRequirement))
	}

	if wc.Sign() != 0 || pos.OpenOrders > 0 || pos.LPShares.Sign() > 0 {
		calc.NumPerpLiabilities++
		if market.Tier.IsIsolated() {
			calc.WithIsolatedLiability = true
		}
	}

	calc.TotalCollateral = num.Add(calc.TotalCollateral, weightedPnL(pnl, market, ctx))
	return nil
}

// adjustByQuotePrice scales a perp notional by the worse (higher) of the
// quote asset's oracle price and its 5-minute TWAP, when a quote market with
// an oracle is configured. A pure-USD quote leaves the notional unchanged.
func (e *Engine) adjustByQuotePrice(notional *big.Int, oracles OracleSet) (*big.Int, error) {
	quoteMarket, ok := e.Markets.QuoteSpotMarket()
	if !ok {
		return notional, nil
	}
	data, ok := oracles.Spot[state.QuoteSpotMarketIndex]
	if !ok || data == nil {
		return notional, nil
	}
	price := quoteMarket.WorstOraclePrice(data, true)
	return num.CeilDiv(num.Mul(notional, price), num.BN(constants.PricePrecision))
}

// simulateLPSettle folds the position's pro-rata share of LP exposure into
// its base and quote legs without mutating either the position or the curve.
// The sub-step remainder is cashed out at the valuation price.
func simulateLPSettle(pos *state.PerpPosition, a *amm.AMM, price *big.Int) (*big.Int, *big.Int, error) {
	base := num.Clone(pos.BaseAssetAmount)
	quote := num.Clone(pos.QuoteAssetAmount)
	if pos.LPShares.Sign() <= 0 || a.UserLPShares.Sign() <= 0 {
		return base, quote, nil
	}
	share, err := num.FloorDiv(num.Mul(a.BaseAssetAmountWithUnsettledLP, pos.LPShares), a.UserLPShares)
	if err != nil {
		return nil, nil, err
	}
	settled, err := amm.StandardizeBaseAmount(share, a.OrderStepSize)
	if err != nil {
		return nil, nil, err
	}
	remainder := num.Sub(share, settled)
	dustValue, err := num.FloorDiv(num.Mul(remainder, price), num.BN(constants.BasePrecision))
	if err != nil {
		return nil, nil, err
	}
	return num.Add(base, settled), num.Add(quote, dustValue), nil
}

// unrealizedFunding accrues the funding owed since the position's cursor,
// against the cumulative rate for its side. LP exposure carries no cursor
// until settled.
func unrealizedFunding(pos *state.PerpPosition, a *amm.AMM) (*big.Int, error) {
	if pos.BaseAssetAmount.Sign() == 0 {
		return num.BN(0), nil
	}
	rate := a.CumulativeFundingRateShort
	if pos.BaseAssetAmount.Sign() > 0 {
		rate = a.CumulativeFundingRateLong
	}
	return pos.UnrealizedFunding(rate, constants.FundingRateToQuotePrecisionRatio)
}

func worstCaseBase(base, openBids, openAsks *big.Int) *big.Int {
	withBids := num.Add(base, openBids)
	withAsks := num.Add(base, openAsks)
	if num.Abs(withBids).Cmp(num.Abs(withAsks)) > 0 {
		return withBids
	}
	return withAsks
}

// weightedPnL haircuts positive unrealized pnl before it counts as
// collateral; initial margin additionally hard-caps it. Losses count in
// full.
func weightedPnL(pnl *big.Int, market *state.PerpMarket, ctx Context) *big.Int {
	if pnl.Sign() <= 0 {
		return pnl
	}
	weight := constants.MaxPositivePnLWeight
	if ctx.initial() {
		weight = market.UnrealizedPnLInitialAssetWeight
	}
	weighted := new(big.Int).Div(num.Mul(pnl, num.BN(weight)), num.BN(constants.SpotWeightPrecision))
	if ctx.initial() && market.UnrealizedPnLMaxImbalance != nil && market.UnrealizedPnLMaxImbalance.Sign() > 0 {
		weighted = num.Min(weighted, market.UnrealizedPnLMaxImbalance)
	}
	return weighted
}

// quoteValue converts a token magnitude to quote precision at a price,
// rounding against the user for liabilities.
func quoteValue(tokens, price *big.Int, isLiability bool) (*big.Int, error) {
	raw := num.Mul(tokens, price)
	scale := num.BN(constants.SpotBalancePrecision)
	if isLiability {
		return num.CeilDiv(raw, scale)
	}
	return num.Div(raw, scale)
}
