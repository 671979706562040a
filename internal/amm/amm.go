// Package amm implements the virtual constant-product pricing curve: one AMM
// per market, holding virtual reserves, peg, spread state, and the TWAP
// trackers the spread logic consumes. Every mutating operation follows
// propose/validate/commit: compute on a scratch copy, reconcile the
// invariant, then swap the whole struct in. A rejected update leaves the
// market untouched.
package amm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
)

var (
	// ErrInvalidInput reports a malformed argument, rejected pre-mutation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvariantViolation reports a reserve/invariant reconciliation
	// failure or a breached resize bound.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrInvalidKScale reports a degenerate budgeted k solve.
	ErrInvalidKScale = errors.New("invalid k scale")
)

// AMM is the full curve state for one market. Reserve fields carry
// AMMReservePrecision, prices PricePrecision, the peg PegPrecision.
type AMM struct {
	BaseAssetReserve  *big.Int
	QuoteAssetReserve *big.Int
	SqrtK             *big.Int
	PegMultiplier     *big.Int

	// ConcentrationCoef sets how far reserves may wander from sqrt_k before
	// the curve refuses fills on that side. PercentagePrecision scale, > 1.0.
	ConcentrationCoef   *big.Int
	MinBaseAssetReserve *big.Int
	MaxBaseAssetReserve *big.Int

	// Terminal quote reserve: the quote reserve the curve would hold if net
	// exposure were closed against it. Maintained on swaps and k updates.
	TerminalQuoteAssetReserve *big.Int

	// Spread state. Spread values are BidAskSpreadPrecision fractions.
	BaseSpread  int64
	MaxSpread   int64
	LongSpread  int64
	ShortSpread int64

	// Mark price tracking.
	LastMarkPriceTwap     *big.Int
	LastMarkPriceTwap5Min *big.Int
	LastMarkPriceTwapTs   int64
	MarkStd               *big.Int

	// Oracle price tracking (the consumed record's history, not the feed).
	LastOraclePrice         *big.Int
	LastOraclePriceTwap     *big.Int
	LastOraclePriceTwap5Min *big.Int
	LastOraclePriceTwapTs   int64
	OracleStd               *big.Int
	LastOracleConfPct       *big.Int

	// CurveUpdateIntensity gates formulaic repeg/spread aggressiveness;
	// zero freezes the curve at half the base spread.
	CurveUpdateIntensity uint8

	OrderStepSize int64
	OrderTickSize int64

	// BaseAssetAmountWithAmm is the signed net base the curve is short to
	// users (positive: users net long). BasePrecision.
	BaseAssetAmountWithAmm *big.Int
	// BaseAssetAmountWithUnsettledLP is exposure parked with LPs that have
	// not settled yet. BasePrecision.
	BaseAssetAmountWithUnsettledLP *big.Int
	// UserLPShares is the total LP shares outstanding.
	UserLPShares *big.Int

	CumulativeFundingRateLong  *big.Int
	CumulativeFundingRateShort *big.Int
	FundingPeriod              int64

	// Fee health, consumed by the spread retreat and the repeg budget.
	TotalFee                   *big.Int
	TotalExchangeFee           *big.Int
	TotalFeeMinusDistributions *big.Int
	NetRevenueSinceLastFunding int64

	Volume24H *big.Int
}

// Config seeds a new curve.
type Config struct {
	BaseAssetReserve     *big.Int
	QuoteAssetReserve    *big.Int
	PegMultiplier        *big.Int
	ConcentrationCoef    *big.Int
	BaseSpread           int64
	MaxSpread            int64
	CurveUpdateIntensity uint8
	OrderStepSize        int64
	OrderTickSize        int64
	FundingPeriod        int64
}

// New validates the seed configuration and returns a reconciled curve.
func New(cfg Config) (*AMM, error) {
	if cfg.BaseAssetReserve == nil || cfg.BaseAssetReserve.Sign() <= 0 ||
		cfg.QuoteAssetReserve == nil || cfg.QuoteAssetReserve.Sign() <= 0 {
		return nil, fmt.Errorf("%w: seed reserves must be positive", ErrInvalidInput)
	}
	if cfg.PegMultiplier == nil || cfg.PegMultiplier.Sign() <= 0 {
		return nil, fmt.Errorf("%w: peg multiplier must be positive", ErrInvalidInput)
	}
	if cfg.OrderStepSize <= 0 || cfg.OrderTickSize <= 0 {
		return nil, fmt.Errorf("%w: step and tick size must be positive", ErrInvalidInput)
	}
	concentration := cfg.ConcentrationCoef
	if concentration == nil {
		concentration = num.BN(constants.MaxConcentrationCoefficient)
	}
	if concentration.Cmp(num.BN(constants.PercentagePrecision)) <= 0 ||
		concentration.Cmp(num.BN(constants.MaxConcentrationCoefficient)) > 0 {
		return nil, fmt.Errorf("%w: concentration coefficient out of range", ErrInvalidInput)
	}
	maxSpread := cfg.MaxSpread
	if maxSpread == 0 {
		maxSpread = constants.DefaultMaxSpread
	}
	if cfg.BaseSpread < 0 || maxSpread < cfg.BaseSpread {
		return nil, fmt.Errorf("%w: malformed spread bounds", ErrInvalidInput)
	}

	k := num.Mul(cfg.BaseAssetReserve, cfg.QuoteAssetReserve)
	sqrtK, err := num.Sqrt(k)
	if err != nil {
		return nil, err
	}

	a := &AMM{
		BaseAssetReserve:               num.Clone(cfg.BaseAssetReserve),
		QuoteAssetReserve:              num.Clone(cfg.QuoteAssetReserve),
		SqrtK:                          sqrtK,
		PegMultiplier:                  num.Clone(cfg.PegMultiplier),
		ConcentrationCoef:              num.Clone(concentration),
		TerminalQuoteAssetReserve:      num.Clone(cfg.QuoteAssetReserve),
		BaseSpread:                     cfg.BaseSpread,
		MaxSpread:                      maxSpread,
		CurveUpdateIntensity:           cfg.CurveUpdateIntensity,
		OrderStepSize:                  cfg.OrderStepSize,
		OrderTickSize:                  cfg.OrderTickSize,
		FundingPeriod:                  cfg.FundingPeriod,
		BaseAssetAmountWithAmm:         num.BN(0),
		BaseAssetAmountWithUnsettledLP: num.BN(0),
		UserLPShares:                   num.BN(0),
		CumulativeFundingRateLong:      num.BN(0),
		CumulativeFundingRateShort:     num.BN(0),
		TotalFee:                       num.BN(0),
		TotalExchangeFee:               num.BN(0),
		TotalFeeMinusDistributions:     num.BN(0),
		Volume24H:                      num.BN(0),
		MarkStd:                        num.BN(0),
		OracleStd:                      num.BN(0),
		LastOracleConfPct:              num.BN(0),
	}
	if a.FundingPeriod == 0 {
		a.FundingPeriod = constants.OneHourSeconds
	}
	if err := a.UpdateConcentrationBounds(); err != nil {
		return nil, err
	}
	price, err := a.ReservePrice()
	if err != nil {
		return nil, err
	}
	a.LastMarkPriceTwap = num.Clone(price)
	a.LastMarkPriceTwap5Min = num.Clone(price)
	a.LastOraclePrice = num.Clone(price)
	a.LastOraclePriceTwap = num.Clone(price)
	a.LastOraclePriceTwap5Min = num.Clone(price)
	if err := a.ValidateInvariant(); err != nil {
		return nil, err
	}
	return a, nil
}

// Clone deep-copies the curve; mutating operations work on the copy.
func (a *AMM) Clone() *AMM {
	c := *a
	c.BaseAssetReserve = num.Clone(a.BaseAssetReserve)
	c.QuoteAssetReserve = num.Clone(a.QuoteAssetReserve)
	c.SqrtK = num.Clone(a.SqrtK)
	c.PegMultiplier = num.Clone(a.PegMultiplier)
	c.ConcentrationCoef = num.Clone(a.ConcentrationCoef)
	c.MinBaseAssetReserve = num.Clone(a.MinBaseAssetReserve)
	c.MaxBaseAssetReserve = num.Clone(a.MaxBaseAssetReserve)
	c.TerminalQuoteAssetReserve = num.Clone(a.TerminalQuoteAssetReserve)
	c.LastMarkPriceTwap = num.Clone(a.LastMarkPriceTwap)
	c.LastMarkPriceTwap5Min = num.Clone(a.LastMarkPriceTwap5Min)
	c.MarkStd = num.Clone(a.MarkStd)
	c.LastOraclePrice = num.Clone(a.LastOraclePrice)
	c.LastOraclePriceTwap = num.Clone(a.LastOraclePriceTwap)
	c.LastOraclePriceTwap5Min = num.Clone(a.LastOraclePriceTwap5Min)
	c.OracleStd = num.Clone(a.OracleStd)
	c.LastOracleConfPct = num.Clone(a.LastOracleConfPct)
	c.BaseAssetAmountWithAmm = num.Clone(a.BaseAssetAmountWithAmm)
	c.BaseAssetAmountWithUnsettledLP = num.Clone(a.BaseAssetAmountWithUnsettledLP)
	c.UserLPShares = num.Clone(a.UserLPShares)
	c.CumulativeFundingRateLong = num.Clone(a.CumulativeFundingRateLong)
	c.CumulativeFundingRateShort = num.Clone(a.CumulativeFundingRateShort)
	c.TotalFee = num.Clone(a.TotalFee)
	c.TotalExchangeFee = num.Clone(a.TotalExchangeFee)
	c.TotalFeeMinusDistributions = num.Clone(a.TotalFeeMinusDistributions)
	c.Volume24H = num.Clone(a.Volume24H)
	return &c
}

// ReservePrice returns quote_reserve * peg * price_precision / base_reserve
// with floor truncation. Fails, never wraps, on a degenerate denominator.
func (a *AMM) ReservePrice() (*big.Int, error) {
	return CalculatePrice(a.BaseAssetReserve, a.QuoteAssetReserve, a.PegMultiplier)
}

// CalculatePrice is the raw curve price for an arbitrary reserve pair.
func CalculatePrice(baseReserve, quoteReserve, peg *big.Int) (*big.Int, error) {
	if baseReserve.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive base reserve", ErrInvalidInput)
	}
	wide := num.Mul(quoteReserve, num.BN(constants.PricePrecision), peg)
	return num.Div(wide, num.Mul(num.BN(constants.PegPrecision), baseReserve))
}

// ValidateInvariant reconciles base*quote against sqrt_k^2 within the fixed
// tolerance, and checks the reserve bounds.
func (a *AMM) ValidateInvariant() error {
	k := num.Mul(a.SqrtK, a.SqrtK)
	product := num.Mul(a.BaseAssetReserve, a.QuoteAssetReserve)
	diff := num.Abs(num.Sub(product, k))
	// Tolerance scales with sqrt_k: one floor-truncation step on either
	// reserve perturbs the product by up to ~sqrt_k.
	tolerance := num.Mul(a.SqrtK, num.BN(constants.InvariantTolerance))
	if diff.Cmp(tolerance) > 0 {
		return fmt.Errorf("%w: reserve product diverges from k (diff=%s)", ErrInvariantViolation, diff)
	}
	if a.MinBaseAssetReserve != nil && a.BaseAssetReserve.Cmp(a.MinBaseAssetReserve) < 0 {
		return fmt.Errorf("%w: base reserve below min bound", ErrInvariantViolation)
	}
	if a.MaxBaseAssetReserve != nil && a.BaseAssetReserve.Cmp(a.MaxBaseAssetReserve) > 0 {
		return fmt.Errorf("%w: base reserve above max bound", ErrInvariantViolation)
	}
	return nil
}

// UpdateConcentrationBounds recomputes min/max base reserve from sqrt_k and
// the concentration coefficient.
func (a *AMM) UpdateConcentrationBounds() error {
	maxBase, err := num.MulDiv(a.SqrtK, a.ConcentrationCoef, num.BN(constants.PercentagePrecision))
	if err != nil {
		return err
	}
	minBase, err := num.MulDiv(a.SqrtK, num.BN(constants.PercentagePrecision), a.ConcentrationCoef)
	if err != nil {
		return err
	}
	a.MinBaseAssetReserve = minBase
	a.MaxBaseAssetReserve = maxBase
	return nil
}

// OpenBidAsk returns the base depth available on each side before the
// concentration bounds stop the curve. Asks are returned negative. Sides
// thinner than twice the step size round to zero.
func (a *AMM) OpenBidAsk() (openBids, openAsks *big.Int) {
	step := num.BN(a.OrderStepSize)
	if a.MinBaseAssetReserve.Cmp(a.BaseAssetReserve) < 0 {
		openAsks = num.Neg(num.Sub(a.BaseAssetReserve, a.MinBaseAssetReserve))
		if half, err := num.Div(num.Abs(openAsks), num.BN(2)); err == nil && half.Cmp(step) < 0 {
			openAsks = num.BN(0)
		}
	} else {
		openAsks = num.BN(0)
	}
	if a.MaxBaseAssetReserve.Cmp(a.BaseAssetReserve) > 0 {
		openBids = num.Sub(a.MaxBaseAssetReserve, a.BaseAssetReserve)
		if half, err := num.Div(openBids, num.BN(2)); err == nil && half.Cmp(step) < 0 {
			openBids = num.BN(0)
		}
	} else {
		openBids = num.BN(0)
	}
	return openBids, openAsks
}

// InventoryLiquidityRatio returns |net exposure| relative to the thinner
// side's remaining depth, as a PercentagePrecision fraction capped at 1.0.
func (a *AMM) InventoryLiquidityRatio() (*big.Int, error) {
	openBids, openAsks := a.OpenBidAsk()
	minSide := num.Min(num.Abs(openBids), num.Abs(openAsks))
	ratio, err := num.MulDiv(
		num.Abs(a.BaseAssetAmountWithAmm),
		num.BN(constants.PercentagePrecision),
		num.Max(minSide, num.BN(1)),
	)
	if err != nil {
		return nil, err
	}
	return num.Min(ratio, num.BN(constants.PercentagePrecision)), nil
}

// commit adopts the scratch copy's state after validation.
func (a *AMM) commit(scratch *AMM) {
	*a = *scratch
}
