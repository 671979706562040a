// Package constants defines the fixed-point scales shared by the curve and
// margin engines. All amounts in the engine are int64/big.Int values carrying
// one of these scales; mixing scales without converting is a bug.
package constants

const (
	// PricePrecision scales all oracle, mark, and reserve prices.
	PricePrecision int64 = 1_000_000
	// PegPrecision scales the AMM peg multiplier.
	PegPrecision int64 = 1_000_000
	// QuotePrecision scales quote-asset (collateral) amounts.
	QuotePrecision int64 = 1_000_000
	// AMMReservePrecision scales virtual base/quote reserves and sqrt_k.
	AMMReservePrecision int64 = 1_000_000_000
	// BasePrecision scales user base-asset position amounts.
	BasePrecision int64 = 1_000_000_000
	// PercentagePrecision scales ratios, spreads, and the k-scale bounds.
	PercentagePrecision int64 = 1_000_000
	// BidAskSpreadPrecision scales long/short spread terms.
	BidAskSpreadPrecision int64 = 1_000_000
	// MarginPrecision scales margin ratios (1e4 = 100%).
	MarginPrecision int64 = 10_000
	// SpotWeightPrecision scales asset/liability weights (1e4 = 100%).
	SpotWeightPrecision int64 = 10_000
	// SpotBalancePrecision scales spot scaled balances.
	SpotBalancePrecision int64 = 1_000_000_000
	// SpotCumulativeInterestPrecision scales the externally maintained
	// deposit/borrow interest indexes.
	SpotCumulativeInterestPrecision int64 = 10_000_000_000
	// IMFPrecision scales the imf_factor weight-degradation parameter.
	IMFPrecision int64 = 1_000_000
	// FundingRatePrecision scales cumulative funding rates.
	FundingRatePrecision int64 = 1_000_000_000

	// AMMToQuotePrecisionRatio converts base reserve units to quote units.
	AMMToQuotePrecisionRatio int64 = AMMReservePrecision / QuotePrecision
	// AMMTimesPegToQuotePrecisionRatio converts reserve-times-peg products
	// down to quote units.
	AMMTimesPegToQuotePrecisionRatio int64 = AMMReservePrecision * PegPrecision / QuotePrecision
	// FundingRateToQuotePrecisionRatio converts funding-times-base products
	// down to quote units.
	FundingRateToQuotePrecisionRatio int64 = FundingRatePrecision * BasePrecision / QuotePrecision
)

const (
	// InvariantTolerance bounds |base*quote - sqrt_k^2| after any curve
	// mutation, in squared-reserve units relative to sqrt_k.
	InvariantTolerance int64 = 100

	// MaxKDecreaseBps is the largest single bounded sqrt_k decrease, in bps.
	MaxKDecreaseBps int64 = 250

	// MaxConcentrationCoefficient caps the reserve concentration bounds.
	// PercentagePrecision scale; 1.0 means min==max==reserve.
	MaxConcentrationCoefficient int64 = 1_414_200

	// DefaultMaxSpread caps total bid+ask spread when a market omits one.
	DefaultMaxSpread int64 = 29_500

	// OpenOrderMarginRequirement is the flat per-open-order initial margin
	// surcharge, quote precision.
	OpenOrderMarginRequirement int64 = 10_000

	// LPShareMarginRequirement is the flat surcharge per market in which the
	// user holds LP shares, quote precision.
	LPShareMarginRequirement int64 = QuotePrecision

	// MaxPositivePnLWeight haircuts positive unrealized PnL before it counts
	// as collateral. SpotWeightPrecision scale.
	MaxPositivePnLWeight int64 = 9_500
)

const (
	// FiveMinuteSeconds is the fast TWAP window.
	FiveMinuteSeconds int64 = 300
	// OneHourSeconds is the rolling dispersion window.
	OneHourSeconds int64 = 3_600
	// OneDaySeconds is the default funding-period TWAP window.
	OneDaySeconds int64 = 86_400
)
