package amm

import (
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/oracle"
)

// revenueRetreatThreshold is the fee-health level (quote precision) below
// which spreads start retreating wider.
var revenueRetreatThreshold = num.BN(-25*constants.QuotePrecision)

// maxSpreadScale caps the fee-health widening multiplier.
const maxSpreadScale = 10

// SpreadReserves returns the reserve pair a taker in the given direction
// prices against: the ask pair (long spread applied) for longs, the bid pair
// (short spread applied) for shorts.
func (a *AMM) SpreadReserves(direction PositionDirection) (*big.Int, *big.Int, error) {
	if direction == Long {
		return a.spreadReservePair(a.LongSpread)
	}
	return a.spreadReservePair(-a.ShortSpread)
}

// BidAskPrice returns the curve's current bid and ask, spread included.
func (a *AMM) BidAskPrice() (bid, ask *big.Int, err error) {
	bidBase, bidQuote, err := a.SpreadReserves(Short)
	if err != nil {
		return nil, nil, err
	}
	askBase, askQuote, err := a.SpreadReserves(Long)
	if err != nil {
		return nil, nil, err
	}
	bid, err = CalculatePrice(bidBase, bidQuote, a.PegMultiplier)
	if err != nil {
		return nil, nil, err
	}
	ask, err = CalculatePrice(askBase, askQuote, a.PegMultiplier)
	if err != nil {
		return nil, nil, err
	}
	return num.Max(bid, num.BN(1)), num.Max(ask, num.BN(1)), nil
}

// spreadReservePair shifts the quote reserve by half the signed spread and
// rebalances base off the invariant. A positive spread widens the ask side,
// a negative one the bid side.
func (a *AMM) spreadReservePair(spread int64) (*big.Int, *big.Int, error) {
	if spread == 0 {
		return num.Clone(a.BaseAssetReserve), num.Clone(a.QuoteAssetReserve), nil
	}
	half := spread / 2
	if half == 0 {
		if spread > 0 {
			half = 1
		} else {
			half = -1
		}
	}
	delta, err := num.MulDiv(a.QuoteAssetReserve, num.BN(half), num.BN(constants.BidAskSpreadPrecision))
	if err != nil {
		return nil, nil, err
	}
	var quote *big.Int
	if half > 0 {
		quote = num.Add(a.QuoteAssetReserve, num.Abs(delta))
	} else {
		quote = num.Sub(a.QuoteAssetReserve, num.Abs(delta))
	}
	base, err := num.Div(num.Mul(a.SqrtK, a.SqrtK), quote)
	if err != nil {
		return nil, nil, err
	}
	return base, quote, nil
}

// volSpreads returns the long/short volatility spread floors from oracle
// confidence and the rolling mark/oracle dispersion. BidAskSpreadPrecision.
func (a *AMM) volSpreads(confPct, reservePrice *big.Int) (*big.Int, *big.Int, error) {
	avgStdPct, err := num.MulDiv(
		num.Add(a.MarkStd, a.OracleStd),
		num.BN(constants.PercentagePrecision),
		num.Mul(reservePrice, num.BN(2)),
	)
	if err != nil {
		return nil, nil, err
	}
	volSpread := num.Max(confPct, num.Max(num.BN(0), avgStdPct))

	// Confidence counts in full only above 25 bps; below, a tenth.
	confComponent := confPct
	if confPct.Cmp(num.BN(constants.PricePrecision/400)) <= 0 {
		c, err := num.Div(confPct, num.BN(10))
		if err != nil {
			return nil, nil, err
		}
		confComponent = c
	}
	longVol := num.Max(confComponent, volSpread)
	shortVol := num.Max(confComponent, volSpread)
	return longVol, shortVol, nil
}

// inventoryScalePct converts inventory skew into a spread multiplier on the
// inventory-heavy side, PercentagePrecision scale (1.0 = no widening).
func (a *AMM) inventoryScalePct(directionalSpread, maxTargetSpread int64) (*big.Int, error) {
	if a.BaseAssetAmountWithAmm.Sign() == 0 {
		return num.BN(constants.PercentagePrecision), nil
	}
	liquidityRatio, err := a.InventoryLiquidityRatio()
	if err != nil {
		return nil, err
	}
	if directionalSpread < 1 {
		directionalSpread = 1
	}
	maxScale := num.Max(
		num.BN(constants.BidAskSpreadPrecision*maxSpreadScale),
		num.BN(maxTargetSpread*constants.BidAskSpreadPrecision/directionalSpread),
	)
	scaled, err := num.MulDiv(maxScale, liquidityRatio, num.BN(constants.PercentagePrecision))
	if err != nil {
		return nil, err
	}
	capped := num.Min(maxScale, num.Add(num.BN(constants.BidAskSpreadPrecision), scaled))
	// Normalize to PercentagePrecision multiplier units.
	return num.MulDiv(capped, num.BN(constants.PercentagePrecision), num.BN(constants.BidAskSpreadPrecision))
}

// feeHealthScalePct widens spreads when the curve's fee pool can't cover its
// inventory: the multiplier grows with the inventory's value relative to
// retained fees, capped at maxSpreadScale.
func (a *AMM) feeHealthScalePct(reservePrice *big.Int) (*big.Int, error) {
	full := num.BN(constants.PercentagePrecision * maxSpreadScale)
	if a.TotalFeeMinusDistributions.Sign() <= 0 {
		return full, nil
	}
	// Quote value the curve would owe unwinding its inventory.
	netBaseValue, err := num.MulDiv(
		num.Sub(a.QuoteAssetReserve, a.TerminalQuoteAssetReserve),
		a.PegMultiplier,
		num.BN(constants.AMMTimesPegToQuotePrecisionRatio),
	)
	if err != nil {
		return nil, err
	}
	localBaseValue, err := num.MulDiv(
		a.BaseAssetAmountWithAmm,
		reservePrice,
		num.BN(constants.AMMToQuotePrecisionRatio*constants.PricePrecision),
	)
	if err != nil {
		return nil, err
	}
	gap := num.Max(num.BN(0), num.Sub(localBaseValue, netBaseValue))
	leveragePct, err := num.MulDiv(
		gap,
		num.BN(constants.PercentagePrecision),
		num.Add(a.TotalFeeMinusDistributions, num.BN(1)),
	)
	if err != nil {
		return nil, err
	}
	return num.Min(full, num.Add(num.BN(constants.PercentagePrecision), leveragePct)), nil
}

// UpdateSpreads recomputes long/short spread from the current oracle record
// and curve state, then refreshes the last-seen oracle divergence and
// confidence. When curve intensity or base spread is zero the spread
// collapses to half the base spread on each side.
func (a *AMM) UpdateSpreads(data *oracle.PriceData) error {
	if a.BaseSpread == 0 || a.CurveUpdateIntensity == 0 {
		a.LongSpread = a.BaseSpread / 2
		a.ShortSpread = a.BaseSpread / 2
		return nil
	}

	reservePrice, err := a.ReservePrice()
	if err != nil {
		return err
	}
	reservePrice = num.Max(reservePrice, num.BN(1))

	targetPrice := reservePrice
	if data != nil && data.Price.Sign() > 0 {
		targetPrice = data.Price
	}
	markSpreadPct, err := num.MulDiv(
		num.Sub(reservePrice, targetPrice),
		num.BN(constants.BidAskSpreadPrecision),
		reservePrice,
	)
	if err != nil {
		return err
	}

	confPct := num.Clone(a.LastOracleConfPct)
	if data != nil {
		confPct, err = oracle.ConfidencePct(data, reservePrice)
		if err != nil {
			return err
		}
	}

	longVol, shortVol, err := a.volSpreads(confPct, reservePrice)
	if err != nil {
		return err
	}
	longSpread := num.Max(num.BN(a.BaseSpread/2), longVol)
	shortSpread := num.Max(num.BN(a.BaseSpread/2), shortVol)

	// Oracle-vs-mark divergence widens the side takers would exploit: a
	// rich mark (mark > oracle) widens shorts, a cheap one longs.
	if markSpreadPct.Sign() > 0 {
		shortSpread = num.Max(shortSpread, num.Add(num.Abs(markSpreadPct), shortVol))
	} else if markSpreadPct.Sign() < 0 {
		longSpread = num.Max(longSpread, num.Add(num.Abs(markSpreadPct), longVol))
	}

	stdPct, err := num.MulDiv(
		num.Max(a.MarkStd, a.OracleStd),
		num.BN(constants.PercentagePrecision),
		reservePrice,
	)
	if err != nil {
		return err
	}
	baseline := num.Min(
		num.Max(num.Abs(markSpreadPct), num.Max(num.Mul(confPct, num.BN(2)), stdPct)),
		num.BN(constants.BidAskSpreadPrecision),
	)
	maxTargetSpread, err := num.ToInt64(num.Min(num.BN(a.MaxSpread), baseline))
	if err != nil {
		return err
	}

	directional := shortSpread
	if a.BaseAssetAmountWithAmm.Sign() > 0 {
		directional = longSpread
	}
	dirSpread, err := num.ToInt64(directional)
	if err != nil {
		return err
	}
	invScale, err := a.inventoryScalePct(dirSpread, maxTargetSpread)
	if err != nil {
		return err
	}
	if a.BaseAssetAmountWithAmm.Sign() > 0 {
		longSpread, err = num.MulDiv(longSpread, invScale, num.BN(constants.PercentagePrecision))
	} else if a.BaseAssetAmountWithAmm.Sign() < 0 {
		shortSpread, err = num.MulDiv(shortSpread, invScale, num.BN(constants.PercentagePrecision))
	}
	if err != nil {
		return err
	}

	feeScale, err := a.feeHealthScalePct(reservePrice)
	if err != nil {
		return err
	}
	if a.BaseAssetAmountWithAmm.Sign() >= 0 {
		longSpread, err = num.MulDiv(longSpread, feeScale, num.BN(constants.PercentagePrecision))
	} else {
		shortSpread, err = num.MulDiv(shortSpread, feeScale, num.BN(constants.PercentagePrecision))
	}
	if err != nil {
		return err
	}

	// Revenue retreat: thin recent fee revenue widens both sides, the
	// inventory-heavy side twice as fast.
	if num.BN(a.NetRevenueSinceLastFunding).Cmp(revenueRetreatThreshold) < 0 {
		maxRetreat := maxTargetSpread / 10
		retreat := maxRetreat
		if num.BN(a.NetRevenueSinceLastFunding).Cmp(num.Mul(revenueRetreatThreshold, num.BN(1000))) >= 0 {
			proportional, err := num.MulDiv(
				num.BN(a.BaseSpread),
				num.Abs(num.BN(a.NetRevenueSinceLastFunding)),
				num.Abs(revenueRetreatThreshold),
			)
			if err != nil {
				return err
			}
			p, err := num.ToInt64(proportional)
			if err != nil {
				return err
			}
			if p < retreat {
				retreat = p
			}
		}
		half := retreat / 2
		switch a.BaseAssetAmountWithAmm.Sign() {
		case 1:
			longSpread = num.Add(longSpread, num.BN(retreat))
			shortSpread = num.Add(shortSpread, num.BN(half))
		case -1:
			longSpread = num.Add(longSpread, num.BN(half))
			shortSpread = num.Add(shortSpread, num.BN(retreat))
		default:
			longSpread = num.Add(longSpread, num.BN(half))
			shortSpread = num.Add(shortSpread, num.BN(half))
		}
	}

	// Shrink proportionally when the pair exceeds the target ceiling.
	total := num.Add(longSpread, shortSpread)
	if total.Cmp(num.BN(maxTargetSpread)) > 0 && total.Sign() > 0 {
		if longSpread.Cmp(shortSpread) > 0 {
			longSpread, err = num.CeilDiv(num.Mul(longSpread, num.BN(maxTargetSpread)), total)
			if err != nil {
				return err
			}
			shortSpread = num.Sub(num.BN(maxTargetSpread), longSpread)
		} else {
			shortSpread, err = num.CeilDiv(num.Mul(shortSpread, num.BN(maxTargetSpread)), total)
			if err != nil {
				return err
			}
			longSpread = num.Sub(num.BN(maxTargetSpread), shortSpread)
		}
	}

	long64, err := num.ToInt64(num.Clamp(longSpread, num.BN(0), num.BN(a.MaxSpread)))
	if err != nil {
		return err
	}
	short64, err := num.ToInt64(num.Clamp(shortSpread, num.BN(0), num.BN(a.MaxSpread)))
	if err != nil {
		return err
	}
	a.LongSpread = long64
	a.ShortSpread = short64
	a.LastOracleConfPct = confPct
	return nil
}
