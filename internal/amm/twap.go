package amm

import (
	"fmt"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
)

// CalculateWeightedTWAP decays oldAvg toward newValue over the period:
// (old * max(period-dt, 0) + new * dt) / period. When dt >= period the new
// value wins outright; dt == 0 leaves the average unchanged.
func CalculateWeightedTWAP(newValue, oldAvg *big.Int, dt, period int64) (*big.Int, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: non-positive twap period", ErrInvalidInput)
	}
	if dt < 0 {
		return nil, fmt.Errorf("%w: negative twap elapsed time", ErrInvalidInput)
	}
	if dt == 0 {
		return num.Clone(oldAvg), nil
	}
	if dt >= period {
		return num.Clone(newValue), nil
	}
	oldWeight := period - dt
	weighted := num.Add(
		num.Mul(oldAvg, num.BN(oldWeight)),
		num.Mul(newValue, num.BN(dt)),
	)
	return num.FloorDiv(weighted, num.BN(period))
}

// ClampTWAPUpdate bounds a new observation to within maxChangeFraction
// (PercentagePrecision scale) of the prior average before it enters the TWAP.
// Zero disables clamping.
func ClampTWAPUpdate(newValue, oldAvg *big.Int, maxChangeFraction int64) (*big.Int, error) {
	if maxChangeFraction < 0 {
		return nil, fmt.Errorf("%w: negative twap clamp", ErrInvalidInput)
	}
	if maxChangeFraction == 0 || oldAvg.Sign() == 0 {
		return num.Clone(newValue), nil
	}
	limit, err := num.MulDiv(num.Abs(oldAvg), num.BN(maxChangeFraction), num.BN(constants.PercentagePrecision))
	if err != nil {
		return nil, err
	}
	limit = num.Max(limit, num.BN(1))
	lo := num.Sub(oldAvg, limit)
	hi := num.Add(oldAvg, limit)
	return num.Clone(num.Clamp(newValue, lo, hi)), nil
}

// RollingSum decays the accumulated 1-hour sum toward a new absolute
// observation: the same weighted-average shape, applied to magnitudes.
func RollingSum(oldSum, newAbs *big.Int, dt, window int64) (*big.Int, error) {
	if dt <= 0 {
		dt = 1
	}
	weight := window - dt
	if weight < 0 {
		weight = 0
	}
	decayed, err := num.FloorDiv(num.Mul(oldSum, num.BN(weight)), num.BN(window))
	if err != nil {
		return nil, err
	}
	return num.Add(decayed, newAbs), nil
}

// UpdateMarkTWAP folds a fill price into the funding-period and 5-minute mark
// TWAPs, and refreshes the rolling mark dispersion. maxChangeFraction bounds
// the accepted jump (0 disables it).
func (a *AMM) UpdateMarkTWAP(price *big.Int, now int64, maxChangeFraction int64) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive mark price", ErrInvalidInput)
	}
	dt := now - a.LastMarkPriceTwapTs
	if dt < 0 {
		return fmt.Errorf("%w: mark twap timestamp regression", ErrInvalidInput)
	}

	clamped, err := ClampTWAPUpdate(price, a.LastMarkPriceTwap, maxChangeFraction)
	if err != nil {
		return err
	}
	newTwap, err := CalculateWeightedTWAP(clamped, a.LastMarkPriceTwap, dt, a.FundingPeriod)
	if err != nil {
		return err
	}
	newTwap5, err := CalculateWeightedTWAP(clamped, a.LastMarkPriceTwap5Min, dt, constants.FiveMinuteSeconds)
	if err != nil {
		return err
	}
	newStd, err := RollingSum(a.MarkStd, num.Abs(num.Sub(clamped, a.LastMarkPriceTwap)), dt, constants.OneHourSeconds)
	if err != nil {
		return err
	}

	a.LastMarkPriceTwap = newTwap
	a.LastMarkPriceTwap5Min = newTwap5
	a.MarkStd = newStd
	a.LastMarkPriceTwapTs = now
	return nil
}

// UpdateOracleTWAP folds a consumed oracle price into the oracle TWAPs and
// dispersion tracker.
func (a *AMM) UpdateOracleTWAP(price *big.Int, now int64, maxChangeFraction int64) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive oracle price", ErrInvalidInput)
	}
	dt := now - a.LastOraclePriceTwapTs
	if dt < 0 {
		return fmt.Errorf("%w: oracle twap timestamp regression", ErrInvalidInput)
	}

	clamped, err := ClampTWAPUpdate(price, a.LastOraclePriceTwap, maxChangeFraction)
	if err != nil {
		return err
	}
	newTwap, err := CalculateWeightedTWAP(clamped, a.LastOraclePriceTwap, dt, a.FundingPeriod)
	if err != nil {
		return err
	}
	newTwap5, err := CalculateWeightedTWAP(clamped, a.LastOraclePriceTwap5Min, dt, constants.FiveMinuteSeconds)
	if err != nil {
		return err
	}
	newStd, err := RollingSum(a.OracleStd, num.Abs(num.Sub(clamped, a.LastOraclePrice)), dt, constants.OneHourSeconds)
	if err != nil {
		return err
	}

	a.LastOraclePrice = num.Clone(clamped)
	a.LastOraclePriceTwap = newTwap
	a.LastOraclePriceTwap5Min = newTwap5
	a.OracleStd = newStd
	a.LastOraclePriceTwapTs = now
	return nil
}
