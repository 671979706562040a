// Package oracle defines the consumed oracle price record and its validity
// rules. The engine never fetches prices; callers pass an OraclePriceData
// snapshot into each call together with the current slot.
package oracle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
)

// ErrStaleOracle reports an oracle record that fails the guard rails. Margin
// calculations complete anyway and carry a validity flag; gated actions fail.
var ErrStaleOracle = errors.New("stale or invalid oracle")

// PriceData is one oracle observation for one asset.
type PriceData struct {
	Price      *big.Int // price precision, > 0 for a usable record
	Confidence *big.Int // price precision, one-sided interval
	Delay      int64    // slots between publish and the current slot
	HasEnough  bool     // publisher quorum reached upstream
}

// Guards bounds how far an oracle record may drift before it is unusable.
type Guards struct {
	MaxDelay         int64 // slots
	MaxConfidenceBps int64 // confidence / price ceiling, bps
	MaxOracleTwapBps int64 // |price - twap| / twap ceiling, bps
	NonPositiveFatal bool
}

// DefaultGuards mirror the production validity envelope.
func DefaultGuards() Guards {
	return Guards{
		MaxDelay:         20,
		MaxConfidenceBps: 2_000,
		MaxOracleTwapBps: 6_000,
		NonPositiveFatal: true,
	}
}

// Validate reports nil when the record is usable for pricing and risk.
// lastTwap may be nil when no history exists yet.
func Validate(data *PriceData, guards Guards, lastTwap *big.Int) error {
	if data == nil {
		return fmt.Errorf("%w: missing price data", ErrStaleOracle)
	}
	if guards.NonPositiveFatal && data.Price.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive price", ErrStaleOracle)
	}
	if !data.HasEnough {
		return fmt.Errorf("%w: insufficient publishers", ErrStaleOracle)
	}
	if data.Delay > guards.MaxDelay {
		return fmt.Errorf("%w: delay %d slots exceeds %d", ErrStaleOracle, data.Delay, guards.MaxDelay)
	}
	confBps, err := ConfidenceBps(data)
	if err != nil {
		return err
	}
	if confBps > guards.MaxConfidenceBps {
		return fmt.Errorf("%w: confidence %d bps exceeds %d", ErrStaleOracle, confBps, guards.MaxConfidenceBps)
	}
	if lastTwap != nil && lastTwap.Sign() > 0 {
		gap := num.Abs(num.Sub(data.Price, lastTwap))
		gapBps, err := num.MulDiv(gap, num.BN(10_000), lastTwap)
		if err != nil {
			return err
		}
		if gapBps.Cmp(num.BN(guards.MaxOracleTwapBps)) > 0 {
			return fmt.Errorf("%w: price diverges %s bps from twap", ErrStaleOracle, gapBps)
		}
	}
	return nil
}

// ConfidenceBps returns confidence as basis points of price.
func ConfidenceBps(data *PriceData) (int64, error) {
	if data.Price.Sign() <= 0 {
		return 0, fmt.Errorf("%w: non-positive price", ErrStaleOracle)
	}
	bps, err := num.MulDiv(num.Abs(data.Confidence), num.BN(10_000), data.Price)
	if err != nil {
		return 0, err
	}
	return num.ToInt64(bps)
}

// ConfidencePct returns confidence as a PercentagePrecision fraction of the
// given reference price (normally the reserve price), floored at zero.
func ConfidencePct(data *PriceData, referencePrice *big.Int) (*big.Int, error) {
	if referencePrice.Sign() <= 0 {
		return nil, num.ErrMathOverflow
	}
	return num.MulDiv(num.Abs(data.Confidence), num.BN(constants.PercentagePrecision), referencePrice)
}
