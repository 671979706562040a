// Package state holds the entity model the engines compute over: perp and
// spot market configuration, user positions, and the in-memory stores keyed
// by market index and user id. The engines mutate nothing here directly;
// callers pass entities in by reference and persist what comes back.
package state

import (
	"fmt"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/oracle"
)

// MarketStatus gates which operations a perp market accepts.
type MarketStatus int

const (
	MarketStatusActive MarketStatus = iota
	MarketStatusReduceOnly
	MarketStatusSettlement
	MarketStatusSettled
)

func (s MarketStatus) String() string {
	switch s {
	case MarketStatusActive:
		return "Active"
	case MarketStatusReduceOnly:
		return "ReduceOnly"
	case MarketStatusSettlement:
		return "Settlement"
	case MarketStatusSettled:
		return "Settled"
	default:
		return "Unknown"
	}
}

// ContractTier classifies perp markets for risk isolation.
type ContractTier int

const (
	ContractTierA ContractTier = iota
	ContractTierB
	ContractTierC
	ContractTierSpeculative
	ContractTierIsolated
)

// IsIsolated reports whether positions in this tier must be a user's only
// liability.
func (t ContractTier) IsIsolated() bool { return t == ContractTierIsolated }

// PerpMarket is one perpetual market's configuration plus its curve.
type PerpMarket struct {
	MarketIndex uint16
	Symbol      string
	Status      MarketStatus
	Tier        ContractTier

	Amm *amm.AMM

	// Margin ratio curve, MarginPrecision scale.
	MarginRatioInitial     int64
	MarginRatioMaintenance int64
	// IMFFactor steepens the initial ratio with position size. IMFPrecision.
	IMFFactor int64

	// UnrealizedPnLInitialAssetWeight haircuts positive PnL counted as
	// collateral. SpotWeightPrecision.
	UnrealizedPnLInitialAssetWeight int64
	// UnrealizedPnLMaxImbalance hard-caps positive PnL for initial margin.
	// QuotePrecision; zero disables the cap.
	UnrealizedPnLMaxImbalance *big.Int

	// ExpirySettlementPrice freezes valuation once Status is Settled.
	ExpirySettlementPrice *big.Int

	OracleGuards oracle.Guards
}

// Validate rejects malformed market configuration pre-insertion.
func (m *PerpMarket) Validate() error {
	if m.Amm == nil {
		return fmt.Errorf("%w: market %d has no curve", amm.ErrInvalidInput, m.MarketIndex)
	}
	if m.MarginRatioMaintenance <= 0 {
		return fmt.Errorf("%w: maintenance margin ratio must be positive", amm.ErrInvalidInput)
	}
	if m.MarginRatioInitial < m.MarginRatioMaintenance {
		return fmt.Errorf("%w: initial margin ratio %d below maintenance %d",
			amm.ErrInvalidInput, m.MarginRatioInitial, m.MarginRatioMaintenance)
	}
	if m.MarginRatioInitial >= constants.MarginPrecision {
		return fmt.Errorf("%w: initial margin ratio must be below 100%%", amm.ErrInvalidInput)
	}
	return nil
}

// MarginRatio returns the margin ratio for a worst-case base size in the
// requested mode. Initial ratios steepen with size through the IMF premium
// curve; maintenance ratios do not. The ratio never drops below the
// configured floor.
func (m *PerpMarket) MarginRatio(size *big.Int, initial bool) (int64, error) {
	if !initial {
		return m.MarginRatioMaintenance, nil
	}
	if m.IMFFactor == 0 {
		return m.MarginRatioInitial, nil
	}
	premium, err := SizePremiumWeight(size, m.IMFFactor, m.MarginRatioInitial, constants.MarginPrecision)
	if err != nil {
		return 0, err
	}
	if premium > m.MarginRatioInitial {
		return premium, nil
	}
	return m.MarginRatioInitial, nil
}

// SettlementPrice returns the valuation price: the frozen expiry price once
// settled, the oracle otherwise.
func (m *PerpMarket) SettlementPrice(oraclePrice *big.Int) *big.Int {
	if m.Status == MarketStatusSettled && m.ExpirySettlementPrice != nil && m.ExpirySettlementPrice.Sign() > 0 {
		return m.ExpirySettlementPrice
	}
	return oraclePrice
}

// SizeDiscountWeight shrinks an asset weight as position size grows past the
// IMF threshold: weight' = 1.1 * base / (1 + sqrt(size*10) * imf / 1e5),
// never above the configured weight. size carries QuotePrecision, imfFactor
// IMFPrecision, weights the given precision.
func SizeDiscountWeight(size *big.Int, imfFactor, weight, precision int64) (int64, error) {
	if imfFactor == 0 {
		return weight, nil
	}
	sizeSqrt, err := num.Sqrt(num.Add(num.Mul(num.Abs(size), num.BN(10)), num.BN(1)))
	if err != nil {
		return 0, err
	}
	imfTerm, err := num.MulDiv(sizeSqrt, num.BN(imfFactor), num.BN(100_000))
	if err != nil {
		return 0, err
	}
	numerator := num.BN(constants.IMFPrecision + constants.IMFPrecision/10)
	discounted, err := num.Div(
		num.Mul(numerator, num.BN(precision)),
		num.Add(num.BN(constants.IMFPrecision), imfTerm),
	)
	if err != nil {
		return 0, err
	}
	d, err := num.ToInt64(discounted)
	if err != nil {
		return 0, err
	}
	if d < weight {
		return d, nil
	}
	return weight, nil
}

// SizePremiumWeight is the mirror-image liability curve: weight' = 0.8 *
// base + sqrt(size*10) * imf * precision_adj, never below the configured
// weight.
func SizePremiumWeight(size *big.Int, imfFactor, weight, precision int64) (int64, error) {
	if imfFactor == 0 {
		return weight, nil
	}
	sizeSqrt, err := num.Sqrt(num.Add(num.Mul(num.Abs(size), num.BN(10)), num.BN(1)))
	if err != nil {
		return 0, err
	}
	denomAdjust := constants.IMFPrecision / precision
	if denomAdjust <= 0 {
		denomAdjust = 1
	}
	imfTerm, err := num.Div(
		num.Mul(sizeSqrt, num.BN(imfFactor)),
		num.BN(100_000*denomAdjust),
	)
	if err != nil {
		return 0, err
	}
	baseline := weight - weight/5
	premium, err := num.ToInt64(num.Add(num.BN(baseline), imfTerm))
	if err != nil {
		return 0, err
	}
	if premium > weight {
		return premium, nil
	}
	return weight, nil
}
