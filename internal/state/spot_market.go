package state

import (
	"fmt"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/oracle"
)

// AssetTier classifies spot markets for collateral and isolation rules.
type AssetTier int

const (
	AssetTierCollateral AssetTier = iota
	AssetTierProtected
	AssetTierCross
	AssetTierIsolated
	AssetTierUnlisted
)

// IsIsolated reports whether borrowing this asset must be a user's only
// liability.
func (t AssetTier) IsIsolated() bool { return t == AssetTierIsolated }

// QuoteSpotMarketIndex is the index of the quote (collateral) market.
const QuoteSpotMarketIndex uint16 = 0

// BalanceType is the sign of a spot balance.
type BalanceType int

const (
	BalanceTypeDeposit BalanceType = iota
	BalanceTypeBorrow
)

// SpotMarket is one spot asset's risk configuration. The quote asset is
// always market index zero with unit weights.
type SpotMarket struct {
	MarketIndex uint16
	Symbol      string
	Tier        AssetTier

	// Weights, SpotWeightPrecision scale.
	InitialAssetWeight         int64
	MaintenanceAssetWeight     int64
	InitialLiabilityWeight     int64
	MaintenanceLiabilityWeight int64
	IMFFactor                  int64

	// Interest indexes maintained externally; token amounts derive from
	// them. SpotCumulativeInterestPrecision scale.
	CumulativeDepositInterest *big.Int
	CumulativeBorrowInterest  *big.Int

	// Historical oracle TWAPs the valuation worst-cases against.
	LastOraclePriceTwap5Min *big.Int
	LastOracleTs            int64

	OracleGuards oracle.Guards
}

// IsQuoteMarket reports whether this is the quote (collateral) asset.
func (m *SpotMarket) IsQuoteMarket() bool { return m.MarketIndex == QuoteSpotMarketIndex }

// Validate rejects malformed weight configuration.
func (m *SpotMarket) Validate() error {
	if m.InitialAssetWeight > constants.SpotWeightPrecision || m.InitialAssetWeight < 0 {
		return fmt.Errorf("%w: initial asset weight out of range", amm.ErrInvalidInput)
	}
	if m.MaintenanceAssetWeight < m.InitialAssetWeight {
		return fmt.Errorf("%w: maintenance asset weight below initial", amm.ErrInvalidInput)
	}
	if m.InitialLiabilityWeight < m.MaintenanceLiabilityWeight {
		return fmt.Errorf("%w: initial liability weight below maintenance", amm.ErrInvalidInput)
	}
	if m.MaintenanceLiabilityWeight < constants.SpotWeightPrecision {
		return fmt.Errorf("%w: liability weight below 100%%", amm.ErrInvalidInput)
	}
	if m.CumulativeDepositInterest == nil || m.CumulativeDepositInterest.Sign() <= 0 ||
		m.CumulativeBorrowInterest == nil || m.CumulativeBorrowInterest.Sign() <= 0 {
		return fmt.Errorf("%w: interest indexes must be positive", amm.ErrInvalidInput)
	}
	return nil
}

// TokenAmount converts a scaled balance into tokens through the interest
// index for its side: deposits round down, borrows round up against the
// user.
func (m *SpotMarket) TokenAmount(scaledBalance *big.Int, balanceType BalanceType) (*big.Int, error) {
	if scaledBalance.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative scaled balance", amm.ErrInvalidInput)
	}
	index := m.CumulativeDepositInterest
	if balanceType == BalanceTypeBorrow {
		index = m.CumulativeBorrowInterest
	}
	raw := num.Mul(scaledBalance, index)
	precision := num.BN(constants.SpotCumulativeInterestPrecision)
	if balanceType == BalanceTypeBorrow {
		return num.CeilDiv(raw, precision)
	}
	return num.Div(raw, precision)
}

// AssetWeight returns the size-discounted asset weight for a deposit of the
// given quote-denominated size.
func (m *SpotMarket) AssetWeight(size *big.Int, initial bool) (int64, error) {
	base := m.MaintenanceAssetWeight
	if initial {
		base = m.InitialAssetWeight
	}
	if !initial {
		return base, nil
	}
	return SizeDiscountWeight(size, m.IMFFactor, base, constants.SpotWeightPrecision)
}

// LiabilityWeight returns the size-premium liability weight for a borrow of
// the given quote-denominated size.
func (m *SpotMarket) LiabilityWeight(size *big.Int, initial bool) (int64, error) {
	base := m.MaintenanceLiabilityWeight
	if initial {
		base = m.InitialLiabilityWeight
	}
	if !initial {
		return base, nil
	}
	return SizePremiumWeight(size, m.IMFFactor, base, constants.SpotWeightPrecision)
}

// WorstOraclePrice picks the worse of the spot oracle price and the 5-minute
// TWAP for the position's sign: assets value at the lower, liabilities at
// the higher.
func (m *SpotMarket) WorstOraclePrice(data *oracle.PriceData, isLiability bool) *big.Int {
	price := data.Price
	twap := m.LastOraclePriceTwap5Min
	if twap == nil || twap.Sign() <= 0 {
		return price
	}
	if isLiability {
		return num.Max(price, twap)
	}
	return num.Min(price, twap)
}
