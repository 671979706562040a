package query

import "github.com/google/uuid"

// MarginResponse is one account valuation for API queries. Amount fields
// are decimal strings in quote precision.
type MarginResponse struct {
	UserID                uuid.UUID `json:"user_id"`
	Mode                  string    `json:"mode"`
	TotalCollateral       string    `json:"total_collateral"`
	MarginRequirement     string    `json:"margin_requirement"`
	FreeCollateral        string    `json:"free_collateral"`
	TotalPerpPnL          string    `json:"total_perp_pnl"`
	NumSpotLiabilities    int       `json:"num_spot_liabilities"`
	NumPerpLiabilities    int       `json:"num_perp_liabilities"`
	WithIsolatedLiability bool      `json:"with_isolated_liability"`
	AllOraclesValid       bool      `json:"all_oracles_valid"`
	MeetsRequirement      bool      `json:"meets_requirement"`
	CanExerciseRisk       bool      `json:"can_exercise_risk"`
}

// BidAskResponse is the current quoted prices for one perp market.
// Prices are decimal strings in price precision.
type BidAskResponse struct {
	MarketIndex  uint16 `json:"market_index"`
	Symbol       string `json:"symbol"`
	Bid          string `json:"bid"`
	Ask          string `json:"ask"`
	ReservePrice string `json:"reserve_price"`
	LongSpread   int64  `json:"long_spread"`
	ShortSpread  int64  `json:"short_spread"`
}

// MarketResponse is the full curve state of one perp market.
type MarketResponse struct {
	MarketIndex uint16 `json:"market_index"`
	Symbol      string `json:"symbol"`
	Status      string `json:"status"`

	BaseAssetReserve  string `json:"base_asset_reserve"`
	QuoteAssetReserve string `json:"quote_asset_reserve"`
	SqrtK             string `json:"sqrt_k"`
	PegMultiplier     string `json:"peg_multiplier"`

	LastMarkPriceTwap       string `json:"last_mark_price_twap"`
	LastMarkPriceTwap5Min   string `json:"last_mark_price_twap_5min"`
	LastOraclePriceTwap     string `json:"last_oracle_price_twap"`
	LastOraclePriceTwap5Min string `json:"last_oracle_price_twap_5min"`

	BaseAssetAmountWithAmm     string `json:"base_asset_amount_with_amm"`
	CumulativeFundingRateLong  string `json:"cumulative_funding_rate_long"`
	CumulativeFundingRateShort string `json:"cumulative_funding_rate_short"`

	MaxFillableLong  string `json:"max_fillable_long"`
	MaxFillableShort string `json:"max_fillable_short"`
}

// PerpPositionResponse is one open perp position with its cost-basis
// accounting: quote_entry_amount excludes fees, quote_break_even_amount
// includes them. unrealized_pnl is valued at the market's settlement price
// and excludes pending funding, which is reported separately; both are
// omitted while the market has no oracle record.
type PerpPositionResponse struct {
	MarketIndex          uint16 `json:"market_index"`
	Symbol               string `json:"symbol"`
	BaseAssetAmount      string `json:"base_asset_amount"`
	QuoteAssetAmount     string `json:"quote_asset_amount"`
	QuoteEntryAmount     string `json:"quote_entry_amount"`
	QuoteBreakEvenAmount string `json:"quote_break_even_amount"`
	OpenOrders           int64  `json:"open_orders"`
	UnrealizedPnL        string `json:"unrealized_pnl,omitempty"`
	UnrealizedFunding    string `json:"unrealized_funding,omitempty"`
}

// PositionsResponse lists one user's open perp positions.
type PositionsResponse struct {
	UserID uuid.UUID              `json:"user_id"`
	Perp   []PerpPositionResponse `json:"perp"`
}

// MaxWithdrawableResponse is the margin-constrained withdrawal limit for
// one spot market, in token precision.
type MaxWithdrawableResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	MarketIndex uint16    `json:"market_index"`
	TokenAmount string    `json:"token_amount"`
}
