package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
)

// MarketSnapshot is the serializable curve and risk state of one perp
// market. big.Int fields marshal as arbitrary-precision JSON numbers, so no
// reserve value is truncated on the way to Postgres.
type MarketSnapshot struct {
	MarketIndex uint16 `json:"market_index"`
	Symbol      string `json:"symbol"`
	Status      int    `json:"status"`

	BaseAssetReserve          *big.Int `json:"base_asset_reserve"`
	QuoteAssetReserve         *big.Int `json:"quote_asset_reserve"`
	SqrtK                     *big.Int `json:"sqrt_k"`
	PegMultiplier             *big.Int `json:"peg_multiplier"`
	TerminalQuoteAssetReserve *big.Int `json:"terminal_quote_asset_reserve"`
	MinBaseAssetReserve       *big.Int `json:"min_base_asset_reserve"`
	MaxBaseAssetReserve       *big.Int `json:"max_base_asset_reserve"`

	LongSpread  int64 `json:"long_spread"`
	ShortSpread int64 `json:"short_spread"`

	LastMarkPriceTwap       *big.Int `json:"last_mark_price_twap"`
	LastMarkPriceTwap5Min   *big.Int `json:"last_mark_price_twap_5min"`
	LastMarkPriceTwapTs     int64    `json:"last_mark_price_twap_ts"`
	LastOraclePriceTwap     *big.Int `json:"last_oracle_price_twap"`
	LastOraclePriceTwap5Min *big.Int `json:"last_oracle_price_twap_5min"`
	LastOraclePriceTwapTs   int64    `json:"last_oracle_price_twap_ts"`

	BaseAssetAmountWithAmm     *big.Int `json:"base_asset_amount_with_amm"`
	CumulativeFundingRateLong  *big.Int `json:"cumulative_funding_rate_long"`
	CumulativeFundingRateShort *big.Int `json:"cumulative_funding_rate_short"`

	TotalFee                   *big.Int `json:"total_fee"`
	TotalFeeMinusDistributions *big.Int `json:"total_fee_minus_distributions"`

	CreatedAt time.Time `json:"created_at"`
}

// BuildMarketSnapshot captures one market's persistable state. Values are
// copied so the snapshot stays stable while later mutations land.
func BuildMarketSnapshot(market *state.PerpMarket, now time.Time) *MarketSnapshot {
	a := market.Amm
	return &MarketSnapshot{
		MarketIndex:                market.MarketIndex,
		Symbol:                     market.Symbol,
		Status:                     int(market.Status),
		BaseAssetReserve:           num.Clone(a.BaseAssetReserve),
		QuoteAssetReserve:          num.Clone(a.QuoteAssetReserve),
		SqrtK:                      num.Clone(a.SqrtK),
		PegMultiplier:              num.Clone(a.PegMultiplier),
		TerminalQuoteAssetReserve:  num.Clone(a.TerminalQuoteAssetReserve),
		MinBaseAssetReserve:        num.Clone(a.MinBaseAssetReserve),
		MaxBaseAssetReserve:        num.Clone(a.MaxBaseAssetReserve),
		LongSpread:                 a.LongSpread,
		ShortSpread:                a.ShortSpread,
		LastMarkPriceTwap:          num.Clone(a.LastMarkPriceTwap),
		LastMarkPriceTwap5Min:      num.Clone(a.LastMarkPriceTwap5Min),
		LastMarkPriceTwapTs:        a.LastMarkPriceTwapTs,
		LastOraclePriceTwap:        num.Clone(a.LastOraclePriceTwap),
		LastOraclePriceTwap5Min:    num.Clone(a.LastOraclePriceTwap5Min),
		LastOraclePriceTwapTs:      a.LastOraclePriceTwapTs,
		BaseAssetAmountWithAmm:     num.Clone(a.BaseAssetAmountWithAmm),
		CumulativeFundingRateLong:  num.Clone(a.CumulativeFundingRateLong),
		CumulativeFundingRateShort: num.Clone(a.CumulativeFundingRateShort),
		TotalFee:                   num.Clone(a.TotalFee),
		TotalFeeMinusDistributions: num.Clone(a.TotalFeeMinusDistributions),
		CreatedAt:                  now,
	}
}

// Restore writes the snapshot back into a market's curve. Used on warm
// restart before ingestion resumes.
func (s *MarketSnapshot) Restore(market *state.PerpMarket) error {
	if market.MarketIndex != s.MarketIndex {
		return fmt.Errorf("snapshot for market %d applied to market %d", s.MarketIndex, market.MarketIndex)
	}
	a := market.Amm
	a.BaseAssetReserve = s.BaseAssetReserve
	a.QuoteAssetReserve = s.QuoteAssetReserve
	a.SqrtK = s.SqrtK
	a.PegMultiplier = s.PegMultiplier
	a.TerminalQuoteAssetReserve = s.TerminalQuoteAssetReserve
	a.MinBaseAssetReserve = s.MinBaseAssetReserve
	a.MaxBaseAssetReserve = s.MaxBaseAssetReserve
	a.LongSpread = s.LongSpread
	a.ShortSpread = s.ShortSpread
	a.LastMarkPriceTwap = s.LastMarkPriceTwap
	a.LastMarkPriceTwap5Min = s.LastMarkPriceTwap5Min
	a.LastMarkPriceTwapTs = s.LastMarkPriceTwapTs
	a.LastOraclePriceTwap = s.LastOraclePriceTwap
	a.LastOraclePriceTwap5Min = s.LastOraclePriceTwap5Min
	a.LastOraclePriceTwapTs = s.LastOraclePriceTwapTs
	a.BaseAssetAmountWithAmm = s.BaseAssetAmountWithAmm
	a.CumulativeFundingRateLong = s.CumulativeFundingRateLong
	a.CumulativeFundingRateShort = s.CumulativeFundingRateShort
	a.TotalFee = s.TotalFee
	a.TotalFeeMinusDistributions = s.TotalFeeMinusDistributions
	market.Status = state.MarketStatus(s.Status)
	if err := a.ValidateInvariant(); err != nil {
		return fmt.Errorf("restored curve invalid: %w", err)
	}
	return nil
}

// SnapshotStore saves and loads market snapshots in Postgres.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// LoadLatest loads the most recent snapshot for one market. Returns nil
// with no error when the market has never been snapshotted (cold start).
func (ss *SnapshotStore) LoadLatest(ctx context.Context, marketIndex uint16) (*MarketSnapshot, error) {
	row := ss.db.QueryRowContext(ctx, `
		SELECT payload FROM risk.market_snapshots
		WHERE market_index = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, marketIndex)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
