package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/oracle"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
)

// marketsFile is the JSON market-definitions document loaded at startup.
// Big amounts are decimal strings; precisions follow the engine contract
// (reserves 1e9, peg/price/quote 1e6, margin ratios 1e4, weights 1e4).
type marketsFile struct {
	PerpMarkets []perpMarketConfig `json:"perp_markets"`
	SpotMarkets []spotMarketConfig `json:"spot_markets"`
}

type perpMarketConfig struct {
	MarketIndex uint16 `json:"market_index"`
	Symbol      string `json:"symbol"`
	Tier        string `json:"tier"`

	BaseAssetReserve  string `json:"base_asset_reserve"`
	QuoteAssetReserve string `json:"quote_asset_reserve"`
	PegMultiplier     string `json:"peg_multiplier"`
	ConcentrationCoef string `json:"concentration_coef,omitempty"`
	BaseSpread        int64  `json:"base_spread"`
	MaxSpread         int64  `json:"max_spread"`
	OrderStepSize     int64  `json:"order_step_size"`
	OrderTickSize     int64  `json:"order_tick_size"`
	FundingPeriod     int64  `json:"funding_period"`

	MarginRatioInitial     int64 `json:"margin_ratio_initial"`
	MarginRatioMaintenance int64 `json:"margin_ratio_maintenance"`
	IMFFactor              int64 `json:"imf_factor"`

	UnrealizedPnLInitialAssetWeight int64  `json:"unrealized_pnl_initial_asset_weight"`
	UnrealizedPnLMaxImbalance       string `json:"unrealized_pnl_max_imbalance,omitempty"`

	OracleGuards *guardsConfig `json:"oracle_guards,omitempty"`
}

type spotMarketConfig struct {
	MarketIndex uint16 `json:"market_index"`
	Symbol      string `json:"symbol"`
	Tier        string `json:"tier"`

	InitialAssetWeight         int64 `json:"initial_asset_weight"`
	MaintenanceAssetWeight     int64 `json:"maintenance_asset_weight"`
	InitialLiabilityWeight     int64 `json:"initial_liability_weight"`
	MaintenanceLiabilityWeight int64 `json:"maintenance_liability_weight"`
	IMFFactor                  int64 `json:"imf_factor"`

	CumulativeDepositInterest string `json:"cumulative_deposit_interest"`
	CumulativeBorrowInterest  string `json:"cumulative_borrow_interest"`

	OracleGuards *guardsConfig `json:"oracle_guards,omitempty"`
}

type guardsConfig struct {
	MaxDelay         int64 `json:"max_delay"`
	MaxConfidenceBps int64 `json:"max_confidence_bps"`
	MaxOracleTwapBps int64 `json:"max_oracle_twap_bps"`
	NonPositiveFatal bool  `json:"non_positive_fatal"`
}

// loadMarkets reads the market-definitions file and seeds the store.
func loadMarkets(path string, store *state.MarketStore) (int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read markets file: %w", err)
	}

	var f marketsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, 0, fmt.Errorf("parse markets file: %w", err)
	}

	for _, cfg := range f.PerpMarkets {
		market, err := buildPerpMarket(cfg)
		if err != nil {
			return 0, 0, fmt.Errorf("perp market %q: %w", cfg.Symbol, err)
		}
		if err := store.AddPerpMarket(market); err != nil {
			return 0, 0, err
		}
	}
	for _, cfg := range f.SpotMarkets {
		market, err := buildSpotMarket(cfg)
		if err != nil {
			return 0, 0, fmt.Errorf("spot market %q: %w", cfg.Symbol, err)
		}
		if err := store.AddSpotMarket(market); err != nil {
			return 0, 0, err
		}
	}

	return len(f.PerpMarkets), len(f.SpotMarkets), nil
}

func buildPerpMarket(cfg perpMarketConfig) (*state.PerpMarket, error) {
	base, err := parseBig(cfg.BaseAssetReserve, "base_asset_reserve")
	if err != nil {
		return nil, err
	}
	quote, err := parseBig(cfg.QuoteAssetReserve, "quote_asset_reserve")
	if err != nil {
		return nil, err
	}
	peg, err := parseBig(cfg.PegMultiplier, "peg_multiplier")
	if err != nil {
		return nil, err
	}

	ammCfg := amm.Config{
		BaseAssetReserve:  base,
		QuoteAssetReserve: quote,
		PegMultiplier:     peg,
		BaseSpread:        cfg.BaseSpread,
		MaxSpread:         cfg.MaxSpread,
		OrderStepSize:     cfg.OrderStepSize,
		OrderTickSize:     cfg.OrderTickSize,
		FundingPeriod:     cfg.FundingPeriod,
	}
	if cfg.ConcentrationCoef != "" {
		coef, err := parseBig(cfg.ConcentrationCoef, "concentration_coef")
		if err != nil {
			return nil, err
		}
		ammCfg.ConcentrationCoef = coef
	}

	curve, err := amm.New(ammCfg)
	if err != nil {
		return nil, err
	}

	tier, err := parseContractTier(cfg.Tier)
	if err != nil {
		return nil, err
	}

	market := &state.PerpMarket{
		MarketIndex:                     cfg.MarketIndex,
		Symbol:                          cfg.Symbol,
		Status:                          state.MarketStatusActive,
		Tier:                            tier,
		Amm:                             curve,
		MarginRatioInitial:              cfg.MarginRatioInitial,
		MarginRatioMaintenance:          cfg.MarginRatioMaintenance,
		IMFFactor:                       cfg.IMFFactor,
		UnrealizedPnLInitialAssetWeight: cfg.UnrealizedPnLInitialAssetWeight,
		OracleGuards:                    buildGuards(cfg.OracleGuards),
	}
	if cfg.UnrealizedPnLMaxImbalance != "" {
		imb, err := parseBig(cfg.UnrealizedPnLMaxImbalance, "unrealized_pnl_max_imbalance")
		if err != nil {
			return nil, err
		}
		market.UnrealizedPnLMaxImbalance = imb
	}

	return market, nil
}

func buildSpotMarket(cfg spotMarketConfig) (*state.SpotMarket, error) {
	tier, err := parseAssetTier(cfg.Tier)
	if err != nil {
		return nil, err
	}

	deposit, err := parseBig(cfg.CumulativeDepositInterest, "cumulative_deposit_interest")
	if err != nil {
		return nil, err
	}
	borrow, err := parseBig(cfg.CumulativeBorrowInterest, "cumulative_borrow_interest")
	if err != nil {
		return nil, err
	}

	return &state.SpotMarket{
		MarketIndex:                cfg.MarketIndex,
		Symbol:                     cfg.Symbol,
		Tier:                       tier,
		InitialAssetWeight:         cfg.InitialAssetWeight,
		MaintenanceAssetWeight:     cfg.MaintenanceAssetWeight,
		InitialLiabilityWeight:     cfg.InitialLiabilityWeight,
		MaintenanceLiabilityWeight: cfg.MaintenanceLiabilityWeight,
		IMFFactor:                  cfg.IMFFactor,
		CumulativeDepositInterest:  deposit,
		CumulativeBorrowInterest:   borrow,
		LastOraclePriceTwap5Min:    new(big.Int),
		OracleGuards:               buildGuards(cfg.OracleGuards),
	}, nil
}

func buildGuards(cfg *guardsConfig) oracle.Guards {
	if cfg == nil {
		return oracle.DefaultGuards()
	}
	return oracle.Guards{
		MaxDelay:         cfg.MaxDelay,
		MaxConfidenceBps: cfg.MaxConfidenceBps,
		MaxOracleTwapBps: cfg.MaxOracleTwapBps,
		NonPositiveFatal: cfg.NonPositiveFatal,
	}
}

func parseContractTier(s string) (state.ContractTier, error) {
	switch s {
	case "", "a":
		return state.ContractTierA, nil
	case "b":
		return state.ContractTierB, nil
	case "c":
		return state.ContractTierC, nil
	case "speculative":
		return state.ContractTierSpeculative, nil
	case "isolated":
		return state.ContractTierIsolated, nil
	default:
		return 0, fmt.Errorf("unknown contract tier %q", s)
	}
}

func parseAssetTier(s string) (state.AssetTier, error) {
	switch s {
	case "", "collateral":
		return state.AssetTierCollateral, nil
	case "protected":
		return state.AssetTierProtected, nil
	case "cross":
		return state.AssetTierCross, nil
	case "isolated":
		return state.AssetTierIsolated, nil
	case "unlisted":
		return state.AssetTierUnlisted, nil
	default:
		return 0, fmt.Errorf("unknown asset tier %q", s)
	}
}

func parseBig(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q", field, s)
	}
	return v, nil
}
