// Package query serves read-only views over the in-memory engine state:
// margin checks, quoted prices, and market snapshots. Reads run between
// applier mutations; the service itself holds no state.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/margin"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/observability"
	"github.com/drift-labs/protocol-v2-sub006/internal/oracle"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
)

var (
	ErrUserNotFound   = fmt.Errorf("query: user not found")
	ErrMarketNotFound = fmt.Errorf("query: market not found")
)

type Service struct {
	markets *state.MarketStore
	users   *state.UserStore
	oracles *oracle.Cache
	engine  *margin.Engine
	metrics *observability.Metrics
}

func NewService(markets *state.MarketStore, users *state.UserStore, oracles *oracle.Cache, metrics *observability.Metrics) *Service {
	return &Service{
		markets: markets,
		users:   users,
		oracles: oracles,
		engine:  margin.NewEngine(markets),
		metrics: metrics,
	}
}

func (s *Service) oracleSet() margin.OracleSet {
	return margin.OracleSet{
		Perp: s.oracles.SnapshotPerp(),
		Spot: s.oracles.SnapshotSpot(),
	}
}

// MarginCheck values one account in the requested mode.
func (s *Service) MarginCheck(ctx context.Context, userID uuid.UUID, mctx margin.Context) (*MarginResponse, error) {
	start := time.Now()
	defer func() {
		s.metrics.MarginCheckDuration.WithLabelValues(mctx.Mode.String()).Observe(time.Since(start).Seconds())
	}()
	s.metrics.MarginChecks.WithLabelValues(mctx.Mode.String()).Inc()

	user, ok := s.users.User(userID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	calc, err := s.engine.Calculate(user, s.oracleSet(), mctx)
	if err != nil {
		return nil, err
	}
	if !calc.MeetsRequirement() {
		s.metrics.MarginFailures.WithLabelValues(mctx.Mode.String()).Inc()
	}

	return &MarginResponse{
		UserID:                userID,
		Mode:                  mctx.Mode.String(),
		TotalCollateral:       calc.TotalCollateral.String(),
		MarginRequirement:     calc.MarginRequirement.String(),
		FreeCollateral:        calc.FreeCollateral().String(),
		TotalPerpPnL:          calc.TotalPerpPnL.String(),
		NumSpotLiabilities:    calc.NumSpotLiabilities,
		NumPerpLiabilities:    calc.NumPerpLiabilities,
		WithIsolatedLiability: calc.WithIsolatedLiability,
		AllOraclesValid:       calc.AllOraclesValid,
		MeetsRequirement:      calc.MeetsRequirement(),
		CanExerciseRisk:       calc.CanExerciseRisk(),
	}, nil
}

// BidAsk returns the current spread-adjusted quote for one market.
func (s *Service) BidAsk(ctx context.Context, marketIndex uint16) (*BidAskResponse, error) {
	market, ok := s.markets.PerpMarket(marketIndex)
	if !ok {
		return nil, fmt.Errorf("%w: perp %d", ErrMarketNotFound, marketIndex)
	}
	a := market.Amm

	bid, ask, err := a.BidAskPrice()
	if err != nil {
		return nil, err
	}
	reservePrice, err := a.ReservePrice()
	if err != nil {
		return nil, err
	}

	return &BidAskResponse{
		MarketIndex:  marketIndex,
		Symbol:       market.Symbol,
		Bid:          bid.String(),
		Ask:          ask.String(),
		ReservePrice: reservePrice.String(),
		LongSpread:   a.LongSpread,
		ShortSpread:  a.ShortSpread,
	}, nil
}

// Market returns the full curve state of one market.
func (s *Service) Market(ctx context.Context, marketIndex uint16) (*MarketResponse, error) {
	market, ok := s.markets.PerpMarket(marketIndex)
	if !ok {
		return nil, fmt.Errorf("%w: perp %d", ErrMarketNotFound, marketIndex)
	}
	a := market.Amm

	maxLong, err := a.MaxBaseAssetAmountFillable(amm.Long)
	if err != nil {
		return nil, err
	}
	maxShort, err := a.MaxBaseAssetAmountFillable(amm.Short)
	if err != nil {
		return nil, err
	}

	return &MarketResponse{
		MarketIndex:                marketIndex,
		Symbol:                     market.Symbol,
		Status:                     market.Status.String(),
		BaseAssetReserve:           a.BaseAssetReserve.String(),
		QuoteAssetReserve:          a.QuoteAssetReserve.String(),
		SqrtK:                      a.SqrtK.String(),
		PegMultiplier:              a.PegMultiplier.String(),
		LastMarkPriceTwap:          a.LastMarkPriceTwap.String(),
		LastMarkPriceTwap5Min:      a.LastMarkPriceTwap5Min.String(),
		LastOraclePriceTwap:        a.LastOraclePriceTwap.String(),
		LastOraclePriceTwap5Min:    a.LastOraclePriceTwap5Min.String(),
		BaseAssetAmountWithAmm:     a.BaseAssetAmountWithAmm.String(),
		CumulativeFundingRateLong:  a.CumulativeFundingRateLong.String(),
		CumulativeFundingRateShort: a.CumulativeFundingRateShort.String(),
		MaxFillableLong:            maxLong.String(),
		MaxFillableShort:           maxShort.String(),
	}, nil
}

// Positions lists the user's open perp positions with their cost-basis
// accounting and, where an oracle record exists, the unrealized PnL at the
// settlement price and the funding accrued since the last settle.
func (s *Service) Positions(ctx context.Context, userID uuid.UUID) (*PositionsResponse, error) {
	user, ok := s.users.User(userID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	perpOracles := s.oracles.SnapshotPerp()
	resp := &PositionsResponse{UserID: userID}
	for _, pos := range user.PerpPositions {
		if !pos.IsOpen() {
			continue
		}
		market, ok := s.markets.PerpMarket(pos.MarketIndex)
		if !ok {
			continue
		}

		pr := PerpPositionResponse{
			MarketIndex:          pos.MarketIndex,
			Symbol:               market.Symbol,
			BaseAssetAmount:      pos.BaseAssetAmount.String(),
			QuoteAssetAmount:     pos.QuoteAssetAmount.String(),
			QuoteEntryAmount:     pos.QuoteEntryAmount.String(),
			QuoteBreakEvenAmount: pos.QuoteBreakEvenAmount.String(),
			OpenOrders:           pos.OpenOrders,
		}

		if data, ok := perpOracles[pos.MarketIndex]; ok && data != nil && data.Price.Sign() > 0 {
			price := market.SettlementPrice(data.Price)
			notional, err := num.FloorDiv(num.Mul(pos.BaseAssetAmount, price), num.BN(constants.BasePrecision))
			if err != nil {
				return nil, err
			}
			pr.UnrealizedPnL = num.Add(pos.QuoteAssetAmount, notional).String()

			rate := market.Amm.CumulativeFundingRateShort
			if pos.BaseAssetAmount.Sign() > 0 {
				rate = market.Amm.CumulativeFundingRateLong
			}
			funding, err := pos.UnrealizedFunding(rate, constants.FundingRateToQuotePrecisionRatio)
			if err != nil {
				return nil, err
			}
			pr.UnrealizedFunding = funding.String()
		}

		resp.Perp = append(resp.Perp, pr)
	}

	return resp, nil
}

// MaxWithdrawable returns the initial-margin-constrained withdrawal limit.
func (s *Service) MaxWithdrawable(ctx context.Context, userID uuid.UUID, marketIndex uint16) (*MaxWithdrawableResponse, error) {
	user, ok := s.users.User(userID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	tokens, err := s.engine.MaxWithdrawable(user, marketIndex, s.oracleSet())
	if err != nil {
		return nil, err
	}

	return &MaxWithdrawableResponse{
		UserID:      userID,
		MarketIndex: marketIndex,
		TokenAmount: tokens.String(),
	}, nil
}
