package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/observability"
	"github.com/drift-labs/protocol-v2-sub006/internal/oracle"
	"github.com/drift-labs/protocol-v2-sub006/internal/persistence"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
)

// defaultTWAPClamp bounds a single TWAP update to a third of the prior
// average, in PercentagePrecision units.
const defaultTWAPClamp = constants.PercentagePrecision / 3

// Applier is the single mutator: it parses raw events and applies them to
// the stores and curves in arrival order. Concurrent margin reads are safe
// only between Apply calls; the caller runs exactly one Applier loop.
// Snapshots are built here, inside the mutation path, so the persistence
// worker never reads live state.
type Applier struct {
	markets *state.MarketStore
	users   *state.UserStore
	oracles *oracle.Cache
	metrics *observability.Metrics
	log     zerolog.Logger

	snapshotCh chan<- *persistence.MarketSnapshot
	publishCh  chan<- PublishableEvent
}

func NewApplier(markets *state.MarketStore, users *state.UserStore, oracles *oracle.Cache, metrics *observability.Metrics, log zerolog.Logger, snapshotCh chan<- *persistence.MarketSnapshot, publishCh chan<- PublishableEvent) *Applier {
	return &Applier{
		markets:    markets,
		users:      users,
		oracles:    oracles,
		metrics:    metrics,
		log:        log,
		snapshotCh: snapshotCh,
		publishCh:  publishCh,
	}
}

// Run consumes raw events until the channel closes or the context ends.
// Parse and apply failures NAK the message; everything else ACKs.
func (ap *Applier) Run(ctx context.Context, events <-chan RawEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-events:
			if !ok {
				return nil
			}
			evt, err := ParseRawEvent(raw)
			if err != nil {
				ap.metrics.EventsRejected.WithLabelValues(raw.EventType, "parse").Inc()
				ap.log.Warn().Err(err).Str("subject", raw.Subject).Msg("event parse failed")
				raw.AckFunc() // malformed payloads never become valid on redelivery
				continue
			}
			if err := ap.Apply(evt); err != nil {
				ap.metrics.EventsRejected.WithLabelValues(raw.EventType, "apply").Inc()
				ap.log.Warn().Err(err).Str("event_type", evt.EventType()).Msg("event apply failed")
				raw.NakFunc()
				continue
			}
			ap.metrics.EventsApplied.WithLabelValues(raw.EventType).Inc()
			raw.AckFunc()
		}
	}
}

// Apply routes one typed event to its handler.
func (ap *Applier) Apply(evt Event) error {
	switch e := evt.(type) {
	case *OraclePriceUpdate:
		return ap.applyOraclePrice(e)
	case *PerpFill:
		return ap.applyPerpFill(e)
	case *FundingSettle:
		return ap.applyFundingSettle(e)
	case *SpotBalanceUpdate:
		return ap.applySpotBalance(e)
	case *CurveCommand:
		return ap.applyCurveCommand(e)
	default:
		return fmt.Errorf("unhandled event type %s", evt.EventType())
	}
}

func (ap *Applier) applyOraclePrice(e *OraclePriceUpdate) error {
	data := &oracle.PriceData{
		Price:      e.Price,
		Confidence: e.Confidence,
		Delay:      e.Delay,
		HasEnough:  e.HasEnough,
	}
	now := e.Timestamp.Unix()

	if e.Kind == MarketKindSpot {
		market, ok := ap.markets.SpotMarket(e.MarketIndex)
		if !ok {
			return fmt.Errorf("unknown spot market %d", e.MarketIndex)
		}
		ap.oracles.SetSpot(e.MarketIndex, data)
		if err := oracle.Validate(data, market.OracleGuards, market.LastOraclePriceTwap5Min); err != nil {
			ap.metrics.OracleInvalid.WithLabelValues(market.Symbol, "guards").Inc()
			return nil
		}
		dt := now - market.LastOracleTs
		if dt < 0 {
			return fmt.Errorf("%w: oracle timestamp regression", amm.ErrInvalidInput)
		}
		twap, err := amm.CalculateWeightedTWAP(e.Price, market.LastOraclePriceTwap5Min, dt, constants.FiveMinuteSeconds)
		if err != nil {
			return err
		}
		market.LastOraclePriceTwap5Min = twap
		market.LastOracleTs = now
		return nil
	}

	market, ok := ap.markets.PerpMarket(e.MarketIndex)
	if !ok {
		return fmt.Errorf("unknown perp market %d", e.MarketIndex)
	}
	ap.oracles.SetPerp(e.MarketIndex, data)
	a := market.Amm
	if err := oracle.Validate(data, market.OracleGuards, a.LastOraclePriceTwap5Min); err != nil {
		ap.metrics.OracleInvalid.WithLabelValues(market.Symbol, "guards").Inc()
		return nil
	}
	if err := a.UpdateOracleTWAP(e.Price, now, defaultTWAPClamp); err != nil {
		return err
	}
	if err := a.UpdateSpreads(data); err != nil {
		return err
	}
	ap.metrics.SpreadLong.WithLabelValues(market.Symbol).Set(float64(a.LongSpread))
	ap.metrics.SpreadShort.WithLabelValues(market.Symbol).Set(float64(a.ShortSpread))

	if reservePrice, err := a.ReservePrice(); err == nil {
		gap := num.Sub(reservePrice, e.Price)
		if gap.IsInt64() {
			ap.metrics.ReservePriceGap.WithLabelValues(market.Symbol).Set(float64(gap.Int64()))
		}
	}
	return nil
}

func (ap *Applier) applyPerpFill(e *PerpFill) error {
	market, ok := ap.markets.PerpMarket(e.MarketIndex)
	if !ok {
		return fmt.Errorf("unknown perp market %d", e.MarketIndex)
	}
	a := market.Amm

	// Reject stale timestamps before the swap so a bad fill never half
	// applies: once the curve commits, the message must ACK.
	now := e.Timestamp.Unix()
	if now < a.LastMarkPriceTwapTs {
		return fmt.Errorf("%w: fill %s timestamp regression", amm.ErrInvalidInput, e.FillID)
	}

	swapStart := time.Now()
	result, err := a.SwapBaseAsset(e.BaseAmount, e.Direction)
	if err != nil {
		return fmt.Errorf("fill %s: %w", e.FillID, err)
	}
	ap.metrics.SwapDuration.WithLabelValues(market.Symbol).Observe(time.Since(swapStart).Seconds())

	user := ap.users.GetOrCreateUser(e.UserID)
	pos := user.GetOrCreatePerpPosition(e.MarketIndex)

	wasFlat := pos.BaseAssetAmount.Sign() == 0
	if e.Direction == amm.Long {
		pos.BaseAssetAmount = num.Add(pos.BaseAssetAmount, result.BaseAssetAmount)
		pos.QuoteAssetAmount = num.Sub(pos.QuoteAssetAmount, result.QuoteAssetAmount)
		pos.QuoteEntryAmount = num.Sub(pos.QuoteEntryAmount, result.QuoteAssetAmount)
		pos.QuoteBreakEvenAmount = num.Sub(pos.QuoteBreakEvenAmount, result.QuoteAssetAmount)
	} else {
		pos.BaseAssetAmount = num.Sub(pos.BaseAssetAmount, result.BaseAssetAmount)
		pos.QuoteAssetAmount = num.Add(pos.QuoteAssetAmount, result.QuoteAssetAmount)
		pos.QuoteEntryAmount = num.Add(pos.QuoteEntryAmount, result.QuoteAssetAmount)
		pos.QuoteBreakEvenAmount = num.Add(pos.QuoteBreakEvenAmount, result.QuoteAssetAmount)
	}
	// A freshly opened position starts its funding cursor at the current
	// cumulative rate for its side.
	if wasFlat && pos.BaseAssetAmount.Sign() != 0 {
		if pos.BaseAssetAmount.Sign() > 0 {
			pos.LastCumulativeFundingRate = num.Clone(a.CumulativeFundingRateLong)
		} else {
			pos.LastCumulativeFundingRate = num.Clone(a.CumulativeFundingRateShort)
		}
	}

	if price, err := a.ReservePrice(); err == nil {
		if err := a.UpdateMarkTWAP(price, now, defaultTWAPClamp); err != nil {
			// The swap is already committed; a TWAP bookkeeping fault must
			// not NAK the fill into redelivery.
			ap.log.Warn().Err(err).Str("fill", e.FillID.String()).Msg("mark twap update failed")
		}
	}

	ap.metrics.SwapsApplied.WithLabelValues(market.Symbol, e.Direction.String()).Inc()
	ap.requestSnapshot(e.MarketIndex)
	return nil
}

func (ap *Applier) applyFundingSettle(e *FundingSettle) error {
	market, ok := ap.markets.PerpMarket(e.MarketIndex)
	if !ok {
		return fmt.Errorf("unknown perp market %d", e.MarketIndex)
	}
	a := market.Amm
	a.CumulativeFundingRateLong = num.Clone(e.CumulativeFundingRateLong)
	a.CumulativeFundingRateShort = num.Clone(e.CumulativeFundingRateShort)

	// Settle every open position's cursor against the new rates.
	for _, user := range ap.users.Users() {
		pos, ok := user.PerpPosition(e.MarketIndex)
		if !ok || pos.BaseAssetAmount.Sign() == 0 {
			continue
		}
		rate := a.CumulativeFundingRateShort
		if pos.BaseAssetAmount.Sign() > 0 {
			rate = a.CumulativeFundingRateLong
		}
		payment, err := pos.UnrealizedFunding(rate, constants.FundingRateToQuotePrecisionRatio)
		if err != nil {
			return err
		}
		pos.QuoteAssetAmount = num.Add(pos.QuoteAssetAmount, payment)
		pos.LastCumulativeFundingRate = num.Clone(rate)
	}

	ap.requestSnapshot(e.MarketIndex)
	return nil
}

func (ap *Applier) applySpotBalance(e *SpotBalanceUpdate) error {
	if _, ok := ap.markets.SpotMarket(e.MarketIndex); !ok {
		return fmt.Errorf("unknown spot market %d", e.MarketIndex)
	}
	user := ap.users.GetOrCreateUser(e.UserID)
	pos := user.GetOrCreateSpotPosition(e.MarketIndex)
	pos.ScaledBalance = num.Clone(e.ScaledBalance)
	pos.BalanceType = e.BalanceType
	return nil
}

func (ap *Applier) applyCurveCommand(e *CurveCommand) error {
	market, ok := ap.markets.PerpMarket(e.MarketIndex)
	if !ok {
		return fmt.Errorf("unknown perp market %d", e.MarketIndex)
	}
	a := market.Amm

	switch e.Kind {
	case CurveCommandRepeg:
		cost, err := a.ApplyRepeg(e.NewPeg)
		if err != nil {
			ap.metrics.CurveRejections.WithLabelValues(market.Symbol, "repeg").Inc()
			return err
		}
		ap.log.Info().Str("market", market.Symbol).Str("cost", cost.String()).Msg("repeg applied")
	case CurveCommandUpdateK:
		update, err := a.GetUpdateKResult(e.NewSqrtK, true)
		if err != nil {
			ap.metrics.CurveRejections.WithLabelValues(market.Symbol, "update_k").Inc()
			return err
		}
		cost, err := a.UpdateK(update)
		if err != nil {
			ap.metrics.CurveRejections.WithLabelValues(market.Symbol, "update_k").Inc()
			return err
		}
		ap.log.Info().Str("market", market.Symbol).Str("cost", cost.String()).Msg("k update applied")
	case CurveCommandBudgetedK:
		cost, _, err := a.ApplyBudgetedK(e.Budget, e.UpperBoundPct, e.LowerBoundPct)
		if err != nil {
			ap.metrics.CurveRejections.WithLabelValues(market.Symbol, "budgeted_k").Inc()
			return err
		}
		ap.log.Info().Str("market", market.Symbol).Str("cost", cost.String()).Msg("budgeted k applied")
	default:
		return fmt.Errorf("unknown curve command %q", e.Kind)
	}

	ap.metrics.CurveUpdates.WithLabelValues(market.Symbol, string(e.Kind)).Inc()
	ap.publishCurveUpdate(market, string(e.Kind))
	ap.requestSnapshot(e.MarketIndex)
	return nil
}

// publishCurveUpdate notifies downstream consumers of the new curve state.
// Dropped when the publish channel is full; consumers can always query.
func (ap *Applier) publishCurveUpdate(market *state.PerpMarket, kind string) {
	if ap.publishCh == nil {
		return
	}
	a := market.Amm
	evt := PublishableEvent{
		EventType:   "CurveUpdated",
		MarketIndex: market.MarketIndex,
		Payload: map[string]string{
			"kind":           kind,
			"peg_multiplier": a.PegMultiplier.String(),
			"sqrt_k":         a.SqrtK.String(),
		},
		Timestamp: time.Now(),
	}
	select {
	case ap.publishCh <- evt:
	default:
	}
}

func (ap *Applier) requestSnapshot(marketIndex uint16) {
	if ap.snapshotCh == nil {
		return
	}
	market, ok := ap.markets.PerpMarket(marketIndex)
	if !ok {
		return
	}
	snap := persistence.BuildMarketSnapshot(market, time.Now())
	select {
	case ap.snapshotCh <- snap:
	default:
		ap.metrics.PersistBackpressure.Inc()
	}
}
