package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AdminInjector feeds manually constructed curve commands into the same
// event channel the NATS consumers use, so admin mutations serialize
// through the applier like any other event. Not for high-throughput
// ingestion.
type AdminInjector struct {
	eventChan chan<- RawEvent
}

func NewAdminInjector(eventChan chan<- RawEvent) *AdminInjector {
	return &AdminInjector{eventChan: eventChan}
}

// InjectRepeg queues a peg change for one market.
func (s *AdminInjector) InjectRepeg(ctx context.Context, marketIndex uint16, newPeg int64) error {
	if newPeg <= 0 {
		return fmt.Errorf("new peg must be positive")
	}
	return s.inject(ctx, curveCommandJSON{
		MarketIndex: marketIndex,
		Kind:        string(CurveCommandRepeg),
		NewPeg:      newPeg,
	})
}

// InjectUpdateK queues a bounded depth change for one market.
func (s *AdminInjector) InjectUpdateK(ctx context.Context, marketIndex uint16, newSqrtK int64) error {
	if newSqrtK <= 0 {
		return fmt.Errorf("new sqrt_k must be positive")
	}
	return s.inject(ctx, curveCommandJSON{
		MarketIndex: marketIndex,
		Kind:        string(CurveCommandUpdateK),
		NewSqrtK:    newSqrtK,
	})
}

// InjectBudgetedK queues a budget spend (or recoup) through the k-scale solver.
func (s *AdminInjector) InjectBudgetedK(ctx context.Context, marketIndex uint16, budget, upperBoundPct, lowerBoundPct int64) error {
	if upperBoundPct <= 0 || lowerBoundPct <= 0 {
		return fmt.Errorf("bounds must be positive")
	}
	return s.inject(ctx, curveCommandJSON{
		MarketIndex:   marketIndex,
		Kind:          string(CurveCommandBudgetedK),
		Budget:        budget,
		UpperBoundPct: upperBoundPct,
		LowerBoundPct: lowerBoundPct,
	})
}

func (s *AdminInjector) inject(ctx context.Context, cmd curveCommandJSON) error {
	now := time.Now()
	cmd.TimestampUs = now.UnixMicro()

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal curve command: %w", err)
	}

	raw := RawEvent{
		Subject:   fmt.Sprintf("risk.curve.%d", cmd.MarketIndex),
		EventType: "CurveCommand",
		Data:      data,
		Timestamp: now,
		AckFunc:   func() {},
		NakFunc:   func() {},
	}

	select {
	case s.eventChan <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
