package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/drift-labs/protocol-v2-sub006/internal/observability"
)

// Worker drains the snapshot channel and batch-writes market snapshots to
// Postgres. It runs independently from the applier; snapshots are coalesced
// per market so a burst of fills produces one row per flush.
type Worker struct {
	db           *sql.DB
	writer       *SnapshotWriter
	inputChan    <-chan *MarketSnapshot
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan *MarketSnapshot,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		db:           db,
		writer:       NewSnapshotWriter(db),
		inputChan:    inputChan,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run starts the worker loop. Pending snapshots flush either on the timeout
// or on shutdown; only the latest snapshot per market survives coalescing.
// Blocks until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	pending := make(map[uint16]*MarketSnapshot)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(pending) > 0 {
				if err := w.flush(context.Background(), pending); err != nil {
					w.log.Error().Err(err).Msg("final snapshot flush failed")
				}
			}
			return ctx.Err()

		case snap, ok := <-w.inputChan:
			if !ok {
				if len(pending) > 0 {
					if err := w.flush(context.Background(), pending); err != nil {
						w.log.Error().Err(err).Msg("final snapshot flush failed")
					}
				}
				return nil
			}
			pending[snap.MarketIndex] = snap

		case <-timer.C:
			if len(pending) > 0 {
				if err := w.flushWithRetry(ctx, pending); err != nil {
					w.log.Error().Err(err).Msg("snapshot flush failed after retries")
				}
				pending = make(map[uint16]*MarketSnapshot)
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker
// never drops a snapshot batch; it retries until the write succeeds or the
// context is cancelled, then makes one final attempt on shutdown.
func (w *Worker) flushWithRetry(ctx context.Context, pending map[uint16]*MarketSnapshot) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("markets", len(pending)).Msg("snapshot flush retrying")
			select {
			case <-ctx.Done():
				return w.flush(context.Background(), pending)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, pending)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("snapshot flush recovered")
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, pending map[uint16]*MarketSnapshot) error {
	start := time.Now()

	snaps := make([]*MarketSnapshot, 0, len(pending))
	for _, snap := range pending {
		snaps = append(snaps, snap)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteBatch(ctx, tx, snaps); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_snapshots").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		w.metrics.SnapshotsWritten.Add(float64(len(snaps)))
	}

	return nil
}
