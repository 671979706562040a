package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// SnapshotWriter writes market snapshots to Postgres using multi-row
// INSERTs. Multi-row INSERT is a portable alternative to the COPY protocol;
// switch to pgx CopyFrom if snapshot volume ever warrants it.
type SnapshotWriter struct {
	db *sql.DB
}

func NewSnapshotWriter(db *sql.DB) *SnapshotWriter {
	return &SnapshotWriter{db: db}
}

// WriteBatch writes a batch of snapshots inside the given transaction.
func (w *SnapshotWriter) WriteBatch(ctx context.Context, tx *sql.Tx, snaps []*MarketSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	query := `INSERT INTO risk.market_snapshots
		(market_index, symbol, payload, created_at)
		VALUES `

	values := make([]string, 0, len(snaps))
	args := make([]interface{}, 0, len(snaps)*4)

	for i, s := range snaps {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal snapshot market=%d: %w", s.MarketIndex, err)
		}
		base := i * 4
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4,
		))
		args = append(args, s.MarketIndex, s.Symbol, payload, s.CreatedAt)
	}

	query += strings.Join(values, ", ")

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
