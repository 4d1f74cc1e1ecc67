package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chatarc/chatarc/internal/archive"
)

// Sync-state tracker: the cursor accessors below are the single source of
// truth for per-source sync boundaries. The engine never derives bounds by
// scanning items - a scan is expensive and unsafe under partial state.

// GetCursor returns the sync cursor for a source.
// An unseen source yields the zero cursor: (0, 0, never synced).
func (s *Store) GetCursor(ctx context.Context, sourceID int64) (archive.Cursor, error) {
	cur := archive.Cursor{SourceID: sourceID}

	var lastSyncMS sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT lowest, highest, last_sync_ms FROM cursors WHERE source_id = ?
	`, sourceID).Scan(&cur.Lowest, &cur.Highest, &lastSyncMS)
	if errors.Is(err, sql.ErrNoRows) {
		return cur, nil
	}
	if err != nil {
		return archive.Cursor{}, fmt.Errorf("get cursor: %w", err)
	}

	if lastSyncMS.Valid {
		cur.LastSync = archive.FromEpochMillis(lastSyncMS.Int64)
	}
	return cur, nil
}

// SetCursor writes the cursor row for a source outside any batch.
// The engine normally advances cursors through CommitBatch so the write
// shares the batch transaction; SetCursor exists for callers that need to
// stamp state with no accompanying items.
func (s *Store) SetCursor(ctx context.Context, cur archive.Cursor) error {
	if cur.SourceID == 0 {
		return fmt.Errorf("set cursor: zero source id")
	}
	if err := upsertCursor(ctx, s.db, cur); err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertCursor(ctx context.Context, db execer, cur archive.Cursor) error {
	if cur.Lowest > cur.Highest {
		return fmt.Errorf("cursor lowest %d > highest %d", cur.Lowest, cur.Highest)
	}

	var lastSync any
	if !cur.LastSync.IsZero() {
		lastSync = archive.EpochMillis(cur.LastSync)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO cursors (source_id, lowest, highest, last_sync_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			lowest       = excluded.lowest,
			highest      = excluded.highest,
			last_sync_ms = excluded.last_sync_ms
	`, cur.SourceID, cur.Lowest, cur.Highest, lastSync)
	if err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}
