package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chatarc/chatarc/internal/archive"
)

// PutSource inserts or updates a source row by ID.
// The merge is non-destructive: empty incoming fields never clobber
// previously stored metadata.
func (s *Store) PutSource(ctx context.Context, src archive.Source) error {
	if src.ID == 0 {
		return fmt.Errorf("put source: zero source id")
	}
	kind := string(src.Kind)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, username, title, kind)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = COALESCE(NULLIF(excluded.username, ''), sources.username),
			title    = COALESCE(NULLIF(excluded.title, ''), sources.title),
			kind     = COALESCE(NULLIF(excluded.kind, ''), sources.kind)
	`, src.ID, src.Username, src.Title, kind)
	if err != nil {
		return fmt.Errorf("put source: %w", err)
	}
	return nil
}

// PutSenders upserts sender cache rows, last write wins.
// The cache is best-effort: senders may be stale or absent and items are
// stored with just the raw sender ID regardless.
func (s *Store) PutSenders(ctx context.Context, senders []archive.Sender) error {
	if len(senders) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put senders: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO senders (id, first_name, last_name, username, refreshed_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name      = excluded.first_name,
			last_name       = excluded.last_name,
			username        = excluded.username,
			refreshed_at_ms = excluded.refreshed_at_ms
	`)
	if err != nil {
		return fmt.Errorf("put senders: prepare: %w", err)
	}
	defer stmt.Close()

	for _, snd := range senders {
		if snd.ID == 0 {
			return fmt.Errorf("put senders: zero sender id")
		}
		if _, err := stmt.ExecContext(ctx,
			snd.ID, snd.FirstName, snd.LastName, snd.Username,
			archive.EpochMillis(snd.RefreshedAt),
		); err != nil {
			return fmt.Errorf("put senders: insert %d: %w", snd.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put senders: commit: %w", err)
	}
	return nil
}

// PutItems atomically inserts a batch of items for a single source.
// An item whose (source, id) key already exists is silently skipped, so
// retried batches after a crash or a rate-limit stall are absorbed.
// Returns the number of rows actually inserted.
func (s *Store) PutItems(ctx context.Context, items []archive.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("put items: begin tx: %w", err)
	}
	defer tx.Rollback()

	inserted, err := insertItems(ctx, tx, items)
	if err != nil {
		return 0, fmt.Errorf("put items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("put items: commit: %w", err)
	}
	return inserted, nil
}

// CommitBatch is the engine's commit unit: one transaction inserting a
// chunk of items and advancing the cursor to cur. A crash can therefore
// never leave the cursor ahead of (or behind) what is actually stored.
// The items slice may be empty; the cursor row is written regardless.
func (s *Store) CommitBatch(ctx context.Context, items []archive.Item, cur archive.Cursor) (int, error) {
	if cur.SourceID == 0 {
		return 0, fmt.Errorf("commit batch: zero source id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("commit batch: begin tx: %w", err)
	}
	defer tx.Rollback()

	inserted, err := insertItems(ctx, tx, items)
	if err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	if err := upsertCursor(ctx, tx, cur); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: commit: %w", err)
	}
	return inserted, nil
}

// insertItems writes items inside tx with INSERT OR IGNORE semantics and
// returns how many rows were new. All items must belong to one source.
func insertItems(ctx context.Context, tx *sql.Tx, items []archive.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	sourceID := items[0].SourceID
	for _, it := range items {
		if it.SourceID != sourceID {
			return 0, fmt.Errorf("mixed source ids in batch: %d and %d", sourceID, it.SourceID)
		}
		if it.ID <= 0 {
			return 0, fmt.Errorf("item id %d out of range", it.ID)
		}
		if it.Date.IsZero() {
			return 0, fmt.Errorf("item %d has no date", it.ID)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items
		(id, source_id, date_utc_ms, sender_id, sender_name, text,
		 reply_to_id, has_media, media_type, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, it := range items {
		var senderID any
		if it.SenderID != 0 {
			senderID = it.SenderID
		}
		var replyTo any
		if it.ReplyTo != 0 {
			replyTo = it.ReplyTo
		}
		var raw any
		if it.Raw != nil {
			raw = []byte(it.Raw)
		}

		res, err := stmt.ExecContext(ctx,
			it.ID, it.SourceID, archive.EpochMillis(it.Date),
			senderID, it.SenderName, it.Text,
			replyTo, boolToInt(it.HasMedia), it.MediaType, raw,
		)
		if err != nil {
			return 0, fmt.Errorf("insert item %d: %w", it.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert item %d: rows affected: %w", it.ID, err)
		}
		inserted += int(n)
	}

	return inserted, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
