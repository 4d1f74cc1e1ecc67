package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatarc/chatarc/internal/archive"
)

// ErrSourceUnknown is returned by GetSource for an ID never stored.
var ErrSourceUnknown = errors.New("source not in store")

// ItemFilter selects a slice of a source's items for the read path.
// Zero values mean "no bound". LastN is mutually exclusive with the other
// fields: it selects the N newest items (still returned ascending).
type ItemFilter struct {
	SinceID int64 // exclusive lower ID bound
	UntilID int64 // exclusive upper ID bound
	Start   time.Time
	End     time.Time
	LastN   int
}

// Validate checks that the filter's fields are coherent.
func (f ItemFilter) Validate() error {
	if f.LastN < 0 {
		return fmt.Errorf("last-n must be positive, got %d", f.LastN)
	}
	if f.LastN > 0 {
		if f.SinceID != 0 || f.UntilID != 0 || !f.Start.IsZero() || !f.End.IsZero() {
			return errors.New("last-n cannot be combined with id or date filters")
		}
		return nil
	}
	if f.SinceID != 0 && f.UntilID != 0 && f.SinceID >= f.UntilID {
		return fmt.Errorf("since-id (%d) must be less than until-id (%d)", f.SinceID, f.UntilID)
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.Start.After(f.End) {
		return fmt.Errorf("start (%s) must not be after end (%s)", f.Start, f.End)
	}
	return nil
}

// whereClause renders the filter's range conditions against alias (e.g.
// "m.") and returns the SQL fragment plus its arguments. LastN is handled
// by the callers, not here.
func (f ItemFilter) whereClause(alias string, sourceID int64) (string, []any) {
	conds := []string{alias + "source_id = ?"}
	args := []any{sourceID}

	if f.SinceID != 0 {
		conds = append(conds, alias+"id > ?")
		args = append(args, f.SinceID)
	}
	if f.UntilID != 0 {
		conds = append(conds, alias+"id < ?")
		args = append(args, f.UntilID)
	}
	if !f.Start.IsZero() {
		conds = append(conds, alias+"date_utc_ms >= ?")
		args = append(args, archive.EpochMillis(f.Start))
	}
	if !f.End.IsZero() {
		conds = append(conds, alias+"date_utc_ms <= ?")
		args = append(args, archive.EpochMillis(f.End))
	}

	return strings.Join(conds, " AND "), args
}

// ItemCount returns the number of stored items for a source.
func (s *Store) ItemCount(ctx context.Context, sourceID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM items WHERE source_id = ?
	`, sourceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("item count: %w", err)
	}
	return n, nil
}

// QueryItems returns the items selected by the filter in ascending ID
// order, regardless of the order sync passes inserted them in.
func (s *Store) QueryItems(ctx context.Context, sourceID int64, f ItemFilter) ([]archive.Item, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}

	var query string
	var args []any
	if f.LastN > 0 {
		// Newest N selected descending, then reordered ascending in SQL so
		// callers never see descending IDs.
		query = `
			SELECT id, source_id, date_utc_ms, sender_id, sender_name, text,
			       reply_to_id, has_media, media_type, raw
			FROM (
				SELECT * FROM items WHERE source_id = ?
				ORDER BY id DESC LIMIT ?
			) ORDER BY id ASC
		`
		args = []any{sourceID, f.LastN}
	} else {
		where, whereArgs := f.whereClause("", sourceID)
		query = fmt.Sprintf(`
			SELECT id, source_id, date_utc_ms, sender_id, sender_name, text,
			       reply_to_id, has_media, media_type, raw
			FROM items
			WHERE %s
			ORDER BY id ASC
		`, where)
		args = whereArgs
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []archive.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("query items: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query items: iterate: %w", err)
	}

	if items == nil {
		items = []archive.Item{}
	}
	return items, nil
}

// ExportRow is one item joined with the sender name of the item it replies
// to, so a renderer can emit a complete line in a single pass.
type ExportRow struct {
	archive.Item
	ReplySenderName string
}

// ScanExport streams the filtered items in ascending ID order, invoking fn
// for each row. The reply sender name is resolved by a LEFT JOIN inside
// the query; no renderer needs a second pass over the store.
func (s *Store) ScanExport(ctx context.Context, sourceID int64, f ItemFilter, fn func(ExportRow) error) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("scan export: %w", err)
	}

	const cols = `m.id, m.source_id, m.date_utc_ms, m.sender_id, m.sender_name, m.text,
	       m.reply_to_id, m.has_media, m.media_type, m.raw, r.sender_name`

	var query string
	var args []any
	if f.LastN > 0 {
		query = fmt.Sprintf(`
			SELECT %s
			FROM (
				SELECT * FROM items WHERE source_id = ?
				ORDER BY id DESC LIMIT ?
			) m
			LEFT JOIN items r ON r.source_id = m.source_id AND r.id = m.reply_to_id
			ORDER BY m.id ASC
		`, cols)
		args = []any{sourceID, f.LastN}
	} else {
		where, whereArgs := f.whereClause("m.", sourceID)
		query = fmt.Sprintf(`
			SELECT %s
			FROM items m
			LEFT JOIN items r ON r.source_id = m.source_id AND r.id = m.reply_to_id
			WHERE %s
			ORDER BY m.id ASC
		`, cols, where)
		args = whereArgs
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scan export: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row ExportRow
		var dateMS int64
		var senderID, replyTo sql.NullInt64
		var senderName, text, mediaType, replySender sql.NullString
		var hasMedia int
		var raw []byte

		err := rows.Scan(&row.ID, &row.SourceID, &dateMS, &senderID, &senderName,
			&text, &replyTo, &hasMedia, &mediaType, &raw, &replySender)
		if err != nil {
			return fmt.Errorf("scan export: %w", err)
		}

		row.Date = archive.FromEpochMillis(dateMS)
		row.SenderID = senderID.Int64
		row.SenderName = senderName.String
		row.Text = text.String
		row.ReplyTo = replyTo.Int64
		row.HasMedia = hasMedia != 0
		row.MediaType = mediaType.String
		row.Raw = raw
		row.ReplySenderName = replySender.String

		if err := fn(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan export: iterate: %w", err)
	}
	return nil
}

// OldestItemTime returns the origin time of the oldest stored item for a
// source, and false when the source has no items.
func (s *Store) OldestItemTime(ctx context.Context, sourceID int64) (time.Time, bool, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(date_utc_ms) FROM items WHERE source_id = ?
	`, sourceID).Scan(&ms)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest item time: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return archive.FromEpochMillis(ms.Int64), true, nil
}

// HasItemAtOrBeforeID reports whether any item with ID <= targetID is stored.
func (s *Store) HasItemAtOrBeforeID(ctx context.Context, sourceID, targetID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM items WHERE source_id = ? AND id <= ? LIMIT 1
	`, sourceID, targetID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has item at or before id: %w", err)
	}
	return true, nil
}

// HasItemAtOrBeforeTime reports whether any item dated at or before target
// is stored.
func (s *Store) HasItemAtOrBeforeTime(ctx context.Context, sourceID int64, target time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM items WHERE source_id = ? AND date_utc_ms <= ? LIMIT 1
	`, sourceID, archive.EpochMillis(target)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has item at or before time: %w", err)
	}
	return true, nil
}

// GetSource returns the stored metadata for a source ID.
func (s *Store) GetSource(ctx context.Context, sourceID int64) (archive.Source, error) {
	var src archive.Source
	var username, title, kind sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, title, kind FROM sources WHERE id = ?
	`, sourceID).Scan(&src.ID, &username, &title, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return archive.Source{}, fmt.Errorf("get source %d: %w", sourceID, ErrSourceUnknown)
	}
	if err != nil {
		return archive.Source{}, fmt.Errorf("get source: %w", err)
	}
	src.Username = username.String
	src.Title = title.String
	src.Kind = archive.SourceKind(kind.String)
	return src, nil
}

// SourceInfo summarizes one archived source for listings.
type SourceInfo struct {
	Source archive.Source
	Cursor archive.Cursor
	Count  int
}

// ListSources returns every archived source with its item count and
// cursor, ordered by title.
func (s *Store) ListSources(ctx context.Context) ([]SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.username, s.title, s.kind,
		       COALESCE(c.lowest, 0), COALESCE(c.highest, 0), c.last_sync_ms,
		       (SELECT COUNT(*) FROM items i WHERE i.source_id = s.id)
		FROM sources s
		LEFT JOIN cursors c ON c.source_id = s.id
		ORDER BY s.title ASC, s.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var infos []SourceInfo
	for rows.Next() {
		var info SourceInfo
		var username, title, kind sql.NullString
		var lastSyncMS sql.NullInt64
		err := rows.Scan(&info.Source.ID, &username, &title, &kind,
			&info.Cursor.Lowest, &info.Cursor.Highest, &lastSyncMS, &info.Count)
		if err != nil {
			return nil, fmt.Errorf("list sources: %w", err)
		}
		info.Source.Username = username.String
		info.Source.Title = title.String
		info.Source.Kind = archive.SourceKind(kind.String)
		info.Cursor.SourceID = info.Source.ID
		if lastSyncMS.Valid {
			info.Cursor.LastSync = archive.FromEpochMillis(lastSyncMS.Int64)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sources: iterate: %w", err)
	}

	if infos == nil {
		infos = []SourceInfo{}
	}
	return infos, nil
}

// scanItem reads one items row from a full-column SELECT.
func scanItem(rows *sql.Rows) (archive.Item, error) {
	var it archive.Item
	var dateMS int64
	var senderID, replyTo sql.NullInt64
	var senderName, text, mediaType sql.NullString
	var hasMedia int
	var raw []byte

	err := rows.Scan(&it.ID, &it.SourceID, &dateMS, &senderID, &senderName,
		&text, &replyTo, &hasMedia, &mediaType, &raw)
	if err != nil {
		return archive.Item{}, fmt.Errorf("scan item: %w", err)
	}

	it.Date = archive.FromEpochMillis(dateMS)
	it.SenderID = senderID.Int64
	it.SenderName = senderName.String
	it.Text = text.String
	it.ReplyTo = replyTo.Int64
	it.HasMedia = hasMedia != 0
	it.MediaType = mediaType.String
	it.Raw = raw
	return it, nil
}
