package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/chatarc/chatarc/internal/archive"
	"github.com/chatarc/chatarc/internal/store"
)

// jsonlRecord is one line of a JSONL export. The field set matches what
// the dump-file source reads back, so exported archives can be
// re-ingested with sync --from-dump. Source metadata rides on the first
// line only.
type jsonlRecord struct {
	ID             int64           `json:"id"`
	SourceID       int64           `json:"source_id"`
	Date           string          `json:"date"`
	SenderID       int64           `json:"sender_id,omitempty"`
	SenderName     string          `json:"sender_name,omitempty"`
	Text           string          `json:"text"`
	ReplyTo        int64           `json:"reply_to_id,omitempty"`
	ReplySender    string          `json:"reply_sender_name,omitempty"`
	HasMedia       bool            `json:"has_media,omitempty"`
	MediaType      string          `json:"media_type,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
	SourceTitle    string          `json:"source_title,omitempty"`
	SourceUsername string          `json:"source_username,omitempty"`
	SourceKind     string          `json:"source_kind,omitempty"`
}

// JSONLWriter renders items as machine-readable JSON lines.
type JSONLWriter struct {
	w          *bufio.Writer
	src        archive.Source
	includeRaw bool
	wroteFirst bool
}

// NewJSONL creates a JSONL writer. includeRaw carries each item's stored
// raw payload through to the output.
func NewJSONL(w io.Writer, src archive.Source, includeRaw bool) *JSONLWriter {
	return &JSONLWriter{w: bufio.NewWriter(w), src: src, includeRaw: includeRaw}
}

// WriteRow implements Writer.
func (j *JSONLWriter) WriteRow(row store.ExportRow) error {
	rec := jsonlRecord{
		ID:          row.ID,
		SourceID:    row.SourceID,
		Date:        row.Date.UTC().Format(time.RFC3339),
		SenderID:    row.SenderID,
		SenderName:  row.SenderName,
		Text:        row.Text,
		ReplyTo:     row.ReplyTo,
		ReplySender: row.ReplySenderName,
		HasMedia:    row.HasMedia,
		MediaType:   row.MediaType,
	}
	if j.includeRaw {
		rec.Raw = row.Raw
	}
	if !j.wroteFirst {
		rec.SourceTitle = j.src.Title
		rec.SourceUsername = j.src.Username
		rec.SourceKind = string(j.src.Kind)
		j.wroteFirst = true
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jsonl row %d: %w", row.ID, err)
	}
	if _, err := j.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("jsonl row %d: %w", row.ID, err)
	}
	return nil
}

// Flush implements Writer.
func (j *JSONLWriter) Flush() error {
	return j.w.Flush()
}
