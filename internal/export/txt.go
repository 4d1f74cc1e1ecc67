package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/chatarc/chatarc/internal/archive"
	"github.com/chatarc/chatarc/internal/store"
)

// txt layout, one line per item:
//
//	[id] 2006-01-02 15:04:05 | sender | [reply to #N @name] text
//
// Media-only items render a [media-type] placeholder; items with neither
// text nor media render [empty]. Line breaks inside a message collapse
// to spaces so one item is always one line.

// TXTWriter renders items as a human-readable transcript.
type TXTWriter struct {
	w  *bufio.Writer
	tz *time.Location
}

// NewTXT creates a TXT writer. A header line naming the source is written
// immediately. tz may be nil for UTC.
func NewTXT(w io.Writer, src archive.Source, tz *time.Location) (*TXTWriter, error) {
	if tz == nil {
		tz = time.UTC
	}
	tw := &TXTWriter{w: bufio.NewWriter(w), tz: tz}

	header := src.Title
	if header == "" {
		header = fmt.Sprintf("source %d", src.ID)
	}
	if src.Username != "" {
		header += " (@" + src.Username + ")"
	}
	if _, err := fmt.Fprintf(tw.w, "# %s\n", header); err != nil {
		return nil, fmt.Errorf("txt header: %w", err)
	}
	return tw, nil
}

// WriteRow implements Writer.
func (t *TXTWriter) WriteRow(row store.ExportRow) error {
	sender := norm.NFC.String(row.SenderName)
	if sender == "" {
		sender = "unknown"
	}

	body := norm.NFC.String(row.Text)
	body = strings.Join(strings.Fields(body), " ")
	if row.HasMedia {
		placeholder := "[" + mediaLabel(row.MediaType) + "]"
		if body == "" {
			body = placeholder
		} else {
			body = placeholder + " " + body
		}
	}
	if body == "" {
		body = "[empty]"
	}
	if row.ReplyTo != 0 {
		body = replyPrefix(row.ReplyTo, row.ReplySenderName) + " " + body
	}

	_, err := fmt.Fprintf(t.w, "[%d] %s | %s | %s\n",
		row.ID, row.Date.In(t.tz).Format("2006-01-02 15:04:05"), sender, body)
	if err != nil {
		return fmt.Errorf("txt row %d: %w", row.ID, err)
	}
	return nil
}

// Flush implements Writer.
func (t *TXTWriter) Flush() error {
	return t.w.Flush()
}

func mediaLabel(mediaType string) string {
	if mediaType == "" {
		return "media"
	}
	return mediaType
}

func replyPrefix(replyTo int64, senderName string) string {
	if senderName == "" {
		return fmt.Sprintf("[reply to #%d]", replyTo)
	}
	return fmt.Sprintf("[reply to #%d @%s]", replyTo, norm.NFC.String(senderName))
}
