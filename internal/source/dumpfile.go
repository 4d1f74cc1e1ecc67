package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chatarc/chatarc/internal/archive"
)

// dumpRecord is the wire form of one line in a JSONL dump. The field set
// matches the JSONL exporter's output, so a dump produced by `chatarc
// export --jsonl` can be re-ingested. The optional source_* fields carry
// source metadata; the last occurrence wins.
type dumpRecord struct {
	ID             int64           `json:"id"`
	SourceID       int64           `json:"source_id"`
	Date           string          `json:"date"`
	SenderID       int64           `json:"sender_id,omitempty"`
	SenderName     string          `json:"sender_name,omitempty"`
	Text           string          `json:"text"`
	ReplyTo        int64           `json:"reply_to_id,omitempty"`
	HasMedia       bool            `json:"has_media,omitempty"`
	MediaType      string          `json:"media_type,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
	SourceTitle    string          `json:"source_title,omitempty"`
	SourceUsername string          `json:"source_username,omitempty"`
	SourceKind     string          `json:"source_kind,omitempty"`
}

// DumpFile is a History and Resolver backed by a JSONL dump on disk.
//
// It exists so the tool can archive from previously exported dumps without
// a live origin, and serves as the reference implementation of the History
// contract. The whole dump is loaded at open time; chunks are served from
// memory in the required order.
type DumpFile struct {
	sources map[int64]archive.Source
	items   map[int64][]archive.Item // per source, ascending by ID
}

// OpenDump reads a JSONL dump and returns a DumpFile serving its contents.
func OpenDump(path string) (*DumpFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	defer f.Close()

	d := &DumpFile{
		sources: make(map[int64]archive.Source),
		items:   make(map[int64][]archive.Item),
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec dumpRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("parse dump line %d: %w", lineNo, err)
		}
		item, err := rec.toItem()
		if err != nil {
			return nil, fmt.Errorf("dump line %d: %w", lineNo, err)
		}
		d.items[item.SourceID] = append(d.items[item.SourceID], item)

		src := d.sources[item.SourceID]
		src.ID = item.SourceID
		if rec.SourceTitle != "" {
			src.Title = rec.SourceTitle
		}
		if rec.SourceUsername != "" {
			src.Username = strings.TrimPrefix(rec.SourceUsername, "@")
		}
		if k := archive.SourceKind(rec.SourceKind); k.Valid() {
			src.Kind = k
		} else if src.Kind == "" {
			src.Kind = archive.KindUnknown
		}
		d.sources[item.SourceID] = src
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dump: %w", err)
	}

	for id, items := range d.items {
		sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
		// Drop duplicate IDs, keeping the first occurrence.
		dedup := items[:0]
		for _, it := range items {
			if len(dedup) == 0 || dedup[len(dedup)-1].ID != it.ID {
				dedup = append(dedup, it)
			}
		}
		d.items[id] = dedup
	}

	return d, nil
}

func (r dumpRecord) toItem() (archive.Item, error) {
	if r.ID <= 0 {
		return archive.Item{}, fmt.Errorf("item id %d out of range", r.ID)
	}
	if r.SourceID == 0 {
		return archive.Item{}, fmt.Errorf("item %d has no source_id", r.ID)
	}
	date, err := time.Parse(time.RFC3339, r.Date)
	if err != nil {
		return archive.Item{}, fmt.Errorf("item %d: bad date %q: %w", r.ID, r.Date, err)
	}
	return archive.Item{
		ID:         r.ID,
		SourceID:   r.SourceID,
		Date:       date.UTC(),
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		Text:       r.Text,
		ReplyTo:    r.ReplyTo,
		HasMedia:   r.HasMedia,
		MediaType:  r.MediaType,
		Raw:        r.Raw,
	}, nil
}

// Resolve implements Resolver. It accepts a numeric ID, an @username, a
// bare username, or an exact title.
func (d *DumpFile) Resolve(_ context.Context, ref string) (archive.Source, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if src, ok := d.sources[id]; ok {
			return src, nil
		}
		return archive.Source{}, fmt.Errorf("resolve %q: %w", ref, ErrNotFound)
	}

	name := strings.TrimPrefix(ref, "@")
	for _, src := range d.sources {
		if strings.EqualFold(src.Username, name) || src.Title == ref {
			return src, nil
		}
	}
	return archive.Source{}, fmt.Errorf("resolve %q: %w", ref, ErrNotFound)
}

// FetchAfter implements History: items with ID > afterID, ascending.
func (d *DumpFile) FetchAfter(ctx context.Context, sourceID, afterID int64, limit int) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	items, err := d.sourceItems(sourceID)
	if err != nil {
		return Chunk{}, err
	}
	start := sort.Search(len(items), func(i int) bool { return items[i].ID > afterID })
	rest := items[start:]
	if limit > 0 && len(rest) > limit {
		return Chunk{Items: append([]archive.Item(nil), rest[:limit]...)}, nil
	}
	return Chunk{Items: append([]archive.Item(nil), rest...), Exhausted: true}, nil
}

// FetchBefore implements History: items with ID < beforeID, descending.
// beforeID <= 0 starts from the newest item.
func (d *DumpFile) FetchBefore(ctx context.Context, sourceID, beforeID int64, limit int) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	items, err := d.sourceItems(sourceID)
	if err != nil {
		return Chunk{}, err
	}
	end := len(items)
	if beforeID > 0 {
		end = sort.Search(len(items), func(i int) bool { return items[i].ID >= beforeID })
	}
	return descendingChunk(items[:end], limit), nil
}

// FetchWindow implements History: newest items with Date <= until,
// descending by ID.
func (d *DumpFile) FetchWindow(ctx context.Context, sourceID int64, until time.Time, limit int) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	items, err := d.sourceItems(sourceID)
	if err != nil {
		return Chunk{}, err
	}
	// Timestamps track IDs closely enough at the origin that scanning from
	// the tail finds the window end; IDs remain the ordering key.
	end := len(items)
	for end > 0 && items[end-1].Date.After(until) {
		end--
	}
	return descendingChunk(items[:end], limit), nil
}

func (d *DumpFile) sourceItems(sourceID int64) ([]archive.Item, error) {
	items, ok := d.items[sourceID]
	if !ok {
		return nil, &UnavailableError{Reason: fmt.Sprintf("source %d not in dump", sourceID)}
	}
	return items, nil
}

// descendingChunk returns up to limit items from the tail of asc in
// descending ID order, marking exhaustion when the head is reached.
func descendingChunk(asc []archive.Item, limit int) Chunk {
	n := len(asc)
	take := n
	if limit > 0 && take > limit {
		take = limit
	}
	out := make([]archive.Item, 0, take)
	for i := n - 1; i >= n-take; i-- {
		out = append(out, asc[i])
	}
	return Chunk{Items: out, Exhausted: take == n}
}
