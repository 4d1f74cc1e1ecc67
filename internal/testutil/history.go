package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chatarc/chatarc/internal/archive"
	"github.com/chatarc/chatarc/internal/source"
)

// Call records one fetch issued against a ScriptedHistory.
type Call struct {
	Op       string // "after", "before", or "window"
	SourceID int64
	AfterID  int64
	BeforeID int64
	Until    time.Time
	Limit    int
}

// ScriptedHistory is an in-memory history source for engine tests. It
// serves a fixed item set per source, consumes an injected fault queue
// one entry per fetch, and logs every call so tests can assert exactly
// which boundaries the engine visited.
type ScriptedHistory struct {
	mu      sync.Mutex
	items   map[int64][]archive.Item // ascending by ID
	sources map[string]archive.Source
	faults  []error
	calls   []Call
}

// NewScriptedHistory creates an empty scripted history.
func NewScriptedHistory() *ScriptedHistory {
	return &ScriptedHistory{
		items:   make(map[int64][]archive.Item),
		sources: make(map[string]archive.Source),
	}
}

// AddSource registers a source and its items. Items may be given in any
// order; they are kept sorted ascending by ID.
func (h *ScriptedHistory) AddSource(src archive.Source, items ...archive.Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources[src.Username] = src
	h.sources[fmt.Sprintf("%d", src.ID)] = src
	sorted := append(h.items[src.ID], items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	h.items[src.ID] = sorted
}

// Append adds items to an already registered source.
func (h *ScriptedHistory) Append(sourceID int64, items ...archive.Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sorted := append(h.items[sourceID], items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	h.items[sourceID] = sorted
}

// InjectFaults queues errors consumed one per fetch call, in order. A
// nil entry lets that call succeed. Once the queue drains, all further
// calls succeed.
func (h *ScriptedHistory) InjectFaults(errs ...error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = append(h.faults, errs...)
}

// Calls returns a copy of the fetch log.
func (h *ScriptedHistory) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Call, len(h.calls))
	copy(out, h.calls)
	return out
}

// CallCount returns how many fetches were issued.
func (h *ScriptedHistory) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *ScriptedHistory) nextFault() error {
	if len(h.faults) == 0 {
		return nil
	}
	err := h.faults[0]
	h.faults = h.faults[1:]
	return err
}

// FetchAfter returns up to limit items with ID greater than afterID,
// ascending. Exhausted when the newest item is included.
func (h *ScriptedHistory) FetchAfter(ctx context.Context, sourceID, afterID int64, limit int) (source.Chunk, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Op: "after", SourceID: sourceID, AfterID: afterID, Limit: limit})
	if err := h.nextFault(); err != nil {
		return source.Chunk{}, err
	}

	all := h.items[sourceID]
	start := sort.Search(len(all), func(i int) bool { return all[i].ID > afterID })
	rest := all[start:]
	n := len(rest)
	if n > limit {
		n = limit
	}
	out := make([]archive.Item, n)
	copy(out, rest[:n])
	return source.Chunk{Items: out, Exhausted: n == len(rest)}, nil
}

// FetchBefore returns up to limit items with ID below beforeID,
// descending; beforeID <= 0 starts from the newest. Exhausted when the
// oldest item is included.
func (h *ScriptedHistory) FetchBefore(ctx context.Context, sourceID, beforeID int64, limit int) (source.Chunk, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Op: "before", SourceID: sourceID, BeforeID: beforeID, Limit: limit})
	if err := h.nextFault(); err != nil {
		return source.Chunk{}, err
	}

	all := h.items[sourceID]
	end := len(all)
	if beforeID > 0 {
		end = sort.Search(len(all), func(i int) bool { return all[i].ID >= beforeID })
	}
	return descending(all[:end], limit), nil
}

// FetchWindow returns up to limit items dated at or before until,
// descending. Exhausted when nothing older remains inside the window.
func (h *ScriptedHistory) FetchWindow(ctx context.Context, sourceID int64, until time.Time, limit int) (source.Chunk, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Op: "window", SourceID: sourceID, Until: until, Limit: limit})
	if err := h.nextFault(); err != nil {
		return source.Chunk{}, err
	}

	var eligible []archive.Item
	for _, it := range h.items[sourceID] {
		if !it.Date.After(until) {
			eligible = append(eligible, it)
		}
	}
	return descending(eligible, limit), nil
}

// Resolve looks a source up by username or numeric ID string.
func (h *ScriptedHistory) Resolve(ctx context.Context, ref string) (archive.Source, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if src, ok := h.sources[ref]; ok {
		return src, nil
	}
	return archive.Source{}, source.ErrNotFound
}

func descending(ascending []archive.Item, limit int) source.Chunk {
	n := len(ascending)
	take := n
	if take > limit {
		take = limit
	}
	out := make([]archive.Item, 0, take)
	for i := n - 1; i >= n-take; i-- {
		out = append(out, ascending[i])
	}
	return source.Chunk{Items: out, Exhausted: take == n}
}

// Items builds n consecutive items for a source, IDs fromID upward, each
// dated one minute after the previous.
func Items(sourceID, fromID int64, n int, base time.Time) []archive.Item {
	out := make([]archive.Item, 0, n)
	for i := 0; i < n; i++ {
		id := fromID + int64(i)
		out = append(out, archive.Item{
			ID:         id,
			SourceID:   sourceID,
			Date:       base.Add(time.Duration(i) * time.Minute),
			SenderID:   1000 + id%3,
			SenderName: fmt.Sprintf("sender-%d", 1000+id%3),
			Text:       fmt.Sprintf("message %d", id),
		})
	}
	return out
}
