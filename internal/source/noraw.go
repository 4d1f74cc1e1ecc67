package source

import (
	"context"
	"time"
)

// NoRaw wraps a History and drops each item's raw origin payload before
// it reaches the caller. Used when raw storage is disabled: the archive
// keeps the normalized fields only.
func NoRaw(h History) History {
	return &noRaw{h: h}
}

type noRaw struct {
	h History
}

func (n *noRaw) FetchAfter(ctx context.Context, sourceID, afterID int64, limit int) (Chunk, error) {
	return stripRaw(n.h.FetchAfter(ctx, sourceID, afterID, limit))
}

func (n *noRaw) FetchBefore(ctx context.Context, sourceID, beforeID int64, limit int) (Chunk, error) {
	return stripRaw(n.h.FetchBefore(ctx, sourceID, beforeID, limit))
}

func (n *noRaw) FetchWindow(ctx context.Context, sourceID int64, until time.Time, limit int) (Chunk, error) {
	return stripRaw(n.h.FetchWindow(ctx, sourceID, until, limit))
}

func stripRaw(chunk Chunk, err error) (Chunk, error) {
	if err != nil {
		return chunk, err
	}
	for i := range chunk.Items {
		chunk.Items[i].Raw = nil
	}
	return chunk, nil
}
