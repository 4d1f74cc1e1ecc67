// Package source defines the boundary to the remote message origin: the
// History capability the sync engine pulls chunks from, the Resolver that
// turns human-supplied references into source IDs, and the error taxonomy
// both signal with.
//
// Implementations wrap whatever transport actually talks to the origin.
// This package ships one: DumpFile, which serves a previously exported
// JSONL dump and doubles as the reference implementation for the contract.
package source

import (
	"context"
	"time"

	"github.com/chatarc/chatarc/internal/archive"
)

// Chunk is one bounded batch of items returned by a History fetch.
//
// Exhausted reports that the origin has no further history past this chunk
// in the direction of the fetch. It is an in-band terminal signal, distinct
// from any error: a temporarily unreachable origin surfaces a
// TransientError instead. An empty, non-exhausted chunk carries no
// information and callers must treat it as a transient result.
type Chunk struct {
	Items     []archive.Item
	Exhausted bool
}

// History is the pull-based fetch capability over a source's message
// history. All methods return at most limit items (a positive bound chosen
// by the caller) and may return fewer, including zero.
//
// Contract:
//   - FetchAfter returns items with ID > afterID in ascending ID order.
//   - FetchBefore returns items with ID < beforeID in descending ID order.
//     beforeID <= 0 means "no upper bound": start from the newest item.
//   - FetchWindow returns the newest items with Date <= until, in
//     descending ID order, as if FetchBefore had been called with the ID
//     just past the window end.
//
// Failures are signalled with the taxonomy in errors.go: RateLimitedError,
// TransientError, UnavailableError. No call mutates origin state; every
// call is safe to repeat with the same boundary.
type History interface {
	FetchAfter(ctx context.Context, sourceID, afterID int64, limit int) (Chunk, error)
	FetchBefore(ctx context.Context, sourceID, beforeID int64, limit int) (Chunk, error)
	FetchWindow(ctx context.Context, sourceID int64, until time.Time, limit int) (Chunk, error)
}

// Resolver turns a human-supplied reference (username, invite link, or
// numeric ID in string form) into the stable source it names. Returns
// ErrNotFound when the reference does not resolve or the caller has no
// access to it.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (archive.Source, error)
}
