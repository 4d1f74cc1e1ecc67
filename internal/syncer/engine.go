// Package syncer is the sync engine: given a source and a coverage
// request, it brings the record store into a state that satisfies the
// request, fetching only what is missing.
//
// Each invocation is a strictly sequential pipeline of fetch-chunk then
// commit-chunk steps. A chunk is committed together with the advanced
// cursor in one store transaction before the next fetch is issued, so an
// interruption at any point costs at most one re-fetched chunk. The
// engine holds at most one fully fetched, not-yet-committed chunk in
// memory and suspends only while awaiting the history source.
//
// One engine invocation per source at a time; syncs of different sources
// are independent and safe to run in parallel.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/chatarc/chatarc/internal/archive"
	"github.com/chatarc/chatarc/internal/source"
	"github.com/chatarc/chatarc/internal/store"
)

const (
	// DefaultBatchSize bounds one fetched-and-committed chunk.
	DefaultBatchSize = 100

	// DefaultFloodThreshold separates absorbable rate-limit waits from
	// long stalls. A reported wait above it makes the engine return
	// StatusRetryLater instead of blocking.
	DefaultFloodThreshold = 60 * time.Second

	// DefaultMaxRetries bounds consecutive transient failures at one
	// fetch boundary.
	DefaultMaxRetries = 5

	// defaultRetryBase is the initial transient-retry backoff; it doubles
	// per attempt.
	defaultRetryBase = time.Second
)

// Status is the terminal state of a sync run.
type Status string

const (
	// StatusComplete: the coverage request is satisfied or the source's
	// history is exhausted.
	StatusComplete Status = "complete"

	// StatusRetryLater: the origin signalled a stall longer than the
	// flood threshold. All progress up to that point is committed; a
	// later re-invocation resumes from the same boundary.
	StatusRetryLater Status = "retry-later"
)

// Result reports what a sync run did. The cursor is always the last
// committed state, even when the run ends early.
type Result struct {
	RunID            string
	SourceID         int64
	Inserted         int
	TailInserted     int
	BackfillInserted int
	Cursor           archive.Cursor
	Status           Status
	Exhausted        bool // the origin reported no more history below the cursor
}

// Engine orchestrates tail and backfill passes against the record store
// and a history source.
type Engine struct {
	store   *store.Store
	history source.History
	sleeper Sleeper
	pacer   *rate.Limiter
	log     zerolog.Logger
	now     func() time.Time

	batchSize      int
	floodThreshold time.Duration
	maxRetries     int
	retryBase      time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize sets the per-chunk fetch/commit bound.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithFloodThreshold sets the longest rate-limit wait the engine absorbs
// by blocking. Longer waits end the run with StatusRetryLater.
func WithFloodThreshold(d time.Duration) Option {
	return func(e *Engine) { e.floodThreshold = d }
}

// WithSleeper replaces the blocking sleeper; tests pass a manual one.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) { e.sleeper = s }
}

// WithPacer replaces the politeness limiter between chunk fetches.
// Tests pass rate.NewLimiter(rate.Inf, 0).
func WithPacer(l *rate.Limiter) Option {
	return func(e *Engine) { e.pacer = l }
}

// WithMaxRetries bounds consecutive transient failures per boundary.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithRetryBase sets the initial transient-retry backoff.
func WithRetryBase(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryBase = d
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithNow replaces the wall clock, for deterministic last-sync stamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given store and history source.
func New(s *store.Store, h source.History, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		history:        h,
		sleeper:        realSleeper{},
		pacer:          rate.NewLimiter(rate.Every(time.Second), 1),
		log:            zerolog.Nop(),
		now:            time.Now,
		batchSize:      DefaultBatchSize,
		floodThreshold: DefaultFloodThreshold,
		maxRetries:     DefaultMaxRetries,
		retryBase:      defaultRetryBase,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync brings the store's coverage of sourceID up to the request.
//
// The tail pass always runs first; a backfill pass follows only when the
// request implies data older than the stored boundary. Cancellation is
// honored at chunk boundaries: the persisted cursor always reflects a
// fully committed state and the next invocation resumes from it.
//
// The source row must already exist in the store (via PutSource); item
// and cursor rows reference it.
func (e *Engine) Sync(ctx context.Context, sourceID int64, cov Coverage) (Result, error) {
	res := Result{
		RunID:    uuid.NewString(),
		SourceID: sourceID,
		Status:   StatusComplete,
	}
	log := e.log.With().Str("run_id", res.RunID).Int64("source_id", sourceID).Logger()

	if err := cov.Validate(); err != nil {
		return res, err
	}

	cur, err := e.store.GetCursor(ctx, sourceID)
	if err != nil {
		return res, storageFault(sourceID, err)
	}
	if cur.Lowest > cur.Highest {
		err := invariantViolation(sourceID, "cursor lowest %d > highest %d", cur.Lowest, cur.Highest)
		log.Error().Int64("lowest", cur.Lowest).Int64("highest", cur.Highest).
			Msg("cursor invariant violated; aborting without mutating state")
		return res, err
	}
	res.Cursor = cur

	log.Debug().Int64("lowest", cur.Lowest).Int64("highest", cur.Highest).Msg("sync start")

	retryLater, err := e.tail(ctx, log, &cur, &res)
	res.Cursor = cur
	if err != nil {
		return res, err
	}
	if retryLater {
		res.Status = StatusRetryLater
		return res, nil
	}

	need, quota, err := e.backfillNeed(ctx, cov, cur)
	if err != nil {
		return res, err
	}
	if need {
		retryLater, err = e.backfill(ctx, log, cov, quota, &cur, &res)
		res.Cursor = cur
		if err != nil {
			return res, err
		}
		if retryLater {
			res.Status = StatusRetryLater
			return res, nil
		}
	}

	log.Debug().Int("inserted", res.Inserted).
		Int64("lowest", cur.Lowest).Int64("highest", cur.Highest).Msg("sync done")
	return res, nil
}

// tail fetches items newer than the stored highest, oldest-of-the-gap
// first, so a partial run leaves the highest boundary advanceable to the
// last contiguous committed ID. With an empty cursor there is no boundary
// to extend and the pass completes without fetching; initial population
// happens through backfill.
func (e *Engine) tail(ctx context.Context, log zerolog.Logger, cur *archive.Cursor, res *Result) (bool, error) {
	if cur.Empty() {
		return false, nil
	}

	for {
		after := cur.Highest
		chunk, retryLater, err := e.fetchChunk(ctx, log, cur.SourceID, func(ctx context.Context) (source.Chunk, error) {
			return e.history.FetchAfter(ctx, cur.SourceID, after, e.batchSize)
		})
		if err != nil || retryLater {
			return retryLater, err
		}
		if len(chunk.Items) == 0 {
			// Exhausted with nothing newer.
			return false, nil
		}
		if err := validateAscending(chunk.Items, after); err != nil {
			log.Error().Err(err).Msg("history source broke tail ordering; aborting")
			return false, invariantViolation(cur.SourceID, "tail chunk: %v", err)
		}

		next := *cur
		next.Highest = chunk.Items[len(chunk.Items)-1].ID
		next.LastSync = e.now()

		n, err := e.commitChunk(ctx, chunk.Items, next)
		if err != nil {
			return false, err
		}
		*cur = next
		res.Inserted += n
		res.TailInserted += n
		log.Debug().Int("fetched", len(chunk.Items)).Int("inserted", n).
			Int64("highest", next.Highest).Msg("tail chunk committed")

		if chunk.Exhausted {
			return false, nil
		}
	}
}

// backfillNeed decides whether the request requires data older than the
// stored lowest, and with what remaining quota (0 = bounded by the
// request's own boundary or by exhaustion).
func (e *Engine) backfillNeed(ctx context.Context, cov Coverage, cur archive.Cursor) (bool, int, error) {
	switch {
	case cov.LastN > 0:
		count, err := e.store.ItemCount(ctx, cur.SourceID)
		if err != nil {
			return false, 0, storageFault(cur.SourceID, err)
		}
		if count >= cov.LastN {
			return false, 0, nil
		}
		return true, cov.LastN - count, nil

	case cov.hasIDRange():
		if cur.Empty() {
			return true, 0, nil
		}
		if cov.FromID == 0 {
			// Open beginning: only exhaustion proves coverage.
			return true, 0, nil
		}
		return cov.FromID < cur.Lowest, 0, nil

	case cov.hasTimeRange():
		if cur.Empty() {
			return true, 0, nil
		}
		if cov.Since.IsZero() {
			return true, 0, nil
		}
		has, err := e.store.HasItemAtOrBeforeTime(ctx, cur.SourceID, cov.Since)
		if err != nil {
			return false, 0, storageFault(cur.SourceID, err)
		}
		return !has, 0, nil
	}

	return false, 0, nil
}

// backfill fetches items older than the stored lowest, newest-of-the-gap
// first, stopping as soon as the quota is met, the requested boundary is
// crossed, or the origin reports exhaustion.
func (e *Engine) backfill(ctx context.Context, log zerolog.Logger, cov Coverage, quota int, cur *archive.Cursor, res *Result) (bool, error) {
	for {
		limit := e.batchSize
		if quota > 0 && quota < limit {
			limit = quota
		}

		before := cur.Lowest
		if cur.Empty() && cov.hasIDRange() && cov.ToID > 0 {
			// Seed just above the requested upper bound so the first chunk
			// does not pull items the range never asked for.
			before = cov.ToID + 1
		}
		seedWindow := cur.Empty() && cov.hasTimeRange() && !cov.Until.IsZero()
		chunk, retryLater, err := e.fetchChunk(ctx, log, cur.SourceID, func(ctx context.Context) (source.Chunk, error) {
			if seedWindow {
				return e.history.FetchWindow(ctx, cur.SourceID, cov.Until, limit)
			}
			return e.history.FetchBefore(ctx, cur.SourceID, before, limit)
		})
		if err != nil || retryLater {
			return retryLater, err
		}
		if len(chunk.Items) == 0 {
			res.Exhausted = true
			return false, nil
		}
		if err := validateDescending(chunk.Items, before); err != nil {
			log.Error().Err(err).Msg("history source broke backfill ordering; aborting")
			return false, invariantViolation(cur.SourceID, "backfill chunk: %v", err)
		}

		kept, crossed := trimAtBoundary(chunk.Items, cov)
		if len(kept) > 0 {
			next := *cur
			minID := kept[len(kept)-1].ID
			maxID := kept[0].ID
			if next.Empty() {
				next.Lowest, next.Highest = minID, maxID
			} else if minID < next.Lowest {
				next.Lowest = minID
			}
			next.LastSync = e.now()

			n, err := e.commitChunk(ctx, kept, next)
			if err != nil {
				return false, err
			}
			*cur = next
			res.Inserted += n
			res.BackfillInserted += n
			log.Debug().Int("fetched", len(chunk.Items)).Int("inserted", n).
				Int64("lowest", next.Lowest).Msg("backfill chunk committed")
		}

		if crossed {
			return false, nil
		}
		if chunk.Exhausted {
			res.Exhausted = true
			return false, nil
		}

		if cov.LastN > 0 {
			count, err := e.store.ItemCount(ctx, cur.SourceID)
			if err != nil {
				return false, storageFault(cur.SourceID, err)
			}
			quota = cov.LastN - count
			if quota <= 0 {
				return false, nil
			}
		}
	}
}

// commitChunk writes the chunk's sender cache rows, then the chunk plus
// its advanced cursor in one transaction.
func (e *Engine) commitChunk(ctx context.Context, items []archive.Item, next archive.Cursor) (int, error) {
	if senders := sendersFrom(items, e.now()); len(senders) > 0 {
		if err := e.store.PutSenders(ctx, senders); err != nil {
			return 0, storageFault(next.SourceID, err)
		}
	}
	n, err := e.store.CommitBatch(ctx, items, next)
	if err != nil {
		return 0, storageFault(next.SourceID, err)
	}
	return n, nil
}

// fetchChunk runs one boundary fetch with pacing, rate-limit waits, and
// bounded transient retry. retryLater reports a stall longer than the
// flood threshold; progress so far is already committed.
func (e *Engine) fetchChunk(ctx context.Context, log zerolog.Logger, sourceID int64, fn func(context.Context) (source.Chunk, error)) (source.Chunk, bool, error) {
	attempts := 0
	backoff := e.retryBase

	for {
		if err := ctx.Err(); err != nil {
			return source.Chunk{}, false, err
		}
		if err := e.pacer.Wait(ctx); err != nil {
			return source.Chunk{}, false, err
		}

		chunk, err := fn(ctx)
		if err == nil {
			if len(chunk.Items) == 0 && !chunk.Exhausted {
				// Empty non-exhausted chunk carries no information and is
				// not progress; retry the same boundary.
				attempts++
				if attempts > e.maxRetries {
					return source.Chunk{}, false, &SyncError{
						Code:     ErrCodeTransient,
						Message:  "origin kept returning empty chunks",
						SourceID: sourceID,
					}
				}
				if err := e.sleeper.Sleep(ctx, backoff); err != nil {
					return source.Chunk{}, false, err
				}
				backoff *= 2
				continue
			}
			return chunk, false, nil
		}

		if wait, ok := source.AsRateLimited(err); ok {
			if wait > e.floodThreshold {
				log.Warn().Dur("wait", wait).Msg("long rate-limit stall; returning retry-later")
				return source.Chunk{}, true, nil
			}
			log.Info().Dur("wait", wait).Msg("rate limited; waiting")
			if err := e.sleeper.Sleep(ctx, wait); err != nil {
				return source.Chunk{}, false, err
			}
			continue
		}

		if source.IsUnavailable(err) {
			return source.Chunk{}, false, &SyncError{
				Code:     ErrCodePermanentAccess,
				Message:  err.Error(),
				SourceID: sourceID,
				Err:      err,
			}
		}

		// Transient and unrecognized errors share the retry allowance.
		attempts++
		if attempts > e.maxRetries {
			return source.Chunk{}, false, &SyncError{
				Code:     ErrCodeTransient,
				Message:  err.Error(),
				SourceID: sourceID,
				Err:      err,
			}
		}
		log.Debug().Err(err).Int("attempt", attempts).Dur("backoff", backoff).
			Msg("transient fetch failure; backing off")
		if err := e.sleeper.Sleep(ctx, backoff); err != nil {
			return source.Chunk{}, false, err
		}
		backoff *= 2
	}
}

// trimAtBoundary cuts a descending chunk at the request's lower boundary.
// The kept items are always a prefix, so contiguity from the previous
// lowest is preserved. crossed reports that the boundary was reached.
func trimAtBoundary(items []archive.Item, cov Coverage) (kept []archive.Item, crossed bool) {
	switch {
	case cov.FromID > 0:
		for i, it := range items {
			if it.ID < cov.FromID {
				return items[:i], true
			}
		}
	case !cov.Since.IsZero():
		for i, it := range items {
			if it.Date.Before(cov.Since) {
				return items[:i], true
			}
		}
	}
	return items, false
}

// validateAscending checks a tail chunk: strictly increasing IDs, all
// greater than afterID.
func validateAscending(items []archive.Item, afterID int64) error {
	prev := afterID
	for _, it := range items {
		if it.ID <= prev {
			return errItemOrder(it.ID, prev, "ascending")
		}
		prev = it.ID
	}
	return nil
}

// validateDescending checks a backfill chunk: strictly decreasing IDs,
// all below beforeID when a bound was given.
func validateDescending(items []archive.Item, beforeID int64) error {
	prev := beforeID
	for i, it := range items {
		if i == 0 && beforeID <= 0 {
			prev = it.ID + 1
		}
		if it.ID >= prev {
			return errItemOrder(it.ID, prev, "descending")
		}
		prev = it.ID
	}
	return nil
}

func errItemOrder(id, bound int64, direction string) error {
	return fmt.Errorf("item %d out of %s order (bound %d)", id, direction, bound)
}

// sendersFrom derives best-effort sender cache rows from a chunk.
// The display name lands in FirstName; the origin does not split names.
func sendersFrom(items []archive.Item, now time.Time) []archive.Sender {
	seen := make(map[int64]struct{}, len(items))
	var senders []archive.Sender
	for _, it := range items {
		if it.SenderID == 0 || it.SenderName == "" {
			continue
		}
		if _, ok := seen[it.SenderID]; ok {
			continue
		}
		seen[it.SenderID] = struct{}{}
		senders = append(senders, archive.Sender{
			ID:          it.SenderID,
			FirstName:   it.SenderName,
			RefreshedAt: now,
		})
	}
	return senders
}
