package syncer

import (
	"errors"
	"fmt"
	"time"
)

// Coverage is the caller's request: the slice of a source's history the
// store must hold once the sync returns. Exactly one of the three forms
// may be set:
//
//   - LastN: at least the N most-recent items.
//   - FromID/ToID: every item with ID in [FromID, ToID] (inclusive).
//     ToID may be 0 for "up to the newest".
//   - Since/Until: every item dated within [Since, Until].
//     Until may be zero for "up to now".
//
// The zero Coverage means "just extend the tail": fetch whatever is newer
// than the stored boundary and nothing older.
type Coverage struct {
	LastN  int
	FromID int64
	ToID   int64
	Since  time.Time
	Until  time.Time
}

// LastN coverage: at least n most-recent items.
func CoverLastN(n int) Coverage { return Coverage{LastN: n} }

// CoverIDRange covers every item with ID in [from, to]. to == 0 means
// "up to the newest".
func CoverIDRange(from, to int64) Coverage { return Coverage{FromID: from, ToID: to} }

// CoverTimeRange covers every item dated within [since, until]. A zero
// until means "up to now".
func CoverTimeRange(since, until time.Time) Coverage { return Coverage{Since: since, Until: until} }

// TailOnly covers nothing older than what is already stored.
func TailOnly() Coverage { return Coverage{} }

func (c Coverage) hasIDRange() bool   { return c.FromID != 0 || c.ToID != 0 }
func (c Coverage) hasTimeRange() bool { return !c.Since.IsZero() || !c.Until.IsZero() }

// Validate checks that the request uses exactly one coverage form and
// that its bounds are ordered.
func (c Coverage) Validate() error {
	forms := 0
	if c.LastN > 0 {
		forms++
	}
	if c.hasIDRange() {
		forms++
	}
	if c.hasTimeRange() {
		forms++
	}
	if forms > 1 {
		return errors.New("coverage: last-n, id range, and time range are mutually exclusive")
	}
	if c.LastN < 0 {
		return fmt.Errorf("coverage: last-n must be positive, got %d", c.LastN)
	}
	if c.FromID < 0 || c.ToID < 0 {
		return errors.New("coverage: id bounds must be positive")
	}
	if c.FromID != 0 && c.ToID != 0 && c.FromID > c.ToID {
		return fmt.Errorf("coverage: from-id (%d) must not exceed to-id (%d)", c.FromID, c.ToID)
	}
	if !c.Since.IsZero() && !c.Until.IsZero() && c.Since.After(c.Until) {
		return fmt.Errorf("coverage: since (%s) must not be after until (%s)", c.Since, c.Until)
	}
	return nil
}
