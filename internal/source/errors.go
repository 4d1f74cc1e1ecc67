package source

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Resolver.Resolve when a reference does not
// name any source the caller can access.
var ErrNotFound = errors.New("source not found")

// RateLimitedError signals origin backpressure: the caller must wait the
// given duration before retrying the same boundary. It is not a failure;
// no state is lost and the retried fetch returns the same items.
type RateLimitedError struct {
	Wait time.Duration
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by origin: wait %s", e.Wait)
}

// UnavailableError signals a permanent access failure for the source
// (revoked access, deleted source). Retrying will not help; the sync for
// this source must abort with the cursor left as last committed.
type UnavailableError struct {
	Reason string
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.Reason == "" {
		return "source unavailable"
	}
	return fmt.Sprintf("source unavailable: %s", e.Reason)
}

// TransientError wraps a retry-safe failure (network hiccup, internal
// origin error). The same fetch may be retried with backoff.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient source error: %v", e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// AsRateLimited returns the required wait and true if err (or anything it
// wraps) is a RateLimitedError.
func AsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.Wait, true
	}
	return 0, false
}

// IsUnavailable reports whether err is a permanent source-access failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsTransient reports whether err is safe to retry at the same boundary.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
