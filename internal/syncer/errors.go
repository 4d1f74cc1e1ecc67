package syncer

import (
	"errors"
	"fmt"
)

// SyncError represents a failure surfaced by a sync run.
//
// The engine never swallows failures: every abort carries a SyncError (or
// a context error on cancellation) and the persisted cursor is always the
// last committed, consistent state.
type SyncError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// SourceID identifies the affected source.
	SourceID int64

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes sync failures.
type ErrorCode string

const (
	// ErrCodeTransient indicates a retry-safe network failure that
	// exhausted its retries.
	ErrCodeTransient ErrorCode = "TRANSIENT_NETWORK"

	// ErrCodePermanentAccess indicates the source revoked access or
	// disappeared. The sync aborts with the cursor untouched.
	ErrCodePermanentAccess ErrorCode = "PERMANENT_ACCESS"

	// ErrCodeStorageFault indicates the record store failed. The whole
	// operation aborts immediately; no partial commits are attempted.
	ErrCodeStorageFault ErrorCode = "STORAGE_FAULT"

	// ErrCodeInvariantViolation indicates an internal consistency check
	// failed (cursor lowest > highest, misordered chunk from the source).
	// Treated as a bug: logged loudly, nothing further is mutated.
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.SourceID != 0 {
		return fmt.Sprintf("%s: %s (source=%d)", e.Code, e.Message, e.SourceID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsStorageFault reports whether err is a record store failure.
func IsStorageFault(err error) bool {
	return hasCode(err, ErrCodeStorageFault)
}

// IsPermanentAccess reports whether err is a permanent source-access failure.
func IsPermanentAccess(err error) bool {
	return hasCode(err, ErrCodePermanentAccess)
}

// IsInvariantViolation reports whether err is an internal consistency failure.
func IsInvariantViolation(err error) bool {
	return hasCode(err, ErrCodeInvariantViolation)
}

// IsTransient reports whether err is an exhausted-retries network failure.
func IsTransient(err error) bool {
	return hasCode(err, ErrCodeTransient)
}

func hasCode(err error, code ErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func storageFault(sourceID int64, err error) *SyncError {
	return &SyncError{
		Code:     ErrCodeStorageFault,
		Message:  err.Error(),
		SourceID: sourceID,
		Err:      err,
	}
}

func invariantViolation(sourceID int64, format string, args ...any) *SyncError {
	return &SyncError{
		Code:     ErrCodeInvariantViolation,
		Message:  fmt.Sprintf(format, args...),
		SourceID: sourceID,
	}
}
