// Package archive defines the domain types shared by the store, the sync
// engine, and the exporters: archived sources, items, cached senders, and
// per-source sync cursors.
package archive

import (
	"encoding/json"
	"time"
)

// SourceKind categorizes a source. The numeric source ID already encodes
// the category at the origin (sign/range); the kind tag is display metadata.
type SourceKind string

const (
	KindUser    SourceKind = "user"
	KindGroup   SourceKind = "group"
	KindChannel SourceKind = "channel"
	KindUnknown SourceKind = "unknown"
)

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case KindUser, KindGroup, KindChannel, KindUnknown:
		return true
	}
	return false
}

// Source is one archived conversation or channel.
//
// ID is globally unique and immutable once first observed. It is a signed
// integer because the origin encodes the category in the sign/range.
type Source struct {
	ID       int64
	Username string // optional handle, without leading '@'
	Title    string
	Kind     SourceKind
}

// Item is one archived message.
//
// Identity is the composite (SourceID, ID): item IDs are unique and
// monotonically assigned only within their source. SenderName is
// denormalized from the sender cache at capture time so a single row can
// render a line without a second lookup. Raw preserves the original
// payload verbatim for forward compatibility; it may be nil when raw
// storage is disabled.
type Item struct {
	ID         int64
	SourceID   int64
	Date       time.Time // origin timestamp, UTC
	SenderID   int64     // 0 when the origin attributes the item to the source itself
	SenderName string
	Text       string
	ReplyTo    int64 // ID of the replied-to item in the same source, 0 if none
	HasMedia   bool
	MediaType  string // empty when HasMedia is false
	Raw        json.RawMessage
}

// Sender is best-effort cached display metadata for a sender ID.
// It may be stale or absent; items remain valid with just the raw ID.
type Sender struct {
	ID          int64
	FirstName   string
	LastName    string
	Username    string
	RefreshedAt time.Time
}

// DisplayName returns the best human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch {
	case s.FirstName != "" && s.LastName != "":
		return s.FirstName + " " + s.LastName
	case s.FirstName != "":
		return s.FirstName
	case s.LastName != "":
		return s.LastName
	case s.Username != "":
		return s.Username
	}
	return ""
}

// Cursor is the persisted sync boundary for one source.
//
// INVARIANT: every item ID in [Lowest, Highest] is either stored or was
// never issued by the origin. Gaps may exist only below Lowest or above
// Highest. A zero cursor (Lowest == Highest == 0) means nothing synced.
type Cursor struct {
	SourceID int64
	Lowest   int64
	Highest  int64
	LastSync time.Time // zero when never synced
}

// Empty reports whether the cursor covers nothing.
func (c Cursor) Empty() bool {
	return c.Lowest == 0 && c.Highest == 0
}

// EpochMillis converts t to UTC milliseconds since the Unix epoch,
// the store's canonical timestamp encoding.
func EpochMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromEpochMillis converts store milliseconds back to a UTC instant.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
