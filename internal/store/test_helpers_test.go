package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatarc/chatarc/internal/archive"
)

// createTestStore creates a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSource inserts a source row so item and cursor writes pass
// foreign key checks.
func createTestSource(t *testing.T, s *Store, id int64) archive.Source {
	t.Helper()
	src := archive.Source{
		ID:       id,
		Username: fmt.Sprintf("chat%d", id),
		Title:    fmt.Sprintf("Chat %d", id),
		Kind:     archive.KindGroup,
	}
	if err := s.PutSource(context.Background(), src); err != nil {
		t.Fatalf("PutSource() failed: %v", err)
	}
	return src
}

// createTestItem builds an item with deterministic content derived from
// its ID.
func createTestItem(sourceID, id int64) archive.Item {
	return archive.Item{
		ID:         id,
		SourceID:   sourceID,
		Date:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
		SenderID:   500 + id%2,
		SenderName: fmt.Sprintf("sender-%d", 500+id%2),
		Text:       fmt.Sprintf("message %d", id),
	}
}

// createTestItems builds n consecutive items starting at fromID.
func createTestItems(sourceID, fromID int64, n int) []archive.Item {
	items := make([]archive.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, createTestItem(sourceID, fromID+int64(i)))
	}
	return items
}
