package store

import (
	"context"
	"testing"
	"time"

	"github.com/chatarc/chatarc/internal/archive"
)

func TestGetCursor_UnseenSourceIsZero(t *testing.T) {
	s := createTestStore(t)

	cur, err := s.GetCursor(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetCursor() failed: %v", err)
	}
	if !cur.Empty() {
		t.Errorf("cursor for unseen source = %+v, want empty", cur)
	}
	if cur.SourceID != 999 {
		t.Errorf("SourceID = %d, want 999", cur.SourceID)
	}
	if !cur.LastSync.IsZero() {
		t.Errorf("LastSync = %v, want zero", cur.LastSync)
	}
}

func TestSetCursor_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSource(t, s, 10)

	want := archive.Cursor{
		SourceID: 10,
		Lowest:   100,
		Highest:  250,
		LastSync: time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC),
	}
	if err := s.SetCursor(ctx, want); err != nil {
		t.Fatalf("SetCursor() failed: %v", err)
	}

	got, err := s.GetCursor(ctx, 10)
	if err != nil {
		t.Fatalf("GetCursor() failed: %v", err)
	}
	if got.Lowest != want.Lowest || got.Highest != want.Highest {
		t.Errorf("cursor = (%d, %d), want (%d, %d)", got.Lowest, got.Highest, want.Lowest, want.Highest)
	}
	if !got.LastSync.Equal(want.LastSync) {
		t.Errorf("LastSync = %v, want %v", got.LastSync, want.LastSync)
	}
}

func TestSetCursor_Overwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSource(t, s, 10)

	first := archive.Cursor{SourceID: 10, Lowest: 5, Highest: 9, LastSync: time.Now().UTC()}
	if err := s.SetCursor(ctx, first); err != nil {
		t.Fatalf("SetCursor() failed: %v", err)
	}

	second := archive.Cursor{SourceID: 10, Lowest: 3, Highest: 12, LastSync: time.Now().UTC()}
	if err := s.SetCursor(ctx, second); err != nil {
		t.Fatalf("second SetCursor() failed: %v", err)
	}

	got, _ := s.GetCursor(ctx, 10)
	if got.Lowest != 3 || got.Highest != 12 {
		t.Errorf("cursor = (%d, %d), want (3, 12)", got.Lowest, got.Highest)
	}
}

func TestSetCursor_InvertedBoundsRejected(t *testing.T) {
	s := createTestStore(t)
	createTestSource(t, s, 10)

	bad := archive.Cursor{SourceID: 10, Lowest: 10, Highest: 5}
	if err := s.SetCursor(context.Background(), bad); err == nil {
		t.Error("expected error for lowest > highest, got nil")
	}
}

func TestSetCursor_ZeroSourceRejected(t *testing.T) {
	s := createTestStore(t)
	if err := s.SetCursor(context.Background(), archive.Cursor{}); err == nil {
		t.Error("expected error for zero source id, got nil")
	}
}
