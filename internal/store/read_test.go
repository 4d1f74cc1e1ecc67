package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatarc/chatarc/internal/archive"
)

func TestQueryItems_AscendingRegardlessOfInsertOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSource(t, s, 10)

	// Insert scrambled: a backfill chunk (descending IDs), then a tail chunk.
	backfill := []archive.Item{
		createTestItem(10, 30),
		createTestItem(10, 20),
		createTestItem(10, 10),
	}
	if _, err := s.PutItems(ctx, backfill); err != nil {
		t.Fatalf("PutItems() failed: %v", err)
	}
	if _, err := s.PutItems(ctx, createTestItems(10, 40, 2)); err != nil {
		t.Fatalf("PutItems() failed: %v", err)
	}

	items, err := s.QueryItems(ctx, 10, ItemFilter{})
	if err != nil {
		t.Fatalf("QueryItems() failed: %v", err)
	}

	want := []int64{10, 20, 30, 40, 41}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("items[%d].ID = %d, want %d", i, items[i].ID, id)
		}
	}
}

func TestQueryItems_IDRangeFilterExclusive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSource(t, s, 10)
	if _, err := s.PutItems(ctx, createTestItems(10, 1, 10)); err != nil {
		t.Fatalf("PutItems() failed: %v", err)
	}

	items, err := s.QueryItems(ctx, 10, ItemFilter{SinceID: 3, UntilID: 7})
	if err != nil {
		t.Fatalf("QueryItems() failed: %v", err)
	}

	want := []int64{4, 5, 6}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("items[%d].ID = %d, want %d", i, items[i].ID, id)
		}
	}
}

func TestQueryItems_DateRangeInclusive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSource(t, s, 10)
	if _, err := s.PutItems(ctx, createTestItems(10, 1, 10)); err != nil {
		t.Fatalf("PutItems() failed: %v", err)
	}

	// Items are dated base + id minutes; select items 3..5 by their dates.
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	items, err := s.QueryItems(ctx, 10, ItemFilter{
		Start: base.Add(3 * time.Minute),
		End:   base.Add(5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("QueryItems() failed: %v", err)
	}

	want := []int64{3, 4, 5}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("items[%d].ID = %d, want %d", i, items[i].ID, id)
		}
	}
}

func TestQueryItems_LastNNewestAscending(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSource(t, s, 10)
	if _, err := s.PutItems(ctx, createTestItems(10, 1, 10)); err != nil {
		t.Fatalf("PutItems() failed: %v", err)
	}

	items, err := s.QueryItems(ctx, 10, ItemFilter{LastN: 3})
	if err != nil {
		t.Fatalf("QueryItems() failed: %v", err)
	}

	want := []int64{8, 9, 10}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("items[%d].ID = %d, want %d", i, items[i].ID, id)
		}
	}
}

func TestQueryItems_FilterValidation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		filter ItemFilter
	}{
		{"last-n with id bound", ItemFilter{LastN: 5, SinceID: 3}},
		{"inverted id range", ItemFilter{SinceID: 7, UntilID: 3}},
		{"inverted date range", ItemFilter{
			Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		}},
		{"negative last-n", ItemFilter{LastN: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.QueryItems(ctx, 10, tc.filter); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestQueryItems_EmptyResultNotNil(t *testing.T) {
	s := createTestStore(t)

	items, err := s.QueryItems(context.Background(), 10, ItemFilter{})
	if err != nil {
		t.Fatalf("QueryItems() failed: %v", err)
	}
	if items == nil {
		t.Error("QueryItems() returned nil, want empty slice")
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

func TestScanExport_ResolvesReplySender(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSource(t, s, 10)

	first := createTestItem(10, 1)
	first.SenderName = "alice"
	reply := createTestItem(10, 2)
	reply.SenderName = "bob"
	reply.ReplyTo = 1
	dangling := createTestItem(10, 3)
	dangling.ReplyTo = 99 // outside the archive

	if _, err := s.PutItems(ctx, []archive.Item{first, reply, dangling}); err != nil {
		t.Fatalf("PutItems() failed: %v", err)
	}

	var rows []ExportRow
	err := s.ScanExport(ctx, 10, ItemFilter{}, func(r ExportRow) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanExport() failed: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].ReplySenderName != "" {
		t.Errorf("row 1 ReplySenderName = %q, want empty", rows[0].ReplySenderName)
	}
	if rows[1].ReplySenderName != "alice" {
		t.Errorf("row 2 ReplySenderName = %q, want %q", rows[1].ReplySenderName, "alice")
	}
	if rows[2].ReplySenderName != "" {
		t.Errorf("dangling reply ReplySenderName = %q, want empty", rows[2].ReplySenderName)
	}
}

func TestScanExport_CallbackErrorStopsScan(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSource(t, s, 10)
	if _, err := s.PutItems(ctx, createTestItems(10, 1, 5)); err != nil {
		t.Fatalf("PutItems() failed: %v", err)
	}

	sentinel := errors.New("stop")
	seen := 0
	err := s.ScanExport(ctx, 10, ItemFilter{}, func(ExportRow) error {
		seen++
		if seen == 2 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("ScanExport() error = %v, want sentinel", err)
	}
	if seen != 2 {
		t.Errorf("callback ran %d times, want 2", seen)
	}
}

func TestOldestItemTime(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSource(t, s, 10)

	_, ok, err := s.OldestItemTime(ctx, 10)
	if err != nil {
		t.Fatalf("OldestItemTime() failed: %v", err)
	}
	if ok {
		t.Error("OldestItemTime() reported a time for an empty source")
	}

	if _, err := s.PutItems(ctx, createTestItems(10, 5, 3)); err != nil {
		t.Fatalf("PutItems() failed: %v", err)
	}

	oldest, ok, err := s.OldestItemTime(ctx, 10)
	if err != nil {
		t.Fatalf("OldestItemTime() failed: %v", err)
	}
	if !ok {
		t.Fatal("OldestItemTime() found nothing after insert")
	}
	if !oldest.Equal(createTestItem(10, 5).Date) {
		t.Errorf("oldest = %v, want date of item 5", oldest)
	}
}

func TestHasItemAtOrBefore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSource(t, s, 10)
	if _, err := s.PutItems(ctx, createTestItems(10, 5, 3)); err != nil {
		t.Fatalf("PutItems() failed: %v", err)
	}

	if ok, _ := s.HasItemAtOrBeforeID(ctx, 10, 4); ok {
		t.Error("HasItemAtOrBeforeID(4) = true, want false")
	}
	if ok, _ := s.HasItemAtOrBeforeID(ctx, 10, 5); !ok {
		t.Error("HasItemAtOrBeforeID(5) = false, want true")
	}

	boundary := createTestItem(10, 5).Date
	if ok, _ := s.HasItemAtOrBeforeTime(ctx, 10, boundary.Add(-time.Second)); ok {
		t.Error("HasItemAtOrBeforeTime(before oldest) = true, want false")
	}
	if ok, _ := s.HasItemAtOrBeforeTime(ctx, 10, boundary); !ok {
		t.Error("HasItemAtOrBeforeTime(at oldest) = false, want true")
	}
}

func TestGetSource_Unknown(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetSource(context.Background(), 404)
	if !errors.Is(err, ErrSourceUnknown) {
		t.Errorf("GetSource() error = %v, want ErrSourceUnknown", err)
	}
}

func TestListSources(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.PutSource(ctx, archive.Source{ID: 2, Username: "beta", Title: "Beta", Kind: archive.KindChannel}); err != nil {
		t.Fatalf("PutSource() failed: %v", err)
	}
	if err := s.PutSource(ctx, archive.Source{ID: 1, Username: "alpha", Title: "Alpha", Kind: archive.KindGroup}); err != nil {
		t.Fatalf("PutSource() failed: %v", err)
	}

	if _, err := s.PutItems(ctx, createTestItems(1, 1, 3)); err != nil {
		t.Fatalf("PutItems() failed: %v", err)
	}
	cur := archive.Cursor{SourceID: 1, Lowest: 1, Highest: 3, LastSync: time.Now().UTC()}
	if err := s.SetCursor(ctx, cur); err != nil {
		t.Fatalf("SetCursor() failed: %v", err)
	}

	infos, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources() failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d sources, want 2", len(infos))
	}

	// Ordered by title.
	if infos[0].Source.Title != "Alpha" || infos[1].Source.Title != "Beta" {
		t.Errorf("order = [%s, %s], want [Alpha, Beta]", infos[0].Source.Title, infos[1].Source.Title)
	}
	if infos[0].Count != 3 {
		t.Errorf("Alpha count = %d, want 3", infos[0].Count)
	}
	if infos[0].Cursor.Lowest != 1 || infos[0].Cursor.Highest != 3 {
		t.Errorf("Alpha cursor = (%d, %d), want (1, 3)", infos[0].Cursor.Lowest, infos[0].Cursor.Highest)
	}
	if infos[1].Count != 0 {
		t.Errorf("Beta count = %d, want 0", infos[1].Count)
	}
	if !infos[1].Cursor.Empty() {
		t.Errorf("Beta cursor = %+v, want empty", infos[1].Cursor)
	}
}
