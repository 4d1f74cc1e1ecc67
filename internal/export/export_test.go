package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatarc/chatarc/internal/archive"
	"github.com/chatarc/chatarc/internal/source"
	"github.com/chatarc/chatarc/internal/store"
)

var testSource = archive.Source{ID: 7, Username: "devchat", Title: "Dev Chat", Kind: archive.KindGroup}

// newFixtureStore builds a store holding a small conversation that
// exercises replies, media, empty bodies, and multi-line text.
func newFixtureStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.PutSource(ctx, testSource))

	base := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	items := []archive.Item{
		{ID: 1, SourceID: 7, Date: base, SenderID: 11, SenderName: "alice", Text: "hello world"},
		{ID: 2, SourceID: 7, Date: base.Add(1 * time.Minute), SenderID: 12, SenderName: "bob", Text: "hi!", ReplyTo: 1},
		{ID: 3, SourceID: 7, Date: base.Add(2 * time.Minute), SenderID: 11, SenderName: "alice", HasMedia: true, MediaType: "photo"},
		{ID: 4, SourceID: 7, Date: base.Add(3 * time.Minute), SenderID: 12, SenderName: "bob", Text: "spec attached", HasMedia: true, MediaType: "document"},
		{ID: 5, SourceID: 7, Date: base.Add(4 * time.Minute)},
		{ID: 6, SourceID: 7, Date: base.Add(5 * time.Minute), SenderID: 11, SenderName: "alice", Text: "line1\nline2", ReplyTo: 99},
	}
	_, err = st.PutItems(ctx, items)
	require.NoError(t, err)
	return st
}

func TestExportTXT_Golden(t *testing.T) {
	st := newFixtureStore(t)

	var buf bytes.Buffer
	w, err := NewTXT(&buf, testSource, nil)
	require.NoError(t, err)
	require.NoError(t, Run(context.Background(), st, 7, store.ItemFilter{}, w))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export_txt", buf.Bytes())
}

func TestExportJSONL_Golden(t *testing.T) {
	st := newFixtureStore(t)

	var buf bytes.Buffer
	w := NewJSONL(&buf, testSource, false)
	require.NoError(t, Run(context.Background(), st, 7, store.ItemFilter{}, w))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export_jsonl", buf.Bytes())
}

func TestExportTXT_Timezone(t *testing.T) {
	st := newFixtureStore(t)

	var buf bytes.Buffer
	w, err := NewTXT(&buf, testSource, time.FixedZone("UTC+2", 2*3600))
	require.NoError(t, err)
	require.NoError(t, Run(context.Background(), st, 7, store.ItemFilter{}, w))

	assert.Contains(t, buf.String(), "[1] 2024-04-01 10:00:00 | alice | hello world")
}

func TestExportTXT_FilterApplied(t *testing.T) {
	st := newFixtureStore(t)

	var buf bytes.Buffer
	w, err := NewTXT(&buf, testSource, nil)
	require.NoError(t, err)
	require.NoError(t, Run(context.Background(), st, 7, store.ItemFilter{LastN: 2}, w))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3, "header plus two items")
	assert.True(t, strings.HasPrefix(lines[1], "[5] "))
	assert.True(t, strings.HasPrefix(lines[2], "[6] "))
}

func TestExportJSONL_IncludeRaw(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.PutSource(ctx, testSource))
	item := archive.Item{
		ID: 1, SourceID: 7,
		Date: time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC),
		Text: "x", Raw: []byte(`{"a":1}`),
	}
	_, err = st.PutItems(ctx, []archive.Item{item})
	require.NoError(t, err)

	var withRaw bytes.Buffer
	require.NoError(t, Run(ctx, st, 7, store.ItemFilter{}, NewJSONL(&withRaw, testSource, true)))
	assert.Contains(t, withRaw.String(), `"raw":{"a":1}`)

	var withoutRaw bytes.Buffer
	require.NoError(t, Run(ctx, st, 7, store.ItemFilter{}, NewJSONL(&withoutRaw, testSource, false)))
	assert.NotContains(t, withoutRaw.String(), `"raw"`)
}

func TestExportJSONL_RoundTripsThroughDumpSource(t *testing.T) {
	st := newFixtureStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "dump.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, Run(ctx, st, 7, store.ItemFilter{}, NewJSONL(f, testSource, false)))
	require.NoError(t, f.Close())

	d, err := source.OpenDump(path)
	require.NoError(t, err)

	src, err := d.Resolve(ctx, "@devchat")
	require.NoError(t, err)
	assert.Equal(t, testSource, src)

	chunk, err := d.FetchAfter(ctx, 7, 0, 100)
	require.NoError(t, err)
	require.Len(t, chunk.Items, 6)
	assert.Equal(t, "hello world", chunk.Items[0].Text)
	assert.Equal(t, int64(1), chunk.Items[1].ReplyTo)
	assert.Equal(t, "photo", chunk.Items[2].MediaType)
}
