package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatarc/chatarc/internal/syncer"
)

func TestParseStartTime(t *testing.T) {
	start, err := parseStartTime("2024-04-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), start)

	start, err = parseStartTime("2024-04-01T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 1, 8, 30, 0, 0, time.UTC), start)

	empty, err := parseStartTime("")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	_, err = parseStartTime("april fools")
	assert.Error(t, err)
}

func TestParseEndTime_SnapsToEndOfDay(t *testing.T) {
	end, err := parseEndTime("2024-04-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 1, 23, 59, 59, 999000000, time.UTC), end)

	// Explicit timestamps pass through untouched.
	end, err = parseEndTime("2024-04-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC), end)
}

func TestBuildCoverage(t *testing.T) {
	cov, err := buildCoverage(100, 0, 0, "", "", 1000)
	require.NoError(t, err)
	assert.Equal(t, syncer.CoverLastN(100), cov)

	cov, err = buildCoverage(0, 10, 50, "", "", 1000)
	require.NoError(t, err)
	assert.Equal(t, syncer.CoverIDRange(10, 50), cov)

	cov, err = buildCoverage(0, 0, 0, "2024-04-01", "2024-04-02", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cov.FromID)
	assert.False(t, cov.Since.IsZero())
	assert.False(t, cov.Until.IsZero())

	// No flags: configured default target applies.
	cov, err = buildCoverage(0, 0, 0, "", "", 1000)
	require.NoError(t, err)
	assert.Equal(t, syncer.CoverLastN(1000), cov)

	// No flags and no default: tail only.
	cov, err = buildCoverage(0, 0, 0, "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, syncer.TailOnly(), cov)

	_, err = buildCoverage(100, 5, 0, "", "", 1000)
	assert.Error(t, err, "mixed coverage forms must be rejected")

	_, err = buildCoverage(0, 50, 10, "", "", 1000)
	assert.Error(t, err, "inverted id range must be rejected")
}
