package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Point at a file that does not exist in default locations by running
	// from a temp dir.
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "chatarc.db", cfg.DB.Path)
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, 60, cfg.Sync.FloodThresholdSeconds)
	assert.Equal(t, 1000, cfg.Sync.DefaultTarget)
	assert.Equal(t, 1.0, cfg.Sync.FetchPerSecond)
	assert.True(t, cfg.Sync.StoreRaw)
	assert.Equal(t, "", cfg.Export.Timezone)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[db]
path = "/var/lib/chatarc/archive.db"

[sync]
batch_size = 50
flood_threshold_seconds = 30

[export]
timezone = "Europe/Berlin"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/chatarc/archive.db", cfg.DB.Path)
	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, 30, cfg.Sync.FloodThresholdSeconds)
	// Untouched keys keep defaults.
	assert.Equal(t, 1000, cfg.Sync.DefaultTarget)

	loc, err := cfg.ExportLocation()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[sync]
batch_size = 50
`)
	t.Setenv("CHATARC_SYNC__BATCH_SIZE", "25")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Sync.BatchSize)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"zero batch size", "[sync]\nbatch_size = 0\n"},
		{"negative threshold", "[sync]\nflood_threshold_seconds = -1\n"},
		{"bad timezone", "[export]\ntimezone = \"Mars/Olympus\"\n"},
		{"empty db path", "[db]\npath = \"\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestInit_WritesSampleAndRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatarc.toml")

	require.NoError(t, Init(path))

	// The sample must load cleanly.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Sync.BatchSize)

	assert.Error(t, Init(path), "existing file must not be clobbered")
}

func TestFloodThreshold(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[sync]\nflood_threshold_seconds = 90\n"))
	require.NoError(t, err)
	assert.Equal(t, "1m30s", cfg.FloodThreshold().String())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatarc.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
