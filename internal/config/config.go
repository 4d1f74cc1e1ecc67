// Package config loads tool configuration: built-in defaults, then an
// optional TOML file, then CHATARC_ environment variables, each layer
// overriding the previous one.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration.
type Config struct {
	DB struct {
		Path string `koanf:"path"`
	} `koanf:"db"`

	Sync struct {
		BatchSize             int     `koanf:"batch_size"`
		FloodThresholdSeconds int     `koanf:"flood_threshold_seconds"`
		DefaultTarget         int     `koanf:"default_target"`
		FetchPerSecond        float64 `koanf:"fetch_per_second"`
		StoreRaw              bool    `koanf:"store_raw"`
	} `koanf:"sync"`

	Export struct {
		Timezone string `koanf:"timezone"`
	} `koanf:"export"`
}

// FloodThreshold returns the configured stall cutoff as a duration.
func (c *Config) FloodThreshold() time.Duration {
	return time.Duration(c.Sync.FloodThresholdSeconds) * time.Second
}

// ExportLocation resolves the configured export timezone. Empty means UTC.
func (c *Config) ExportLocation() (*time.Location, error) {
	if c.Export.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Export.Timezone)
	if err != nil {
		return nil, fmt.Errorf("bad export timezone %q: %w", c.Export.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from the given path, or from the default
// locations (./chatarc.toml, $HOME/.chatarc.toml) when path is empty.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Built-in defaults.
	k.Load(confmap.Provider(map[string]interface{}{
		"db.path":                      "chatarc.db",
		"sync.batch_size":              100,
		"sync.flood_threshold_seconds": 60,
		"sync.default_target":          1000,
		"sync.fetch_per_second":        1.0,
		"sync.store_raw":               true,
		"export.timezone":              "",
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./chatarc.toml", "$HOME/.chatarc.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Environment overrides: CHATARC_SYNC__BATCH_SIZE -> sync.batch_size.
	// Double underscore separates sections so key names may keep single
	// underscores.
	k.Load(env.Provider("CHATARC_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "CHATARC_")
		return strings.Replace(strings.ToLower(s), "__", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Init writes a commented sample configuration file.
func Init(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# chatarc configuration

[db]
path = "chatarc.db"

[sync]
batch_size = 100
flood_threshold_seconds = 60
default_target = 1000
fetch_per_second = 1.0
store_raw = true

[export]
# IANA timezone for txt exports; empty means UTC.
timezone = ""
`
	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate checks the configuration for usable values.
func Validate(config *Config) error {
	if config.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if config.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive, got %d", config.Sync.BatchSize)
	}
	if config.Sync.FloodThresholdSeconds < 0 {
		return fmt.Errorf("sync.flood_threshold_seconds must not be negative")
	}
	if config.Sync.DefaultTarget < 0 {
		return fmt.Errorf("sync.default_target must not be negative")
	}
	if config.Sync.FetchPerSecond <= 0 {
		return fmt.Errorf("sync.fetch_per_second must be positive")
	}
	if _, err := config.ExportLocation(); err != nil {
		return err
	}
	return nil
}
