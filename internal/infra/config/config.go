// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RelativePath is where the config file is searched for under the XDG config dirs.
const RelativePath = "lightmusic/config.yaml"

// Remove-current policies.
const (
	RemoveCurrentStop    = "stop"
	RemoveCurrentAdvance = "advance"
)

// Config represents the application configuration.
type Config struct {
	Output   OutputConfig            `yaml:"output"`
	Playback PlaybackConfig          `yaml:"playback"`
	Playlist PlaylistConfig          `yaml:"playlist"`
	Library  LibraryConfig           `yaml:"library"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Watch    WatchConfig             `yaml:"watch"`
	Log      LogConfig               `yaml:"log"`
}

// OutputConfig selects the audio output.
type OutputConfig struct {
	Backend string `yaml:"backend" default:"portaudio" validate:"oneof=portaudio speaker null"`
	Device  string `yaml:"device" default:"default"`
}

// PlaybackConfig represents playback loop configuration.
type PlaybackConfig struct {
	TickIntervalMs         int   `yaml:"tick_interval_ms" default:"20" validate:"gte=1,lte=1000"`
	RefreshIntervalMs      int   `yaml:"refresh_interval_ms" default:"500" validate:"gte=10,lte=10000"`
	IdleSleepMs            int   `yaml:"idle_sleep_ms" default:"100" validate:"gte=1,lte=5000"`
	PacketsPerTick         int   `yaml:"packets_per_tick" default:"2" validate:"gte=1,lte=16"`
	MaxConsecutiveFailures int   `yaml:"max_consecutive_failures" default:"100" validate:"gte=1"`
	ResampleQuality        int   `yaml:"resample_quality" default:"4" validate:"gte=1,lte=64"`
	Autoplay               *bool `yaml:"autoplay" default:"true"`
}

// PlaylistConfig represents playlist behavior.
type PlaylistConfig struct {
	Shuffle       bool   `yaml:"shuffle"`
	Seed          uint64 `yaml:"seed"`
	RemoveCurrent string `yaml:"remove_current" default:"stop" validate:"oneof=stop advance"`
}

// LibraryConfig lists the providers that build the initial track list.
type LibraryConfig struct {
	Providers []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single track provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=paths directory m3u"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings" validate:"required"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// WatchConfig represents directory watching.
type WatchConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Paths    []string `yaml:"paths" validate:"required_if=Enabled true"`
	SettleMs int      `yaml:"settle_ms" default:"1000" validate:"gte=0"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stderr"`
	File   string `yaml:"file"`
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	var cfg Config
	// defaults.Set only fails on malformed tags.
	if err := defaults.Set(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// ResolvePath returns explicit if set, otherwise the first config file found
// in the XDG config directories. An empty result means none was found.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	path, err := xdg.SearchConfigFile(RelativePath)
	if err != nil {
		return ""
	}
	return path
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Relative paths in the file are relative to the file.
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// LoadOrDefault loads path, or returns Default with environment overrides
// when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.overrideFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, errors.Wrap(err, "config validation failed")
		}
		return cfg, nil
	}
	return Load(path)
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("LIGHTMUSIC_BACKEND"); v != "" {
		c.Output.Backend = v
	}
	if v := os.Getenv("LIGHTMUSIC_DEVICE"); v != "" {
		c.Output.Device = v
	}
	if v := os.Getenv("LIGHTMUSIC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i := range c.Watch.Paths {
		c.Watch.Paths[i] = abs(c.Watch.Paths[i])
	}
	for _, p := range c.Library.Providers {
		switch p.Type {
		case "directory", "m3u":
			if s, ok := p.Settings["path"].(string); ok {
				p.Settings["path"] = abs(s)
			}
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if c.Playback.RefreshIntervalMs < c.Playback.TickIntervalMs {
		return errors.Newf("refresh_interval_ms (%d) must not be shorter than tick_interval_ms (%d)",
			c.Playback.RefreshIntervalMs, c.Playback.TickIntervalMs)
	}
	return nil
}

// TickInterval returns the playback tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Playback.TickIntervalMs) * time.Millisecond
}

// RefreshInterval returns the status refresh period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Playback.RefreshIntervalMs) * time.Millisecond
}

// IdleSleep returns the poll period while nothing is playing.
func (c *Config) IdleSleep() time.Duration {
	return time.Duration(c.Playback.IdleSleepMs) * time.Millisecond
}

// AutoplayEnabled reports whether playback starts as soon as tracks are loaded.
func (c *Config) AutoplayEnabled() bool {
	return c.Playback.Autoplay == nil || *c.Playback.Autoplay
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
