// Package config provides configuration loading and defaults for the sigdemo
// daemon.
//
// Configuration is loaded from a TOML file in the daemon's data directory.
// Drop-in files named by the include globs are layered on top of it. The
// package covers logging, the echo listener, dispatch tuning, the reload
// and stats callbacks, and the lifecycle webhook.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/sigdispatch/internal/atomicfile"
	"tools.zach/dev/sigdispatch/internal/paths"
)

// CurrentVersion is the config schema version this build writes.
const CurrentVersion = 2

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level daemon configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Listen holds the echo listener settings.
	Listen ListenConfig `toml:"listen"`
	// Dispatch tunes the signal dispatcher.
	Dispatch DispatchConfig `toml:"dispatch"`
	// Reload holds ReloadConfig callback settings.
	Reload ReloadConfig `toml:"reload"`
	// Stats holds PrintStats callback settings.
	Stats StatsConfig `toml:"stats"`
	// Notify holds lifecycle webhook settings.
	Notify NotifyConfig `toml:"notify"`
	// Include lists glob patterns, relative to the data directory, of drop-in
	// files decoded on top of this one in sorted order.
	Include []string `toml:"include"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// MaxBackups is how many rotated log files are kept.
	MaxBackups int `toml:"max_backups"`
}

// ListenConfig holds the echo listener settings.
type ListenConfig struct {
	// Address is the TCP host:port the echo server binds. Empty disables it.
	Address string `toml:"address"`
}

// DispatchConfig tunes the signal dispatcher.
type DispatchConfig struct {
	// EventCapacity bounds the registration events channel.
	EventCapacity int `toml:"event_capacity"`
	// QueueCapacity bounds each worker queue; 0 is unbounded.
	QueueCapacity int `toml:"queue_capacity"`
	// PollIntervalMS is the blocking model's routing wake period.
	PollIntervalMS int `toml:"poll_interval_ms"`
	// Async selects the cooperative model.
	Async bool `toml:"async"`
}

// ReloadConfig holds ReloadConfig callback settings.
type ReloadConfig struct {
	// SimulatedWorkMS is how long each reload pretends to work.
	SimulatedWorkMS int `toml:"simulated_work_ms"`
	// WatchConfig raises a reload when the config file or a drop-in changes.
	WatchConfig bool `toml:"watch_config"`
}

// StatsConfig holds PrintStats callback settings.
type StatsConfig struct {
	// WriteSnapshot writes stats.json next to the config on every PrintStats.
	WriteSnapshot bool `toml:"write_snapshot"`
}

// NotifyConfig holds lifecycle webhook settings.
type NotifyConfig struct {
	// URL receives a JSON POST per lifecycle event. Empty disables it.
	URL string `toml:"url,omitempty"`
	// RetryMax is the number of retries after the first attempt.
	RetryMax int `toml:"retry_max"`
	// TimeoutSeconds bounds each attempt.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Listen: ListenConfig{
			Address: "127.0.0.1:7007",
		},
		Dispatch: DispatchConfig{
			EventCapacity:  6,
			QueueCapacity:  0,
			PollIntervalMS: 1000,
			Async:          false,
		},
		Reload: ReloadConfig{
			SimulatedWorkMS: 2000,
			WatchConfig:     true,
		},
		Stats: StatsConfig{
			WriteSnapshot: true,
		},
		Notify: NotifyConfig{
			RetryMax:       3,
			TimeoutSeconds: 5,
		},
		Include: []string{},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.Include = []string{"conf.d/*.toml"}
	return cfg
}

// ///////////////////////////////////////////////
// Durations
// ///////////////////////////////////////////////

// PollInterval returns the dispatch poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Dispatch.PollIntervalMS) * time.Millisecond
}

// SimulatedWork returns how long a reload pretends to work.
func (c *Config) SimulatedWork() time.Duration {
	return time.Duration(c.Reload.SimulatedWorkMS) * time.Millisecond
}

// NotifyTimeout returns the per-attempt webhook timeout.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads dataDir/config.toml and layers every drop-in matched by its
// include patterns on top. If the main file doesn't exist, the defaults are
// used and no drop-ins are read.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	if version > CurrentVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", version, CurrentVersion)
	}

	migrated := migrations.NeedsMigration(version)
	if migrated {
		if err := atomicfile.Write(path+".bak", data, 0o644); err != nil {
			slog.Warn("failed to write config backup", "error", err)
		}
		data, _, err = migrations.Run(data, version)
		if err != nil {
			return nil, fmt.Errorf("migrate config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = CurrentVersion

	dropIns, err := IncludedFiles(dataDir, cfg.Include)
	if err != nil {
		return nil, err
	}
	include := cfg.Include
	for _, rel := range dropIns {
		extra, err := os.ReadFile(filepath.Join(dataDir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read drop-in %s: %w", rel, err)
		}
		if err := toml.Unmarshal(extra, cfg); err != nil {
			return nil, fmt.Errorf("parse drop-in %s: %w", rel, err)
		}
		slog.Debug("applied config drop-in", "file", rel)
	}
	// Drop-ins cannot add includes of their own.
	cfg.Include = include

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// Only the main file is rewritten; drop-ins stay as the operator wrote them.
	if migrated {
		if err := atomicfile.Write(path, data, 0o644); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// IncludedFiles expands patterns against dataDir and returns the matching
// files as slash-separated relative paths, sorted and deduplicated. The main
// config file never matches.
func IncludedFiles(dataDir string, patterns []string) ([]string, error) {
	fsys := os.DirFS(dataDir)
	var out []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand include %q: %w", pattern, err)
		}
		for _, m := range matches {
			if m != paths.ConfigFile {
				out = append(out, m)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}
	if c.Log.MaxBackups < 0 {
		return fmt.Errorf("log.max_backups must be >= 0, got %d", c.Log.MaxBackups)
	}

	if c.Listen.Address != "" {
		if _, _, err := net.SplitHostPort(c.Listen.Address); err != nil {
			return fmt.Errorf("invalid listen.address %q: %w", c.Listen.Address, err)
		}
	}

	if c.Dispatch.EventCapacity < 1 {
		return fmt.Errorf("dispatch.event_capacity must be >= 1, got %d", c.Dispatch.EventCapacity)
	}
	if c.Dispatch.QueueCapacity < 0 {
		return fmt.Errorf("dispatch.queue_capacity must be >= 0, got %d", c.Dispatch.QueueCapacity)
	}
	if c.Dispatch.PollIntervalMS <= 0 {
		return fmt.Errorf("dispatch.poll_interval_ms must be > 0, got %d", c.Dispatch.PollIntervalMS)
	}

	if c.Reload.SimulatedWorkMS < 0 {
		return fmt.Errorf("reload.simulated_work_ms must be >= 0, got %d", c.Reload.SimulatedWorkMS)
	}

	if c.Notify.URL != "" {
		u, err := url.Parse(c.Notify.URL)
		if err != nil {
			return fmt.Errorf("invalid notify.url: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid notify.url %q: must be an http or https URL", c.Notify.URL)
		}
	}
	if c.Notify.RetryMax < 0 {
		return fmt.Errorf("notify.retry_max must be >= 0, got %d", c.Notify.RetryMax)
	}
	if c.Notify.TimeoutSeconds <= 0 {
		return fmt.Errorf("notify.timeout_seconds must be > 0, got %d", c.Notify.TimeoutSeconds)
	}

	for _, pattern := range c.Include {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid include pattern %q", pattern)
		}
	}

	return nil
}
