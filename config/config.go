// Package config holds the YAML-based daemon configuration: how far ahead to
// sync, matching tolerances, loop-guard timing, and the upstream backend.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// UpstreamConfig selects and configures the system-of-record backend.
type UpstreamConfig struct {
	// Kind is the backend type: "sqlite" or "caldav".
	Kind string `yaml:"kind"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path,omitempty"`

	// CalDAV settings for the caldav backend.
	CalDAVURL      string `yaml:"caldav_url,omitempty"`
	CalDAVUsername string `yaml:"caldav_username,omitempty"`
	CalDAVPassword string `yaml:"caldav_password,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// ScopeID is the platform scope (guild/workspace) whose events are
	// reconciled.
	ScopeID string `yaml:"scope_id"`

	// SyncWindowMonths is how far into the future canonical events are
	// considered each pass.
	SyncWindowMonths int `yaml:"sync_window_months"`

	// MaxMaterializedOccurrences caps how many concrete occurrences a
	// recurring master asks the platform to expand.
	MaxMaterializedOccurrences int `yaml:"max_materialized_occurrences"`

	// MatchToleranceSeconds bounds start/end drift when matching canonical
	// events to platform objects.
	MatchToleranceSeconds int `yaml:"match_tolerance_seconds"`

	// SelfWriteSuppressSeconds is the loop-guard TTL; it also serves as
	// the quiet period after an upstream write.
	SelfWriteSuppressSeconds int `yaml:"self_write_suppress_seconds"`

	// RefreshCron schedules periodic passes (robfig/cron syntax).
	RefreshCron string `yaml:"refresh"`

	Upstream UpstreamConfig `yaml:"upstream"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncWindowMonths:           6,
		MaxMaterializedOccurrences: 24,
		MatchToleranceSeconds:      300,
		SelfWriteSuppressSeconds:   10,
		RefreshCron:                "@every 5m",
		Upstream: UpstreamConfig{
			Kind:       "sqlite",
			SQLitePath: "guildsync.db",
		},
	}
}

// Normalize fills missing/zero values with defaults so partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.SyncWindowMonths <= 0 {
		c.SyncWindowMonths = 6
	}
	if c.MaxMaterializedOccurrences <= 0 {
		c.MaxMaterializedOccurrences = 24
	}
	if c.MatchToleranceSeconds <= 0 {
		c.MatchToleranceSeconds = 300
	}
	if c.SelfWriteSuppressSeconds <= 0 {
		c.SelfWriteSuppressSeconds = 10
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "@every 5m"
	}
	switch c.Upstream.Kind {
	case "sqlite", "caldav":
	default:
		c.Upstream.Kind = "sqlite"
	}
	if c.Upstream.Kind == "sqlite" && c.Upstream.SQLitePath == "" {
		c.Upstream.SQLitePath = "guildsync.db"
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.ScopeID == "" {
		return errors.New("scope_id is required")
	}
	if c.Upstream.Kind == "caldav" && c.Upstream.CalDAVURL == "" {
		return errors.New("upstream.caldav_url is required for the caldav backend")
	}
	return nil
}

// MatchTolerance returns the match tolerance as a duration.
func (c *Config) MatchTolerance() time.Duration {
	return time.Duration(c.MatchToleranceSeconds) * time.Second
}

// SelfWriteSuppress returns the loop-guard TTL as a duration.
func (c *Config) SelfWriteSuppress() time.Duration {
	return time.Duration(c.SelfWriteSuppressSeconds) * time.Second
}

// Load loads configuration from the given YAML path. On first run the file
// is created with defaults and 0600 permissions.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, since the upstream section may hold credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".guildsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
