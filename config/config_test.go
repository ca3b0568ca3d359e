package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_FillsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Normalize()

	assert.Equal(t, 6, cfg.SyncWindowMonths)
	assert.Equal(t, 24, cfg.MaxMaterializedOccurrences)
	assert.Equal(t, 300, cfg.MatchToleranceSeconds)
	assert.Equal(t, 10, cfg.SelfWriteSuppressSeconds)
	assert.Equal(t, "@every 5m", cfg.RefreshCron)
	assert.Equal(t, "sqlite", cfg.Upstream.Kind)
	assert.Equal(t, "guildsync.db", cfg.Upstream.SQLitePath)
}

func TestNormalize_UnknownUpstreamFallsBack(t *testing.T) {
	cfg := &Config{Upstream: UpstreamConfig{Kind: "carrier-pigeon"}}
	cfg.Normalize()
	assert.Equal(t, "sqlite", cfg.Upstream.Kind)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())

	cfg.ScopeID = "guild-1"
	assert.NoError(t, cfg.Validate())

	cfg.Upstream = UpstreamConfig{Kind: "caldav"}
	assert.Error(t, cfg.Validate())

	cfg.Upstream.CalDAVURL = "https://cal.example.com/alice/events/"
	assert.NoError(t, cfg.Validate())
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Minute, cfg.MatchTolerance())
	assert.Equal(t, 10*time.Second, cfg.SelfWriteSuppress())
}

func TestLoad_FirstRunCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.SyncWindowMonths)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.ScopeID = "guild-1"
	cfg.SyncWindowMonths = 3
	cfg.Upstream = UpstreamConfig{
		Kind:           "caldav",
		CalDAVURL:      "https://cal.example.com/alice/events/",
		CalDAVUsername: "alice",
		CalDAVPassword: "secret",
	}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scope_id: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
