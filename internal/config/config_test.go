package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "comm:\n  heartbeat_interval_seconds: 5\n")

	cfg, err := Load(p, "")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Comm.HeartbeatIntervalSeconds)
	assert.True(t, boolOr(cfg.Comm.EnableHeartbeat, false))
	assert.Equal(t, 10, cfg.Comm.OfflineFailureThreshold)
	assert.Equal(t, 3, cfg.Comm.Retry.MaxAttempts)
	assert.Len(t, cfg.SPMapping.Groups, 16)
	assert.Equal(t, "TL", cfg.SPMapping.StartCorner)
	assert.Equal(t, []string{"R", "G", "B"}, cfg.Grouping.ColorOrder)
}

func TestLoadHonorsExplicitFalse(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "comm:\n  enable_heartbeat: false\n  retry:\n    enabled: false\n")

	cfg, err := Load(p, "")
	require.NoError(t, err)

	assert.False(t, boolOr(cfg.Comm.EnableHeartbeat, true))
	assert.False(t, boolOr(cfg.Comm.Retry.Enabled, true))
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "comm:\n  heartbeat_interval_seconds: 1\n")
	t.Setenv(EnvPath, p)

	cfg, err := Load("", "nonexistent.yaml")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Comm.HeartbeatIntervalSeconds)
}

func TestLoadRejectsInvalidGroup(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "sp_mapping:\n  groups:\n    - id: 1\n      start_sp: 10\n      end_sp: 1\n      cols_per_row: 5\n")

	_, err := Load(p, "")
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoadMissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}
