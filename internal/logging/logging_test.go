package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaoqih/material-identification-upper-computer/internal/config"
)

func TestNewWritesToConfiguredFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	cfg := &config.Config{}
	cfg.Logging.File = path
	cfg.Logging.Level = "debug"
	enabled := false
	cfg.Logging.Rotate.Enabled = &enabled

	logger, err := New(cfg, "ingress")
	require.NoError(t, err)
	logger.Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "ingress")
}

func TestRotatingWriterRotatesPastMaxBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	w, err := newRotatingWriter(path, 10, 2)
	require.NoError(t, err)

	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = w.Write([]byte("more-bytes-that-overflow"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2) // current file + at least one rotated backup
}

func TestDeviceInfoLoggerDiscardsWhenUnconfigured(t *testing.T) {
	cfg := &config.Config{}
	logger, err := NewDeviceInfoLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("banner text from device") // must not panic or error
}

func TestDeviceInfoLoggerWritesToOwnFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "device-info.log")

	cfg := &config.Config{}
	cfg.Logging.DeviceInfoFile = path
	enabled := false
	cfg.Logging.Rotate.Enabled = &enabled

	logger, err := NewDeviceInfoLogger(cfg)
	require.NoError(t, err)
	logger.Info("READY v1.2")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "READY v1.2")
}

func TestHexDumpTruncatesAtLimit(t *testing.T) {
	assert.Equal(t, "de ad be ef", HexDump([]byte{0xde, 0xad, 0xbe, 0xef}, 0))
	assert.Equal(t, "de ad", HexDump([]byte{0xde, 0xad, 0xbe, 0xef}, 2))
}
