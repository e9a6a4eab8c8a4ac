// Package logging builds the app's structured loggers: a leveled app logger
// per named component, size-based rotating file output, and a dedicated
// device-info sink that receives only non-protocol bytes surfaced by the
// session's codec (garbage/banner text a device writes outside the framed
// protocol).
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"

	"github.com/yaoqih/material-identification-upper-computer/internal/config"
)

// New builds the named app logger ("session", "mapping", "grouping",
// "ingress", "dispatcher", "codec", ...), writing to cfg.Logging.File when
// set (rotated per cfg.Logging.Rotate) or to stderr otherwise. name is
// attached to every record as the "component" field.
func New(cfg *config.Config, name string) (*log.Logger, error) {
	w, err := openWriter(cfg.Logging.File, cfg.Logging.Rotate)
	if err != nil {
		return nil, err
	}

	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	l.SetLevel(parseLevel(cfg.Logging.Level))
	if cfg.Logging.Format == "json" {
		l.SetFormatter(log.JSONFormatter)
	}
	return l.With("component", name), nil
}

// NewDeviceInfoLogger builds the sink that receives only garbage bytes the
// framing codec could not parse as a frame (the device's own banner/status
// text, interleaved on the same wire). It writes to
// cfg.Logging.DeviceInfoFile, a setting separate from the app logger's
// cfg.Logging.File; the two paths are not checked against each other.
func NewDeviceInfoLogger(cfg *config.Config) (*log.Logger, error) {
	path := cfg.Logging.DeviceInfoFile
	if path == "" {
		return log.NewWithOptions(io.Discard, log.Options{}), nil
	}

	w, err := openWriter(path, cfg.Logging.Rotate)
	if err != nil {
		return nil, err
	}
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	if cfg.Logging.DeviceInfoFormat == "json" {
		l.SetFormatter(log.JSONFormatter)
	}
	return l, nil
}

func parseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func openWriter(path string, rotate config.Rotate) (io.Writer, error) {
	if path == "" {
		return os.Stderr, nil
	}
	if rotate.Enabled != nil && !*rotate.Enabled {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("logging: open %s: %w", path, err)
		}
		return f, nil
	}
	return newRotatingWriter(path, rotate.MaxBytes, rotate.BackupCount)
}

// HexDump renders b as space-separated lowercase hex pairs, truncated to
// limit bytes when limit > 0. Shared by the session's hex-capture logging
// and this package's tests, so both agree on one format.
func HexDump(b []byte, limit int) string {
	if limit > 0 && len(b) > limit {
		b = b[:limit]
	}
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*3)
	for i, c := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexDigits[c>>4], hexDigits[c&0xF])
	}
	return string(out)
}

// rotatingWriter is an io.Writer over a single growing file that rotates to
// a timestamped backup once it crosses maxBytes, keeping at most backupCount
// rotated files. Rotated filenames are timestamped via strftime (not Go's
// native time-layout strings) so the pattern stays readable to anyone used
// to the conventional logrotate/cron '%Y%m%d-%H%M%S' vocabulary.
type rotatingWriter struct {
	mu          sync.Mutex
	path        string
	maxBytes    int
	backupCount int
	pattern     *strftime.Strftime
	f           *os.File
	size        int64
}

func newRotatingWriter(path string, maxBytes, backupCount int) (*rotatingWriter, error) {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	if backupCount <= 0 {
		backupCount = 5
	}
	pattern, err := strftime.New(path + ".%Y%m%d-%H%M%S")
	if err != nil {
		return nil, fmt.Errorf("logging: rotation pattern: %w", err)
	}

	w := &rotatingWriter{
		path:        path,
		maxBytes:    maxBytes,
		backupCount: backupCount,
		pattern:     pattern,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("logging: stat %s: %w", w.path, err)
	}
	w.f = f
	w.size = info.Size()
	return nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > int64(w.maxBytes) {
		if err := w.rotate(); err != nil {
			w.f.Close()
			if reopenErr := w.open(); reopenErr != nil {
				return 0, reopenErr
			}
			return 0, err
		}
	}

	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rotatingWriter) rotate() error {
	w.f.Close()

	backup := w.pattern.FormatString(time.Now())
	if err := os.Rename(w.path, backup); err != nil {
		return fmt.Errorf("logging: rotate %s: %w", w.path, err)
	}
	if err := w.open(); err != nil {
		return err
	}
	w.pruneBackups()
	return nil
}

func (w *rotatingWriter) pruneBackups() {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var backups []string
	prefix := base + "."
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, e.Name())
		}
	}
	if len(backups) <= w.backupCount {
		return
	}
	sort.Strings(backups)
	for _, name := range backups[:len(backups)-w.backupCount] {
		os.Remove(filepath.Join(dir, name))
	}
}
