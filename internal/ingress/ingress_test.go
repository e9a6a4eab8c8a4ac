package ingress

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaoqih/material-identification-upper-computer/internal/config"
	"github.com/yaoqih/material-identification-upper-computer/internal/mapping"
)

func testIngress(t *testing.T) (*Ingress, *config.Config) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Parsing.RowPattern = `^\s*(?:\d+)\s+([A-Za-z]+)(\d+)\s+([\d]+(?:\.\d+)?)\s*%\s*$`
	cfg.Parsing.AllowedCodePrefix = []string{"SP"}
	cfg.SPMapping.BlockSize = 100
	cfg.SPMapping.LedsPerSlot = 3
	cfg.SPMapping.StartCorner = "TL"
	cfg.SPMapping.RowDirectionEven = "LR"
	cfg.SPMapping.RowDirectionOdd = "RL"
	cfg.SPMapping.Groups = []config.SPGroup{
		{ID: 1, StartSP: 1, EndSP: 10, ColsPerRow: 5},
	}
	cfg.Ingress.ReadyQuietMs = 0
	cfg.Ingress.AllowedExtensions = []string{".txt", ".jpg", ".jpeg"}
	cfg.Ingress.AtomicPairSuffixes.PartSuffix = ".part"
	cfg.Ingress.AtomicPairSuffixes.LockSuffix = ".pairlock"
	enabled := true
	cfg.Ingress.AtomicPairEnabled = &enabled

	m := mapping.New(cfg)
	logger := log.New(os.Stderr)
	return New(cfg, m, logger), cfg
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// TestIngestBatchPublishesValidPair is scenario S6 from spec.md §8: a ready,
// valid pair is atomically published into the work directory via the
// .part+.pairlock staging, leaving no .part or .pairlock artifacts behind.
func TestIngestBatchPublishesValidPair(t *testing.T) {
	in, _ := testIngress(t)
	watch := t.TempDir()
	work := filepath.Join(watch, "work")
	errDir := filepath.Join(watch, "error")

	writeFile(t, watch, "job1.txt", "1 SP3 19.97%\n")
	writeFile(t, watch, "job1.jpg", "fake-image-bytes")

	work2, errs, err := in.IngestBatch(watch, work, errDir)
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, work2, 2)

	assert.FileExists(t, filepath.Join(work, "job1.txt"))
	assert.FileExists(t, filepath.Join(work, "job1.jpg"))

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".part")
		assert.NotContains(t, e.Name(), ".pairlock")
	}
}

func TestIngestBatchRejectsEmptyIndices(t *testing.T) {
	in, _ := testIngress(t)
	watch := t.TempDir()
	work := filepath.Join(watch, "work")
	errDir := filepath.Join(watch, "error")

	writeFile(t, watch, "bad.txt", "")
	writeFile(t, watch, "bad.jpg", "fake-image-bytes")

	work2, errs, err := in.IngestBatch(watch, work, errDir)
	require.NoError(t, err)
	assert.Empty(t, work2)
	require.Len(t, errs, 2)
	assert.FileExists(t, filepath.Join(errDir, "bad.txt"))
	assert.FileExists(t, filepath.Join(errDir, "bad.jpg"))
}

func TestIngestBatchRejectsOutOfRangeIndex(t *testing.T) {
	in, _ := testIngress(t)
	watch := t.TempDir()
	work := filepath.Join(watch, "work")
	errDir := filepath.Join(watch, "error")

	writeFile(t, watch, "oob.txt", "1 SP999 19.97%\n")
	writeFile(t, watch, "oob.jpg", "fake-image-bytes")

	work2, errs, err := in.IngestBatch(watch, work, errDir)
	require.NoError(t, err)
	assert.Empty(t, work2)
	require.Len(t, errs, 2)
}

func TestIngestBatchMovesUnpairedFileToError(t *testing.T) {
	in, _ := testIngress(t)
	watch := t.TempDir()
	work := filepath.Join(watch, "work")
	errDir := filepath.Join(watch, "error")

	writeFile(t, watch, "solo.txt", "1 SP3 19.97%\n")

	work2, errs, err := in.IngestBatch(watch, work, errDir)
	require.NoError(t, err)
	assert.Empty(t, work2)
	require.Len(t, errs, 1)
	assert.FileExists(t, filepath.Join(errDir, "solo.txt"))
}

func TestIngestBatchSkipsNotYetQuietFiles(t *testing.T) {
	in, cfg := testIngress(t)
	cfg.Ingress.ReadyQuietMs = 60_000
	watch := t.TempDir()
	work := filepath.Join(watch, "work")
	errDir := filepath.Join(watch, "error")

	writeFile(t, watch, "job1.txt", "1 SP3 19.97%\n")
	writeFile(t, watch, "job1.jpg", "fake-image-bytes")

	// Re-create Ingress with the updated ReadyQuietMs since New snapshots it.
	in2 := New(cfg, in.mapper, in.logger)
	work2, errs, err := in2.IngestBatch(watch, work, errDir)
	require.NoError(t, err)
	assert.Empty(t, work2)
	assert.Empty(t, errs)
	assert.FileExists(t, filepath.Join(watch, "job1.txt"))
}

func TestSafeMoveRetriesOnCollision(t *testing.T) {
	dir := t.TempDir()
	dst := t.TempDir()
	writeFile(t, dst, "dup.txt", "existing")
	src := writeFile(t, dir, "dup.txt", "incoming")

	// os.Rename on most platforms silently replaces an existing file, so
	// force a genuine collision by making the destination a directory.
	require.NoError(t, os.Remove(filepath.Join(dst, "dup.txt")))
	require.NoError(t, os.Mkdir(filepath.Join(dst, "dup.txt"), 0o755))

	got, err := safeMove(src, dst)
	require.NoError(t, err)
	assert.NotEqual(t, filepath.Join(dst, "dup.txt"), got)
	assert.FileExists(t, got)
}
