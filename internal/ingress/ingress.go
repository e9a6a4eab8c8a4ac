// Package ingress performs the atomic two-phase move of ready job-file
// pairs from the watch directory into the work directory, pre-validating
// each pair's parse and SP range before it is ever published.
package ingress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yaoqih/material-identification-upper-computer/internal/config"
	"github.com/yaoqih/material-identification-upper-computer/internal/mapping"
)

// Ingress scans a watch directory and publishes ready, validated pairs into
// a work directory, rejecting anything that fails parsing or range
// validation to an error directory.
type Ingress struct {
	mapper *mapping.Mapper

	readyQuietMs      int
	atomicPairEnabled bool
	allowedExts       map[string]bool
	partSuffix        string
	lockSuffix        string
	hasGroups         bool

	logger *log.Logger
}

// New builds an Ingress from config and a Mapper used for pre-validation.
func New(cfg *config.Config, mapper *mapping.Mapper, logger *log.Logger) *Ingress {
	exts := make(map[string]bool, len(cfg.Ingress.AllowedExtensions))
	for _, e := range cfg.Ingress.AllowedExtensions {
		exts[strings.ToLower(e)] = true
	}
	return &Ingress{
		mapper:            mapper,
		readyQuietMs:      cfg.Ingress.ReadyQuietMs,
		atomicPairEnabled: atomicPairEnabled(cfg),
		allowedExts:       exts,
		partSuffix:        cfg.Ingress.AtomicPairSuffixes.PartSuffix,
		lockSuffix:        cfg.Ingress.AtomicPairSuffixes.LockSuffix,
		hasGroups:         len(cfg.SPMapping.Groups) > 0,
		logger:            logger,
	}
}

func atomicPairEnabled(cfg *config.Config) bool {
	return cfg.Ingress.AtomicPairEnabled == nil || *cfg.Ingress.AtomicPairEnabled
}

type stemFiles map[string]string // ext (lowercased, with dot) -> path

// IngestBatch scans watchDir for ready files, publishes complete,
// validated .txt+.jpg/.jpeg pairs into workDir, and routes rejects and
// incomplete/unsupported files to errorDir. Returns the paths moved into
// each destination.
func (in *Ingress) IngestBatch(watchDir, workDir, errorDir string) (movedWork, movedErr []string, err error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(errorDir, 0o755); err != nil {
		return nil, nil, err
	}

	entries, err := os.ReadDir(watchDir)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	var readyFiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, strings.ToLower(in.partSuffix)) || strings.HasSuffix(lower, strings.ToLower(in.lockSuffix)) {
			continue
		}
		info, ierr := e.Info()
		if ierr != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= time.Duration(in.readyQuietMs)*time.Millisecond {
			readyFiles = append(readyFiles, filepath.Join(watchDir, name))
		}
	}

	byStem := map[string]stemFiles{}
	for _, path := range readyFiles {
		ext := strings.ToLower(filepath.Ext(path))
		if !in.allowedExts[ext] {
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if byStem[stem] == nil {
			byStem[stem] = stemFiles{}
		}
		byStem[stem][ext] = path
	}

	processed := map[string]bool{}
	for stem, parts := range byStem {
		txt, hasTxt := parts[".txt"]
		img, hasImg := parts[".jpg"]
		if !hasImg {
			img, hasImg = parts[".jpeg"]
		}
		if !hasTxt || !hasImg {
			continue
		}

		reason, ok := in.preValidate(txt)
		if !ok {
			movedErr = append(movedErr, in.rejectPair(txt, img, errorDir, stem, reason)...)
			processed[stem] = true
			continue
		}

		if !in.atomicPairEnabled {
			dst1, err1 := safeMove(txt, workDir)
			dst2, err2 := safeMove(img, workDir)
			if err1 != nil || err2 != nil {
				movedErr = append(movedErr, in.rejectPair(txt, img, errorDir, stem, "move failed")...)
			} else {
				movedWork = append(movedWork, dst1, dst2)
			}
			processed[stem] = true
			continue
		}

		work, rejects, perr := in.publishPair(txt, img, workDir, errorDir, stem)
		if perr != nil {
			in.logger.Error("two-phase publish failed", "stem", stem, "err", perr)
		}
		movedWork = append(movedWork, work...)
		movedErr = append(movedErr, rejects...)
		processed[stem] = true
	}

	for _, path := range readyFiles {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if processed[stem] {
			continue
		}
		ext := strings.ToLower(filepath.Ext(path))
		parts := byStem[stem]
		_, hasTxt := parts[".txt"]
		_, hasJpg := parts[".jpg"]
		_, hasJpeg := parts[".jpeg"]
		if !in.allowedExts[ext] || !hasTxt || (!hasJpg && !hasJpeg) {
			if dst, merr := safeMove(path, errorDir); merr == nil {
				movedErr = append(movedErr, dst)
			}
		}
	}

	return movedWork, movedErr, nil
}

// preValidate parses txt via the mapper and range-checks every index
// against the configured SP groups, returning a human-readable rejection
// reason when invalid.
func (in *Ingress) preValidate(txtPath string) (reason string, ok bool) {
	lines, err := readLines(txtPath)
	if err != nil {
		return fmt.Sprintf("read error: %v", err), false
	}
	indices, percents, err := in.mapper.ParseIndicesAndPercent(txtPath, lines)
	if err != nil {
		return err.Error(), false
	}
	if len(indices) == 0 {
		return "empty indices", false
	}
	if len(indices) != len(percents) {
		return "mismatched lengths", false
	}
	if !in.hasGroups {
		return "", true
	}
	for _, idx := range indices {
		if _, found := in.mapper.FindSPGroup(idx); !found {
			return fmt.Sprintf("index %d out of groups", idx), false
		}
	}
	return "", true
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func (in *Ingress) rejectPair(txt, img, errorDir, stem, reason string) []string {
	in.logger.Warn("reject pair", "stem", stem, "reason", reason)
	var moved []string
	if dst, err := safeMove(txt, errorDir); err == nil {
		moved = append(moved, dst)
	}
	if dst, err := safeMove(img, errorDir); err == nil {
		moved = append(moved, dst)
	}
	return moved
}

// publishPair performs the two-phase .part+.pairlock publish: stage both
// files as .part, touch a pairlock, atomically rename both to their final
// names, then remove the lock. Any failure rolls the surviving .part files
// (and, if still present, the original sources) back to errorDir.
func (in *Ingress) publishPair(txt, img, workDir, errorDir, stem string) (work, rejects []string, err error) {
	partTxt := filepath.Join(workDir, filepath.Base(txt)+in.partSuffix)
	partImg := filepath.Join(workDir, filepath.Base(img)+in.partSuffix)
	pairlock := filepath.Join(workDir, stem+in.lockSuffix)
	finalTxt := filepath.Join(workDir, filepath.Base(txt))
	finalImg := filepath.Join(workDir, filepath.Base(img))

	rollback := func(cause error) ([]string, []string, error) {
		var rej []string
		for _, part := range []string{partTxt, partImg} {
			if _, statErr := os.Stat(part); statErr == nil {
				base := strings.TrimSuffix(filepath.Base(part), in.partSuffix)
				target := filepath.Join(errorDir, base)
				if rerr := os.Rename(part, target); rerr == nil {
					rej = append(rej, target)
				} else {
					os.Remove(part)
				}
			}
		}
		os.Remove(pairlock)
		for _, src := range []string{txt, img} {
			if _, statErr := os.Stat(src); statErr == nil {
				if dst, merr := safeMove(src, errorDir); merr == nil {
					rej = append(rej, dst)
				}
			}
		}
		return nil, rej, cause
	}

	if err := moveOrCopy2(txt, partTxt); err != nil {
		return rollback(err)
	}
	if err := moveOrCopy2(img, partImg); err != nil {
		return rollback(err)
	}
	if f, err := os.OpenFile(pairlock, os.O_CREATE|os.O_WRONLY, 0o644); err != nil {
		return rollback(err)
	} else {
		f.Close()
	}
	if err := os.Rename(partTxt, finalTxt); err != nil {
		return rollback(err)
	}
	if err := os.Rename(partImg, finalImg); err != nil {
		return rollback(err)
	}
	os.Remove(pairlock)
	syncDir(workDir)

	return []string{finalTxt, finalImg}, nil, nil
}

// moveOrCopy2 renames src to dst, falling back to copy+remove when rename
// fails across a filesystem/volume boundary.
func moveOrCopy2(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// MoveFile atomically moves src into dstDir, falling back to copy+remove
// across a volume boundary and retrying with a unique suffix on collision.
// Exported for reuse by archival callers (dispatcher) that need the same
// move-or-copy-with-retry semantics outside the ingest pipeline.
func MoveFile(src, dstDir string) (string, error) {
	return safeMove(src, dstDir)
}

// safeMove atomically moves src into dstDir, retrying with a
// millisecond-resolution unique suffix on name collision, up to a small
// bound.
func safeMove(src, dstDir string) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Base(src)
	dst := filepath.Join(dstDir, base)
	if _, statErr := os.Lstat(dst); os.IsNotExist(statErr) {
		if err := moveOrCopy2(src, dst); err == nil {
			return dst, nil
		}
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; i <= 5; i++ {
		cand := filepath.Join(dstDir, fmt.Sprintf("%s_%d_%d%s", stem, time.Now().UnixMilli(), i, ext))
		if err := moveOrCopy2(src, cand); err == nil {
			return cand, nil
		}
	}
	return "", fmt.Errorf("ingress: could not move %s into %s", src, dstDir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, 64*1024)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	return nil
}

