// Package mapping parses job row files and remaps SP slot numbers to
// physical LED ids through the display's serpentine geometry.
package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yaoqih/material-identification-upper-computer/internal/config"
)

// ParseError is a tagged parse failure carrying the offending file, line
// number, and reason, per spec.md §9 ("model as a tagged result type"
// instead of exception-driven string matching).
type ParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Reason)
}

// Row is one parsed job-file entry: an SP index and its associated percent.
type Row struct {
	SP      int
	Percent float64
}

// Mapper holds the parsing and geometry configuration and exposes the
// parse/remap/compose operations over it.
type Mapper struct {
	rowPattern     string
	altRowPattern  string
	headerKeywords []string
	allowedPrefix  map[string]bool

	blockSize   int
	ledsPerSlot int
	startCorner string
	rowDirEven  string
	rowDirOdd   string
	groups      []config.SPGroup

	blinkEnabled   bool
	blinkThreshold float64

	colorOrder []string
}

// New builds a Mapper from a loaded Config, preferring dispatcher.color_order
// over grouping.color_order over a built-in R,G,B default, matching
// MappingService.__init__'s fallback chain.
func New(cfg *config.Config) *Mapper {
	order := cfg.Dispatcher.ColorOrder
	if len(order) == 0 {
		order = cfg.Grouping.ColorOrder
	}
	if len(order) == 0 {
		order = []string{"R", "G", "B"}
	}
	upperOrder := make([]string, len(order))
	for i, c := range order {
		upperOrder[i] = strings.ToUpper(c)
	}

	prefixes := make(map[string]bool, len(cfg.Parsing.AllowedCodePrefix))
	for _, p := range cfg.Parsing.AllowedCodePrefix {
		prefixes[p] = true
	}

	return &Mapper{
		rowPattern:     cfg.Parsing.RowPattern,
		altRowPattern:  cfg.Parsing.AltRowPattern,
		headerKeywords: cfg.Parsing.HeaderKeywords,
		allowedPrefix:  prefixes,

		blockSize:   cfg.SPMapping.BlockSize,
		ledsPerSlot: cfg.SPMapping.LedsPerSlot,
		startCorner: strings.ToUpper(cfg.SPMapping.StartCorner),
		rowDirEven:  strings.ToUpper(cfg.SPMapping.RowDirectionEven),
		rowDirOdd:   strings.ToUpper(cfg.SPMapping.RowDirectionOdd),
		groups:      cfg.SPMapping.Groups,

		blinkEnabled:   boolOr(cfg.Display.BlinkEnabled),
		blinkThreshold: float64(cfg.Display.BlinkThresholdPercent),

		colorOrder: upperOrder,
	}
}

func boolOr(p *bool) bool {
	return p != nil && *p
}

// FindSPGroup returns the configured SP group containing sp, and whether one
// was found.
func (m *Mapper) FindSPGroup(sp int) (config.SPGroup, bool) {
	for _, g := range m.groups {
		if g.StartSP <= sp && sp <= g.EndSP {
			return g, true
		}
	}
	return config.SPGroup{}, false
}

// RemapSPToBlock computes the group-relative block offset for sp:
// new_sp = (group.id-1)*block_size + (sp - group.start_sp + 1).
func (m *Mapper) RemapSPToBlock(sp int, group config.SPGroup) int {
	return (group.ID-1)*m.blockSize + (sp - group.StartSP + 1)
}

// serpentinePosInBlock computes the 1-based serpentine position within a
// block of cols-wide rows, and whether that row runs right-to-left.
func (m *Mapper) serpentinePosInBlock(pos, colsPerRow int) (serpPos int, reverse bool) {
	cols := colsPerRow
	if cols < 1 {
		cols = 1
	}
	r := (pos - 1) / cols
	c := (pos - 1) % cols

	dir := m.rowDirEven
	if r%2 != 0 {
		dir = m.rowDirOdd
	}
	if m.startCorner == "TR" || m.startCorner == "BR" {
		if dir == "LR" {
			dir = "RL"
		} else {
			dir = "LR"
		}
	}

	if dir == "LR" {
		return r*cols + c + 1, false
	}
	return r*cols + (cols - 1 - c) + 1, true
}

// ComputeLEDIDsForSP computes the global (led1, led2, led3) triplet base for
// sp within group, per the seven-step algorithm: group-relative position,
// serpentine position within the block, global serpentine position, LED
// base address, and the reverse-dependent channel ordering that keeps color
// selection (R=led1, G=led2, B=led3) geometrically consistent with row
// direction.
func (m *Mapper) ComputeLEDIDsForSP(sp int, group config.SPGroup) (led1, led2, led3 int) {
	posInGroup := sp - group.StartSP + 1
	serpInBlock, reverse := m.serpentinePosInBlock(posInGroup, group.ColsPerRow)
	serpGlobal := (group.ID-1)*m.blockSize + serpInBlock
	base := (serpGlobal-1)*m.ledsPerSlot + 1
	if reverse {
		return base, base + 1, base + 2
	}
	return base + 2, base + 1, base
}

// ParseIndicesAndPercent parses a job file's rows, already split into lines;
// path only labels any ParseError. Nil or empty lines yield two nil slices
// and no error.
func (m *Mapper) ParseIndicesAndPercent(path string, lines []string) ([]int, []float64, error) {
	rowRe, err := compileRegex(m.rowPattern)
	if err != nil {
		return nil, nil, err
	}
	altRe, err := compileRegex(m.altRowPattern)
	if err != nil {
		return nil, nil, err
	}

	var indices []int
	var percents []float64
	seen := make(map[int]bool)

	for i, raw := range lines {
		lineno := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		var match []string
		if rowRe != nil {
			match = rowRe.FindStringSubmatch(line)
		}
		if match == nil {
			if lineno == 1 && containsHeaderKeyword(line, m.headerKeywords) {
				continue
			}
			if altRe != nil {
				match = altRe.FindStringSubmatch(line)
			}
			if match == nil {
				return nil, nil, &ParseError{Path: path, Line: lineno, Reason: fmt.Sprintf("invalid row: %q", line)}
			}
		}

		prefix, digits, pctStr := match[1], match[2], match[3]
		if !m.allowedPrefix[prefix] {
			continue
		}

		idx, err := strconv.Atoi(digits)
		if err != nil {
			return nil, nil, &ParseError{Path: path, Line: lineno, Reason: fmt.Sprintf("bad name code: %q", line)}
		}
		if seen[idx] {
			return nil, nil, &ParseError{Path: path, Line: lineno, Reason: fmt.Sprintf("duplicate index %d", idx)}
		}

		pct, err := strconv.ParseFloat(pctStr, 64)
		if err != nil {
			return nil, nil, &ParseError{Path: path, Line: lineno, Reason: fmt.Sprintf("bad percent: %q", line)}
		}
		if pct < 0 || pct > 100 {
			return nil, nil, &ParseError{Path: path, Line: lineno, Reason: fmt.Sprintf("out-of-range percent %v", pct)}
		}

		indices = append(indices, idx)
		percents = append(percents, pct)
		seen[idx] = true
	}

	return indices, percents, nil
}

func containsHeaderKeyword(line string, keywords []string) bool {
	lower := strings.ToLower(line)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
