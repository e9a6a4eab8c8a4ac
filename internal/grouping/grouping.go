// Package grouping scans the work directory for stem-paired job files and
// assembles them into color triplets in stable sort order.
package grouping

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/yaoqih/material-identification-upper-computer/internal/config"
)

// Pair is a color's (txt, image) path pair within a Triplet.
type Pair struct {
	TxtPath string
	ImgPath string
}

// Triplet is a set of up to three paired jobs, one per color channel,
// produced by Group. Key is informational only (used for logging/archival
// naming), derived from the first stem's name-tag or trailing segment.
type Triplet struct {
	Key   string
	Files map[string]Pair // color ("R"/"G"/"B") -> Pair
}

// Grouper holds the grouping configuration.
type Grouper struct {
	nameTagRegex *regexp.Regexp
	colorOrder   []string
}

// New builds a Grouper from config, compiling name_tag_regex once.
func New(cfg *config.Config) (*Grouper, error) {
	re, err := regexp.Compile("(?i)" + cfg.Grouping.NameTagRegex)
	if err != nil {
		return nil, err
	}
	order := cfg.Grouping.ColorOrder
	if len(order) == 0 {
		order = []string{"R", "G", "B"}
	}
	return &Grouper{nameTagRegex: re, colorOrder: order}, nil
}

// Group scans workDir for stem-matching .txt + (.jpg|.jpeg) pairs, excludes
// stems that have a .pairlock sibling (in-flight), sorts the surviving
// stems lexicographically, and chunks them into groups of three, assigning
// colors in chunk position order per colorOrder. The terminal chunk may be
// partial.
func (g *Grouper) Group(workDir string) ([]Triplet, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, err
	}

	txts := map[string]string{}
	imgs := map[string]string{}
	locks := map[string]bool{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		full := filepath.Join(workDir, name)
		switch ext {
		case ".txt":
			txts[stem] = full
		case ".jpg", ".jpeg":
			imgs[stem] = full
		case ".pairlock":
			locks[stem] = true
		}
	}

	var stems []string
	for stem := range txts {
		if _, ok := imgs[stem]; !ok {
			continue
		}
		if locks[stem] {
			continue
		}
		stems = append(stems, stem)
	}
	sort.Strings(stems)

	var triplets []Triplet
	for i := 0; i < len(stems); i += 3 {
		end := i + 3
		if end > len(stems) {
			end = len(stems)
		}
		chunk := stems[i:end]

		files := make(map[string]Pair, len(chunk))
		for idx, stem := range chunk {
			if idx >= len(g.colorOrder) {
				break
			}
			color := g.colorOrder[idx]
			files[color] = Pair{TxtPath: txts[stem], ImgPath: imgs[stem]}
		}
		if len(files) == 0 {
			continue
		}

		triplets = append(triplets, Triplet{
			Key:   g.deriveKey(chunk[0]),
			Files: files,
		})
	}

	return triplets, nil
}

// deriveKey derives an informational grouping key from a stem: the
// name-tag regex's a[-b] capture if it matches, otherwise the stem with its
// trailing hyphen-segment dropped (or the stem itself if it has none).
func (g *Grouper) deriveKey(stem string) string {
	if m := g.nameTagRegex.FindStringSubmatch(stem); m != nil {
		names := g.nameTagRegex.SubexpNames()
		var a, b string
		for i, n := range names {
			switch n {
			case "a":
				a = m[i]
			case "b":
				b = m[i]
			}
		}
		if b != "" {
			return a + "-" + b
		}
		if a != "" {
			return a
		}
	}

	parts := strings.Split(stem, "-")
	if len(parts) > 1 {
		return strings.Join(parts[:len(parts)-1], "-")
	}
	return stem
}
