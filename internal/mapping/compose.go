package mapping

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/yaoqih/material-identification-upper-computer/internal/grouping"
)

// readLines reads path as UTF-8 text, dropping any byte sequences that
// don't decode, matching the original's errors="ignore" open mode. A
// missing file yields a nil slice rather than an error, since the caller
// may be pre-validating a file that doesn't exist yet.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), ""))
	}
	text := string(data)
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// item is an intermediate (sp, color, ledID, percent) tuple collected while
// composing a triplet, preserved in traversal order.
type item struct {
	sp      int
	color   string
	ledID   int
	percent float64
}

// ComposeForTriplet iterates colorOrder (or the Mapper's default when nil),
// parses each present file in the triplet, remaps each row's SP to its
// color-selected LED id, and returns (indices, attrs, colors) aligned by
// position. attrs is nil unless display.blink_enabled and at least one item
// crosses blink_threshold_percent; colors is nil only when there are no
// items at all.
func (m *Mapper) ComposeForTriplet(t grouping.Triplet, colorOrder []string) (indices []int, attrs []int, colors []int, err error) {
	order := colorOrder
	if len(order) == 0 {
		order = m.colorOrder
	}

	var items []item
	for _, color := range order {
		pair, ok := t.Files[color]
		if !ok {
			continue
		}
		lines, rerr := readLines(pair.TxtPath)
		if rerr != nil {
			return nil, nil, nil, rerr
		}
		spList, pctList, perr := m.ParseIndicesAndPercent(pair.TxtPath, lines)
		if perr != nil {
			return nil, nil, nil, perr
		}
		for i, sp := range spList {
			group, found := m.FindSPGroup(sp)
			if !found {
				continue
			}
			led1, led2, led3 := m.ComputeLEDIDsForSP(sp, group)
			var led int
			switch color {
			case "R":
				led = led1
			case "G":
				led = led2
			default:
				led = led3
			}
			items = append(items, item{sp: sp, color: color, ledID: led, percent: pctList[i]})
		}
	}

	indices = make([]int, len(items))
	colors = make([]int, len(items))
	for i, it := range items {
		indices[i] = it.ledID
		colors[i] = colorCode(it.color)
	}
	if len(items) == 0 {
		colors = nil
	}

	if m.blinkEnabled {
		blinkCount := 0
		rawAttrs := make([]int, len(items))
		for i, it := range items {
			if it.percent >= m.blinkThreshold {
				rawAttrs[i] = 1
				blinkCount++
			}
		}
		if blinkCount > 0 {
			attrs = rawAttrs
		}
	}

	return indices, attrs, colors, nil
}

func colorCode(c string) int {
	switch c {
	case "R":
		return 0
	case "G":
		return 1
	default:
		return 2
	}
}
