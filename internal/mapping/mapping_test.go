package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/yaoqih/material-identification-upper-computer/internal/config"
	"github.com/yaoqih/material-identification-upper-computer/internal/grouping"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Parsing.RowPattern = `^\s*(?:\d+)\s+([A-Za-z]+)(\d+)\s+([\d]+(?:\.\d+)?)\s*%\s*$`
	cfg.Parsing.AltRowPattern = `^\s*([A-Za-z]+)(\d+)\s+([\d]+(?:\.\d+)?)\s*%\s*$`
	cfg.Parsing.HeaderKeywords = []string{"编号", "名称", "百分"}
	cfg.Parsing.AllowedCodePrefix = []string{"SP", "X"}
	cfg.SPMapping.BlockSize = 100
	cfg.SPMapping.LedsPerSlot = 3
	cfg.SPMapping.StartCorner = "TL"
	cfg.SPMapping.RowDirectionEven = "LR"
	cfg.SPMapping.RowDirectionOdd = "RL"
	cfg.SPMapping.Groups = []config.SPGroup{
		{ID: 1, StartSP: 1, EndSP: 10, ColsPerRow: 5},
	}
	cfg.Display.BlinkThresholdPercent = 10
	cfg.Grouping.ColorOrder = []string{"R", "G", "B"}
	return cfg
}

// TestComputeLEDIDsSP1AndSP6 is scenario S5 from spec.md §8.
func TestComputeLEDIDsSP1AndSP6(t *testing.T) {
	m := New(baseConfig())
	group, ok := m.FindSPGroup(1)
	require.True(t, ok)

	// Row 0 is even, TL+LR gives reverse=false, so step 7 returns
	// (base+2, base+1, base) -- base=1 here, so R(led1)=3, G(led2)=2,
	// B(led3)=1.
	led1, led2, led3 := m.ComputeLEDIDsForSP(1, group)
	assert.Equal(t, 3, led1)
	assert.Equal(t, 2, led2)
	assert.Equal(t, 1, led3)

	led1, led2, led3 = m.ComputeLEDIDsForSP(6, group)
	assert.Equal(t, 28, led1)
	assert.Equal(t, 29, led2)
	assert.Equal(t, 30, led3)
}

func TestParseIndicesAndPercentSkipsHeaderAndFiltersPrefix(t *testing.T) {
	m := New(baseConfig())
	lines := []string{
		"编号 名称 百分比",
		"1 SP3 19.97%",
		"2 X7 5.00%",
		"3 ZZ9 1.00%", // prefix not allowed, silently dropped
	}
	indices, percents, err := m.ParseIndicesAndPercent("job.txt", lines)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, indices)
	assert.InDeltaSlice(t, []float64{19.97, 5.00}, percents, 0.0001)
}

func TestParseIndicesAndPercentRejectsDuplicate(t *testing.T) {
	m := New(baseConfig())
	lines := []string{"1 SP3 1.0%", "2 SP3 2.0%"}
	_, _, err := m.ParseIndicesAndPercent("job.txt", lines)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Line)
}

func TestParseIndicesAndPercentRejectsOutOfRange(t *testing.T) {
	m := New(baseConfig())
	lines := []string{"1 SP3 150%"}
	_, _, err := m.ParseIndicesAndPercent("job.txt", lines)
	require.Error(t, err)
}

func TestComposeForTripletOrdersByColor(t *testing.T) {
	dir := t.TempDir()
	writeTxt := func(name string, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	rTxt := writeTxt("r.txt", "1 SP1 50%\n")
	gTxt := writeTxt("g.txt", "1 SP2 5%\n")

	cfg := baseConfig()
	cfg.Display.BlinkThresholdPercent = 10
	cfgWithBlink := *cfg
	blink := true
	cfgWithBlink.Display.BlinkEnabled = &blink
	m := New(&cfgWithBlink)

	triplet := grouping.Triplet{
		Key: "demo",
		Files: map[string]grouping.Pair{
			"R": {TxtPath: rTxt},
			"G": {TxtPath: gTxt},
		},
	}

	indices, attrs, colors, err := m.ComposeForTriplet(triplet, nil)
	require.NoError(t, err)
	require.Len(t, indices, 2)
	assert.Equal(t, []int{0, 1}, colors)
	require.NotNil(t, attrs)
	assert.Equal(t, 1, attrs[0]) // 50% >= 10% threshold
	assert.Equal(t, 0, attrs[1]) // 5% < 10% threshold
}

// TestRapidComputeLEDIDsPositive exercises invariant 5 (totality and
// positivity) from spec.md §8 across random in-group SPs.
func TestRapidComputeLEDIDsPositive(t *testing.T) {
	cfg := baseConfig()
	m := New(cfg)
	group := cfg.SPMapping.Groups[0]

	rapid.Check(t, func(t *rapid.T) {
		sp := rapid.IntRange(group.StartSP, group.EndSP).Draw(t, "sp")
		led1, led2, led3 := m.ComputeLEDIDsForSP(sp, group)
		assert.Greater(t, led1, 0)
		assert.Greater(t, led2, 0)
		assert.Greater(t, led3, 0)
	})
}
