package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/pkg/logger"
)

func snapshot(window string, pct map[string]float64) *contracts.RankingSnapshot {
	entries := make(map[string]contracts.RankEntry, len(pct))
	for id, p := range pct {
		entries[id] = contracts.RankEntry{Rank: int(p * 100), Percentile: p}
	}
	return contracts.NewRankingSnapshotFromEntries(window, 100, entries)
}

func universe(ids ...string) []contracts.Instrument {
	out := make([]contracts.Instrument, len(ids))
	for i, id := range ids {
		out[i] = contracts.Instrument{ID: id, Name: "fund " + id}
	}
	return out
}

func newTestScreener(policy MissingWindowPolicy) *Screener {
	return NewScreener(ScreenerConfig{Windows: DefaultWindowRules(), MissingWindow: policy}, logger.Nop())
}

func TestScreen_EndToEndScenario(t *testing.T) {
	// A passes everywhere, B fails 6m, C is missing from the failed 2y snapshot
	snaps := map[string]*contracts.RankingSnapshot{
		"3y": snapshot("3y", map[string]float64{"A": 0.20, "B": 0.10, "C": 0.05}),
		"2y": nil,
		"1y": snapshot("1y", map[string]float64{"A": 0.10, "B": 0.10, "C": 0.20}),
		"6m": snapshot("6m", map[string]float64{"A": 0.30, "B": 0.40, "C": 0.10}),
		"3m": snapshot("3m", map[string]float64{"A": 0.25, "B": 0.10, "C": 0.30}),
	}

	res := newTestScreener(MissingWindowSkip).Screen(universe("A", "B", "C"), snaps)

	assert.Equal(t, []string{"C", "A"}, res.Passed) // by 3y rank
	assert.Equal(t, []string{"2y"}, res.SkippedWindows)
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, "B", res.Excluded[0].InstrumentID)
	assert.Equal(t, "Percentile", res.Excluded[0].Kind)
	assert.Equal(t, contracts.StagePrefilter, res.Excluded[0].Stage)
	assert.Contains(t, res.Excluded[0].Reason, "6m")
}

func TestScreen_MissingWindowFail(t *testing.T) {
	snaps := map[string]*contracts.RankingSnapshot{
		"3y": snapshot("3y", map[string]float64{"A": 0.1}),
	}

	res := newTestScreener(MissingWindowFail).Screen(universe("A", "B"), snaps)

	assert.Empty(t, res.Passed)
	require.Len(t, res.Excluded, 2)
	for _, ex := range res.Excluded {
		assert.Equal(t, "MissingWindow", ex.Kind)
	}
}

func TestScreen_NotRankedIsInnerJoinDrop(t *testing.T) {
	rules := []WindowRule{{Window: "1y", Threshold: 0.5}}
	s := NewScreener(ScreenerConfig{Windows: rules, MissingWindow: MissingWindowSkip}, logger.Nop())

	res := s.Screen(universe("A", "Z"), map[string]*contracts.RankingSnapshot{
		"1y": snapshot("1y", map[string]float64{"A": 0.3}),
	})

	assert.Equal(t, []string{"A"}, res.Passed)
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, "Z", res.Excluded[0].InstrumentID)
	assert.Equal(t, "NotRanked", res.Excluded[0].Kind)
}

func TestScreen_ThresholdIsInclusive(t *testing.T) {
	rules := []WindowRule{{Window: "1y", Threshold: 0.25}}
	s := NewScreener(ScreenerConfig{Windows: rules, MissingWindow: MissingWindowSkip}, logger.Nop())

	res := s.Screen(universe("A", "B"), map[string]*contracts.RankingSnapshot{
		"1y": snapshot("1y", map[string]float64{"A": 0.25, "B": 0.26}),
	})

	assert.Equal(t, []string{"A"}, res.Passed)
}

func TestScreen_DuplicateUniverseAndTieOrder(t *testing.T) {
	rules := []WindowRule{{Window: "1y", Threshold: 1}}
	s := NewScreener(ScreenerConfig{Windows: rules, MissingWindow: MissingWindowSkip}, logger.Nop())
	snap := contracts.NewRankingSnapshotFromEntries("1y", 10, map[string]contracts.RankEntry{
		"B": {Rank: 1, Percentile: 0.1},
		"A": {Rank: 1, Percentile: 0.1},
		"C": {Rank: 2, Percentile: 0.2},
	})

	res := s.Screen(universe("C", "B", "A", "B"), map[string]*contracts.RankingSnapshot{"1y": snap})

	assert.Equal(t, []string{"A", "B", "C"}, res.Passed)
}

func TestScreenerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ScreenerConfig
		wantErr bool
	}{
		{"defaults", ScreenerConfig{Windows: DefaultWindowRules(), MissingWindow: MissingWindowSkip}, false},
		{"empty policy", ScreenerConfig{Windows: DefaultWindowRules()}, true},
		{"no windows", ScreenerConfig{MissingWindow: MissingWindowSkip}, true},
		{"zero threshold", ScreenerConfig{Windows: []WindowRule{{"1y", 0}}, MissingWindow: MissingWindowFail}, true},
		{"above one", ScreenerConfig{Windows: []WindowRule{{"1y", 1.5}}, MissingWindow: MissingWindowFail}, true},
		{"duplicate", ScreenerConfig{Windows: []WindowRule{{"1y", 0.2}, {"1y", 0.3}}, MissingWindow: MissingWindowFail}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
