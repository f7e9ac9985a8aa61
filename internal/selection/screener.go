package selection

import (
	"fmt"
	"sort"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/pkg/logger"
)

// WindowRule keeps an instrument only if its percentile in Window is
// at most Threshold (0.25 = top 25%)
type WindowRule struct {
	Window    string  `json:"window"`
	Threshold float64 `json:"threshold"`
}

// MissingWindowPolicy decides what a window whose snapshot failed to load does
type MissingWindowPolicy string

const (
	// MissingWindowSkip treats the window as passed by everyone
	MissingWindowSkip MissingWindowPolicy = "skip"
	// MissingWindowFail excludes every instrument
	MissingWindowFail MissingWindowPolicy = "fail"
)

// ScreenerConfig defines the percentile pre-filter ("4-4-3-3")
// SSOT: config/strategy.yaml prefilter
type ScreenerConfig struct {
	Windows       []WindowRule        // longest window first
	MissingWindow MissingWindowPolicy // no default: must be set explicitly
}

// DefaultWindowRules: 상위 25% (3y/2y/1y), 상위 33% (6m/3m)
func DefaultWindowRules() []WindowRule {
	return []WindowRule{
		{Window: "3y", Threshold: 0.25},
		{Window: "2y", Threshold: 0.25},
		{Window: "1y", Threshold: 0.25},
		{Window: "6m", Threshold: 1.0 / 3},
		{Window: "3m", Threshold: 1.0 / 3},
	}
}

// Validate checks rules and policy
func (c ScreenerConfig) Validate() error {
	if len(c.Windows) == 0 {
		return fmt.Errorf("at least one window rule is required")
	}
	seen := make(map[string]bool, len(c.Windows))
	for _, w := range c.Windows {
		if w.Window == "" {
			return fmt.Errorf("window name is required")
		}
		if seen[w.Window] {
			return fmt.Errorf("duplicate window %q", w.Window)
		}
		seen[w.Window] = true
		if w.Threshold <= 0 || w.Threshold > 1 {
			return fmt.Errorf("window %s: threshold must be in (0, 1], got %v", w.Window, w.Threshold)
		}
	}
	switch c.MissingWindow {
	case MissingWindowSkip, MissingWindowFail:
	default:
		return fmt.Errorf("missing window policy must be %q or %q, got %q", MissingWindowSkip, MissingWindowFail, c.MissingWindow)
	}
	return nil
}

// ScreenResult is the pre-filter output
type ScreenResult struct {
	Passed         []string // sorted by longest loaded window rank, then id
	Excluded       []contracts.Exclusion
	SkippedWindows []string
}

// Screener implements the cross-sectional percentile pre-filter
// ⭐ SSOT: 4-4-3-3 사전 필터는 여기서만
type Screener struct {
	config ScreenerConfig
	logger *logger.Logger
}

// NewScreener creates a new screener; config must already be validated
func NewScreener(config ScreenerConfig, logger *logger.Logger) *Screener {
	return &Screener{
		config: config,
		logger: logger.Component("screener"),
	}
}

// Screen joins the universe with every loaded snapshot and keeps the
// instruments inside every window threshold. A nil snapshot means the
// window failed to load; the configured policy decides what happens.
func (s *Screener) Screen(universe []contracts.Instrument, snapshots map[string]*contracts.RankingSnapshot) ScreenResult {
	var result ScreenResult
	filtered := make(map[string]int) // rule -> count

	loaded := make([]WindowRule, 0, len(s.config.Windows))
	for _, rule := range s.config.Windows {
		if snapshots[rule.Window] != nil {
			loaded = append(loaded, rule)
			continue
		}
		result.SkippedWindows = append(result.SkippedWindows, rule.Window)
	}

	if len(result.SkippedWindows) > 0 && s.config.MissingWindow == MissingWindowFail {
		for _, inst := range dedupe(universe) {
			result.Excluded = append(result.Excluded, contracts.Exclusion{
				InstrumentID: inst.ID,
				Stage:        contracts.StagePrefilter,
				Kind:         "MissingWindow",
				Reason:       fmt.Sprintf("ranking snapshot unavailable: %v", result.SkippedWindows),
			})
		}
		s.logger.WithField("missing", result.SkippedWindows).Warn("Pre-filter aborted: snapshot missing and policy is fail")
		return result
	}

	for _, inst := range dedupe(universe) {
		if ex, ok := s.check(inst.ID, loaded, snapshots); !ok {
			filtered[ex.Kind]++
			result.Excluded = append(result.Excluded, ex)
			continue
		}
		result.Passed = append(result.Passed, inst.ID)
	}

	// stable output: longest loaded window rank, then id
	var primary *contracts.RankingSnapshot
	if len(loaded) > 0 {
		primary = snapshots[loaded[0].Window]
	}
	sort.SliceStable(result.Passed, func(i, j int) bool {
		a, b := result.Passed[i], result.Passed[j]
		if primary != nil {
			ea, _ := primary.Entry(a)
			eb, _ := primary.Entry(b)
			if ea.Rank != eb.Rank {
				return ea.Rank < eb.Rank
			}
		}
		return a < b
	})

	s.logger.WithFields(map[string]interface{}{
		"total_input":     len(universe),
		"passed":          len(result.Passed),
		"filtered_out":    len(result.Excluded),
		"filters":         filtered,
		"skipped_windows": result.SkippedWindows,
	}).Info("Pre-filter completed")

	return result
}

// check returns the first failing rule as an exclusion
func (s *Screener) check(id string, rules []WindowRule, snapshots map[string]*contracts.RankingSnapshot) (contracts.Exclusion, bool) {
	for _, rule := range rules {
		entry, ok := snapshots[rule.Window].Entry(id)
		if !ok {
			return contracts.Exclusion{
				InstrumentID: id,
				Stage:        contracts.StagePrefilter,
				Kind:         "NotRanked",
				Reason:       fmt.Sprintf("absent from %s ranking", rule.Window),
			}, false
		}
		if entry.Percentile > rule.Threshold {
			return contracts.Exclusion{
				InstrumentID: id,
				Stage:        contracts.StagePrefilter,
				Kind:         "Percentile",
				Reason:       fmt.Sprintf("%s percentile %.3f > %.3f", rule.Window, entry.Percentile, rule.Threshold),
			}, false
		}
	}
	return contracts.Exclusion{}, true
}

func dedupe(universe []contracts.Instrument) []contracts.Instrument {
	seen := make(map[string]bool, len(universe))
	out := make([]contracts.Instrument, 0, len(universe))
	for _, inst := range universe {
		if seen[inst.ID] {
			continue
		}
		seen[inst.ID] = true
		out = append(out, inst)
	}
	return out
}
