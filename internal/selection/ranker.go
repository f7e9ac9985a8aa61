package selection

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/fetch"
	"github.com/wonny/fundscope/pkg/logger"
)

// lowerIsBetter metrics are inverted after normalization.
// max_drawdown is compared by magnitude.
var lowerIsBetter = map[string]bool{
	contracts.MetricVolatility:    true,
	contracts.MetricMaxDrawdown:   true,
	contracts.MetricFee:           true,
	contracts.MetricBeta:          true,
	contracts.MetricConcentration: true, // 상위 10종목 비중
}

// weightTolerance for the sum-to-one check
const weightTolerance = 1e-6

// degenerateScore is used when every candidate has the same value
const degenerateScore = 0.5

// Candidate is one instrument entering the scorer
type Candidate struct {
	Instrument contracts.Instrument
	Metrics    contracts.MetricsResult
	Holdings   []contracts.Holding
	Manager    *contracts.Manager
}

// Ranker implements the composite scorer
// ⭐ SSOT: 종합 점수 계산은 여기서만
type Ranker struct {
	weights   contracts.ScoreWeights
	recommend RecommendRule
	logger    *logger.Logger
}

// NewRanker creates a new ranker; weights must pass ValidateWeights
func NewRanker(weights contracts.ScoreWeights, recommend RecommendRule, logger *logger.Logger) *Ranker {
	return &Ranker{
		weights:   weights,
		recommend: recommend,
		logger:    logger.Component("ranker"),
	}
}

// DefaultWeights returns the default metric weights
func DefaultWeights() contracts.ScoreWeights {
	return contracts.ScoreWeights{
		contracts.MetricAnnualReturn:  0.25, // 수익률
		contracts.MetricSharpe:        0.25, // 위험조정수익
		contracts.MetricMaxDrawdown:   0.15, // 낙폭
		contracts.MetricVolatility:    0.10, // 변동성
		contracts.MetricFee:           0.10, // 보수
		contracts.MetricManagerTenure: 0.10, // 운용역 재임
		contracts.MetricConcentration: 0.05, // 집중도
		contracts.MetricBeta:          0.00,
	}
}

// ValidateWeights checks names, ranges and that the weights sum to 1
func ValidateWeights(weights contracts.ScoreWeights) error {
	if len(weights) == 0 {
		return fmt.Errorf("weights are empty")
	}
	for name, w := range weights {
		if !contracts.IsKnownMetric(name) {
			return fmt.Errorf("unknown metric %q", name)
		}
		if math.IsNaN(w) || w < 0 || w > 1 {
			return fmt.Errorf("weight %s must be in [0, 1], got %v", name, w)
		}
	}
	if sum := weights.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// Rank normalizes every weighted metric across the candidates, combines
// them with per-instrument renormalized weights and sorts by score.
// Candidates with no usable weighted metric are excluded.
func (r *Ranker) Rank(candidates []Candidate) ([]contracts.ScoredInstrument, []contracts.Exclusion) {
	normalized := r.normalize(candidates)

	ranked := make([]contracts.ScoredInstrument, 0, len(candidates))
	var excluded []contracts.Exclusion

	for i, c := range candidates {
		available := normalized[i]

		// 고정 순서로 합산 (map 순회 순서는 매번 다름)
		var usable float64
		for _, name := range contracts.MetricNames {
			if _, ok := available[name]; ok {
				usable += r.weights[name]
			}
		}
		if usable <= 0 {
			excluded = append(excluded, contracts.Exclusion{
				InstrumentID: c.Instrument.ID,
				Stage:        contracts.StageScoring,
				Kind:         string(fetch.KindInsufficientData),
				Reason:       "no weighted metric available",
			})
			continue
		}

		applied := make(map[string]float64, len(available))
		var score float64
		for _, name := range contracts.MetricNames {
			v, ok := available[name]
			if !ok {
				continue
			}
			w := r.weights[name] / usable
			applied[name] = w
			score += w * v
		}

		ranked = append(ranked, contracts.ScoredInstrument{
			Instrument:  c.Instrument,
			Metrics:     c.Metrics,
			Score:       score,
			Weights:     applied,
			Normalized:  available,
			Holdings:    c.Holdings,
			Manager:     c.Manager,
			Recommended: r.recommend.Recommended(c.Metrics),
		})
	}

	// Sort by score (descending), ties by id
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Instrument.ID < ranked[j].Instrument.ID
	})

	// Assign ranks
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	fields := map[string]interface{}{
		"candidates": len(candidates),
		"ranked":     len(ranked),
		"excluded":   len(excluded),
	}
	if len(ranked) > 0 {
		fields["top_score"] = ranked[0].Score
		fields["top_code"] = ranked[0].Instrument.ID
	}
	r.logger.WithFields(fields).Info("Ranking completed")

	return ranked, excluded
}

// normalize returns, per candidate index, the normalized value of every
// weighted metric it has. Metrics present for fewer than two candidates
// carry no cross-sectional information and are dropped for everyone.
func (r *Ranker) normalize(candidates []Candidate) []map[string]float64 {
	out := make([]map[string]float64, len(candidates))
	for i := range out {
		out[i] = make(map[string]float64)
	}

	for _, name := range contracts.MetricNames {
		if r.weights[name] <= 0 {
			continue
		}

		lo, hi := math.Inf(1), math.Inf(-1)
		count := 0
		for _, c := range candidates {
			v, ok := metricValue(c.Metrics, name)
			if !ok {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			count++
		}
		if count < 2 {
			r.logger.WithFields(map[string]interface{}{
				"metric":  name,
				"present": count,
			}).Debug("Metric skipped: not enough candidates")
			continue
		}

		for i, c := range candidates {
			v, ok := metricValue(c.Metrics, name)
			if !ok {
				continue
			}
			n := degenerateScore
			if hi > lo {
				n = (v - lo) / (hi - lo)
				if lowerIsBetter[name] {
					n = 1 - n
				}
			}
			out[i][name] = n
		}
	}
	return out
}

// metricValue returns the comparable value (drawdown as magnitude)
func metricValue(m contracts.MetricsResult, name string) (float64, bool) {
	v, ok := m.Get(name)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if name == contracts.MetricMaxDrawdown {
		v = math.Abs(v)
	}
	return v, true
}
