package selection

import (
	"fmt"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/pkg/logger"
)

// Thresholds are optional hard limits applied after metrics and before
// scoring. A nil limit is disabled; a limit on a missing metric passes.
type Thresholds struct {
	MinAnnualReturn  *float64 `yaml:"min_annual_return" json:"min_annual_return,omitempty"`
	MaxVolatility    *float64 `yaml:"max_volatility" json:"max_volatility,omitempty"`
	MinSharpe        *float64 `yaml:"min_sharpe" json:"min_sharpe,omitempty"`
	MaxFee           *float64 `yaml:"max_fee" json:"max_fee,omitempty"`
	MaxDrawdownFloor *float64 `yaml:"max_drawdown_floor" json:"max_drawdown_floor,omitempty"` // e.g. -0.3
	MinManagerTenure *float64 `yaml:"min_manager_tenure" json:"min_manager_tenure,omitempty"` // years
	MaxConcentration *float64 `yaml:"max_concentration" json:"max_concentration,omitempty"`   // top-10, % of NAV
}

// Check returns the first violated limit as a reason
func (t Thresholds) Check(m contracts.MetricsResult) (string, bool) {
	if t.MinAnnualReturn != nil && m.AnnualReturn != nil && *m.AnnualReturn < *t.MinAnnualReturn {
		return fmt.Sprintf("annual return %.4f < %.4f", *m.AnnualReturn, *t.MinAnnualReturn), false
	}
	if t.MaxVolatility != nil && m.Volatility != nil && *m.Volatility > *t.MaxVolatility {
		return fmt.Sprintf("volatility %.4f > %.4f", *m.Volatility, *t.MaxVolatility), false
	}
	if t.MinSharpe != nil && m.Sharpe != nil && *m.Sharpe < *t.MinSharpe {
		return fmt.Sprintf("sharpe %.4f < %.4f", *m.Sharpe, *t.MinSharpe), false
	}
	if t.MaxFee != nil && m.Fee != nil && *m.Fee > *t.MaxFee {
		return fmt.Sprintf("fee %.4f > %.4f", *m.Fee, *t.MaxFee), false
	}
	if t.MaxDrawdownFloor != nil && m.MaxDrawdown != nil && *m.MaxDrawdown < *t.MaxDrawdownFloor {
		return fmt.Sprintf("max drawdown %.4f < %.4f", *m.MaxDrawdown, *t.MaxDrawdownFloor), false
	}
	if t.MinManagerTenure != nil && m.ManagerTenure != nil && *m.ManagerTenure < *t.MinManagerTenure {
		return fmt.Sprintf("manager tenure %.2fy < %.2fy", *m.ManagerTenure, *t.MinManagerTenure), false
	}
	if t.MaxConcentration != nil && m.Concentration != nil && *m.Concentration > *t.MaxConcentration {
		return fmt.Sprintf("concentration %.2f%% > %.2f%%", *m.Concentration, *t.MaxConcentration), false
	}
	return "", true
}

// Apply splits candidates into kept and excluded
func (t Thresholds) Apply(candidates []Candidate, log *logger.Logger) ([]Candidate, []contracts.Exclusion) {
	kept := make([]Candidate, 0, len(candidates))
	var excluded []contracts.Exclusion
	for _, c := range candidates {
		if reason, ok := t.Check(c.Metrics); !ok {
			excluded = append(excluded, contracts.Exclusion{
				InstrumentID: c.Instrument.ID,
				Stage:        contracts.StageThreshold,
				Kind:         "Threshold",
				Reason:       reason,
			})
			continue
		}
		kept = append(kept, c)
	}
	if len(excluded) > 0 {
		log.WithFields(map[string]interface{}{
			"kept":     len(kept),
			"excluded": len(excluded),
		}).Info("Thresholds applied")
	}
	return kept, excluded
}

// RecommendRule flags strong candidates in the report
type RecommendRule struct {
	MinSharpe        float64 `yaml:"min_sharpe" json:"min_sharpe"`
	MaxDrawdownFloor float64 `yaml:"max_drawdown_floor" json:"max_drawdown_floor"`
}

// DefaultRecommendRule: Sharpe > 1, MDD > -20%
func DefaultRecommendRule() RecommendRule {
	return RecommendRule{MinSharpe: 1.0, MaxDrawdownFloor: -0.20}
}

// Recommended requires both metrics to be present
func (r RecommendRule) Recommended(m contracts.MetricsResult) bool {
	if m.Sharpe == nil || m.MaxDrawdown == nil {
		return false
	}
	return *m.Sharpe > r.MinSharpe && *m.MaxDrawdown > r.MaxDrawdownFloor
}
