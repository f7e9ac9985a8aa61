package strategyconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/fundscope/internal/external/eastmoney"
	"github.com/wonny/fundscope/internal/selection"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

var validate = validator.New()

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === struct tags ===
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ValidationError{fieldPath(fe.Namespace()), tagMessage(fe)}
		}
		return ValidationError{"config", err.Error()}
	}

	// === Prefilter ===
	if err := cfg.ScreenerConfig().Validate(); err != nil {
		return ValidationError{"prefilter", err.Error()}
	}
	for i, w := range cfg.Prefilter.Windows {
		if _, err := eastmoney.WindowStart(w.Window, time.Now()); err != nil {
			return ValidationError{fmt.Sprintf("prefilter.windows[%d].window", i), err.Error()}
		}
	}

	// === Scoring ===
	if err := selection.ValidateWeights(cfg.ScoreWeights()); err != nil {
		return ValidationError{"scoring.weights", err.Error()}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// beta 가중치인데 벤치마크 없음
	if cfg.Scoring.Weights["beta"] > 0 && !cfg.Benchmark.Enabled {
		warnings = append(warnings, Warning{
			Code:    "BETA_WITHOUT_BENCHMARK",
			Message: "beta weight > 0 but benchmark disabled: beta is never available",
		})
	}

	// fee 가중치인데 보수 수집 안 함
	if cfg.Scoring.Weights["fee"] > 0 && !cfg.Detail.Fee {
		warnings = append(warnings, Warning{
			Code:    "FEE_NOT_FETCHED",
			Message: "fee weight > 0 but detail.fee is false",
		})
	}

	// 운용역 / 집중도 가중치인데 수집 안 함
	if cfg.Scoring.Weights["manager_tenure"] > 0 && !cfg.Detail.Manager {
		warnings = append(warnings, Warning{
			Code:    "MANAGER_NOT_FETCHED",
			Message: "manager_tenure weight > 0 but detail.manager is false",
		})
	}
	if cfg.Scoring.Weights["concentration"] > 0 && !cfg.Detail.Holdings {
		warnings = append(warnings, Warning{
			Code:    "HOLDINGS_NOT_FETCHED",
			Message: "concentration weight > 0 but detail.holdings is false",
		})
	}

	// 짧은 이력
	if cfg.Metrics.MinObservations < 60 {
		warnings = append(warnings, Warning{
			Code:    "SHORT_HISTORY",
			Message: "min_observations < 60: annualized metrics are noisy",
		})
	}

	// 이력이 최소 관측치보다 짧음
	if cfg.Detail.HistoryYears*cfg.Metrics.TradingDays < cfg.Metrics.MinObservations {
		warnings = append(warnings, Warning{
			Code:    "HISTORY_TOO_SHORT",
			Message: "detail.history_years cannot cover min_observations",
		})
	}

	for _, w := range cfg.Prefilter.Windows {
		if w.Threshold > 0.5 {
			warnings = append(warnings, Warning{
				Code:    "LOOSE_PREFILTER",
				Message: fmt.Sprintf("window %s threshold %.2f keeps more than half the market", w.Window, w.Threshold),
			})
		}
	}

	return warnings
}

// === Helper Functions ===

// fieldPath turns "Config.Prefilter.Windows[0].Threshold" into
// "prefilter.windows[0].threshold"
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("must satisfy %s=%s, got %v", fe.Tag(), fe.Param(), fe.Value())
	}
}
