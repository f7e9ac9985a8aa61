// Package performance computes per-instrument risk/return metrics.
// Every function is pure; a metric that cannot be computed from the data
// is returned as nil, never as a placeholder number.
package performance

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/fundscope/internal/contracts"
)

// Params holds the metric engine settings
type Params struct {
	MinObservations int     // minimum daily returns for return/vol/sharpe/drawdown
	RiskFreeRate    float64 // annual, e.g. 0.03
	TradingDays     int     // annualization basis
}

// DefaultParams: 100 observations, 3% 무위험 수익률, 252 거래일
func DefaultParams() Params {
	return Params{
		MinObservations: 100,
		RiskFreeRate:    0.03,
		TradingDays:     252,
	}
}

// DailyReturns returns value[i]/value[i-1] - 1 for consecutive points.
// Pairs with a non-positive previous value are skipped.
func DailyReturns(s contracts.Series) []float64 {
	dated := datedReturns(s)
	out := make([]float64, len(dated))
	for i, r := range dated {
		out[i] = r.value
	}
	return out
}

type datedReturn struct {
	date  time.Time
	value float64
}

// datedReturns tags each return with the date it ends on
func datedReturns(s contracts.Series) []datedReturn {
	if len(s.Points) < 2 {
		return nil
	}
	out := make([]datedReturn, 0, len(s.Points)-1)
	for i := 1; i < len(s.Points); i++ {
		prev := s.Points[i-1].Value
		if prev <= 0 {
			continue
		}
		r := s.Points[i].Value/prev - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, datedReturn{date: s.Points[i].Date, value: r})
	}
	return out
}

// TotalReturn compounds daily returns
func TotalReturn(returns []float64) float64 {
	cum := 1.0
	for _, r := range returns {
		cum *= 1 + r
	}
	return cum - 1
}

// AnnualizedReturn = (1+total)^(tradingDays/n) - 1, nil below the minimum
func AnnualizedReturn(returns []float64, p Params) *float64 {
	n := len(returns)
	if n == 0 || n < p.MinObservations {
		return nil
	}
	total := TotalReturn(returns)
	if total <= -1 {
		// wiped out; a fractional power of a non-positive base is undefined
		v := -1.0
		return &v
	}
	v := math.Pow(1+total, float64(p.TradingDays)/float64(n)) - 1
	return &v
}

// Volatility is the sample standard deviation of daily returns,
// annualized by sqrt(tradingDays)
func Volatility(returns []float64, p Params) *float64 {
	n := len(returns)
	if n < 2 || n < p.MinObservations {
		return nil
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(n - 1)

	v := math.Sqrt(variance) * math.Sqrt(float64(p.TradingDays))
	return &v
}

// Sharpe = (annualReturn - rf) / volatility; 0 for a flat series
func Sharpe(annualReturn, volatility *float64, riskFree float64) *float64 {
	if annualReturn == nil || volatility == nil {
		return nil
	}
	v := 0.0
	if *volatility > 0 {
		v = (*annualReturn - riskFree) / *volatility
	}
	return &v
}

// MaxDrawdown is the deepest fall of the cumulative curve (starting at 1)
// below its running peak. Always <= 0.
func MaxDrawdown(returns []float64, p Params) *float64 {
	n := len(returns)
	if n == 0 || n < p.MinObservations {
		return nil
	}

	cum, peak, maxDD := 1.0, 1.0, 0.0
	for _, r := range returns {
		cum *= 1 + r
		if cum > peak {
			peak = cum
		}
		if dd := (cum - peak) / peak; dd < maxDD {
			maxDD = dd
		}
	}
	return &maxDD
}

// Beta = cov(instrument, benchmark) / var(benchmark) over daily returns
// whose end dates appear in both series. nil with fewer than 2 common
// dates or a flat benchmark.
func Beta(instrument, benchmark contracts.Series) *float64 {
	bench := make(map[time.Time]float64)
	for _, r := range datedReturns(benchmark) {
		bench[r.date] = r.value
	}

	var xs, ys []float64
	for _, r := range datedReturns(instrument) {
		if b, ok := bench[r.date]; ok {
			xs = append(xs, r.value)
			ys = append(ys, b)
		}
	}
	if len(xs) < 2 {
		return nil
	}

	mx, my := mean(xs), mean(ys)
	var cov, varB float64
	for i := range xs {
		cov += (xs[i] - mx) * (ys[i] - my)
		varB += (ys[i] - my) * (ys[i] - my)
	}
	if varB == 0 {
		return nil
	}
	v := cov / varB
	return &v
}

func mean(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// Compute derives every metric for one instrument. benchmark and fee are
// optional.
func Compute(s contracts.Series, benchmark *contracts.Series, fee *float64, p Params) contracts.MetricsResult {
	returns := DailyReturns(s)

	ann := AnnualizedReturn(returns, p)
	vol := Volatility(returns, p)

	res := contracts.MetricsResult{
		AnnualReturn: ann,
		Volatility:   vol,
		Sharpe:       Sharpe(ann, vol, p.RiskFreeRate),
		MaxDrawdown:  MaxDrawdown(returns, p),
		Observations: len(returns),
	}
	if benchmark != nil {
		res.Beta = Beta(s, *benchmark)
	}
	if fee != nil {
		f := *fee
		res.Fee = &f
	}
	return res
}

// concentrationTop: 상위 10종목 (jjcc topline)
const concentrationTop = 10

// Concentration returns the % of NAV held by the ten largest holdings.
// nil when no holdings were disclosed.
func Concentration(holdings []contracts.Holding) *float64 {
	if len(holdings) == 0 {
		return nil
	}
	weights := make([]float64, len(holdings))
	for i, h := range holdings {
		weights[i] = h.Weight
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
	if len(weights) > concentrationTop {
		weights = weights[:concentrationTop]
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	return &sum
}

// WithProfile adds the non-price metrics: manager tenure and holdings
// concentration. Either input may be absent.
func WithProfile(res contracts.MetricsResult, manager *contracts.Manager, holdings []contracts.Holding) contracts.MetricsResult {
	if manager != nil {
		res.ManagerTenure = contracts.Float(manager.TenureYears)
	}
	res.Concentration = Concentration(holdings)
	return res
}
