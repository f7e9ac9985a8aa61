package contracts

// Metric names used in weights, thresholds and reports
const (
	MetricAnnualReturn = "annual_return"
	MetricVolatility   = "volatility"
	MetricSharpe       = "sharpe"
	MetricMaxDrawdown  = "max_drawdown"
	MetricBeta         = "beta"
	MetricFee          = "fee"

	MetricManagerTenure = "manager_tenure"
	MetricConcentration = "concentration"
)

// MetricNames lists every metric in report column order
var MetricNames = []string{
	MetricAnnualReturn,
	MetricVolatility,
	MetricSharpe,
	MetricMaxDrawdown,
	MetricBeta,
	MetricFee,
	MetricManagerTenure,
	MetricConcentration,
}

// MetricsResult holds per-instrument metrics. A nil field means the value
// could not be computed from the available data; it is never zero-filled.
type MetricsResult struct {
	AnnualReturn *float64 `json:"annual_return"`
	Volatility   *float64 `json:"volatility"`
	Sharpe       *float64 `json:"sharpe"`
	MaxDrawdown  *float64 `json:"max_drawdown"` // <= 0
	Beta         *float64 `json:"beta"`
	Fee          *float64 `json:"fee"` // management fee, % per year

	ManagerTenure *float64 `json:"manager_tenure"` // years the current manager has run the fund
	Concentration *float64 `json:"concentration"`  // top-10 holdings, % of NAV

	Observations int `json:"observations"` // number of daily returns used
}

// Get returns the metric by name
func (m MetricsResult) Get(name string) (float64, bool) {
	var p *float64
	switch name {
	case MetricAnnualReturn:
		p = m.AnnualReturn
	case MetricVolatility:
		p = m.Volatility
	case MetricSharpe:
		p = m.Sharpe
	case MetricMaxDrawdown:
		p = m.MaxDrawdown
	case MetricBeta:
		p = m.Beta
	case MetricFee:
		p = m.Fee
	case MetricManagerTenure:
		p = m.ManagerTenure
	case MetricConcentration:
		p = m.Concentration
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// IsKnownMetric reports whether name is a metric the engine produces
func IsKnownMetric(name string) bool {
	for _, n := range MetricNames {
		if n == name {
			return true
		}
	}
	return false
}

// Float returns a pointer to v (metric literal helper)
func Float(v float64) *float64 { return &v }
