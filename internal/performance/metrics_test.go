package performance

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundscope/internal/contracts"
)

var base = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// seriesFromReturns builds a NAV series starting at 1.0
func seriesFromReturns(id string, returns []float64, start time.Time) contracts.Series {
	pts := make([]contracts.TimePoint, 0, len(returns)+1)
	v := 1.0
	pts = append(pts, contracts.TimePoint{Date: start, Value: v})
	for i, r := range returns {
		v *= 1 + r
		pts = append(pts, contracts.TimePoint{Date: start.AddDate(0, 0, i+1), Value: v})
	}
	return contracts.NewSeries(id, pts)
}

func constantSeries(n int, value float64) contracts.Series {
	pts := make([]contracts.TimePoint, n)
	for i := range pts {
		pts[i] = contracts.TimePoint{Date: base.AddDate(0, 0, i), Value: value}
	}
	return contracts.NewSeries("flat", pts)
}

func TestDailyReturns(t *testing.T) {
	s := contracts.NewSeries("x", []contracts.TimePoint{
		{Date: base, Value: 1.0},
		{Date: base.AddDate(0, 0, 1), Value: 1.1},
		{Date: base.AddDate(0, 0, 2), Value: 0.99},
	})

	r := DailyReturns(s)
	require.Len(t, r, 2)
	assert.InDelta(t, 0.1, r[0], 1e-12)
	assert.InDelta(t, -0.1, r[1], 1e-12)

	assert.Empty(t, DailyReturns(contracts.NewSeries("one", []contracts.TimePoint{{Date: base, Value: 1}})))
}

func TestFlatSeries(t *testing.T) {
	p := DefaultParams()
	for _, n := range []int{p.MinObservations + 1, 300} {
		m := Compute(constantSeries(n, 1.2345), nil, nil, p)

		require.NotNil(t, m.Volatility)
		require.NotNil(t, m.Sharpe)
		require.NotNil(t, m.MaxDrawdown)
		assert.Equal(t, 0.0, *m.Volatility)
		assert.Equal(t, 0.0, *m.Sharpe, "zero volatility must give Sharpe 0, not NaN/Inf")
		assert.Equal(t, 0.0, *m.MaxDrawdown)
		assert.Equal(t, 0.0, *m.AnnualReturn)
	}
}

func TestInsufficientData(t *testing.T) {
	p := DefaultParams()
	m := Compute(constantSeries(p.MinObservations, 1.0), nil, nil, p) // n-1 returns

	assert.Nil(t, m.AnnualReturn)
	assert.Nil(t, m.Volatility)
	assert.Nil(t, m.Sharpe)
	assert.Nil(t, m.MaxDrawdown)
	assert.Equal(t, p.MinObservations-1, m.Observations)
}

func TestDrawdownAndVolatilityBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := DefaultParams()

	for trial := 0; trial < 50; trial++ {
		returns := make([]float64, 150+rng.Intn(200))
		for i := range returns {
			returns[i] = rng.NormFloat64() * 0.02
		}
		s := seriesFromReturns("r", returns, base)

		m := Compute(s, nil, nil, p)
		require.NotNil(t, m.MaxDrawdown)
		require.NotNil(t, m.Volatility)
		assert.LessOrEqual(t, *m.MaxDrawdown, 0.0)
		assert.GreaterOrEqual(t, *m.Volatility, 0.0)
		assert.False(t, math.IsNaN(*m.Sharpe))
	}
}

func TestAnnualizedReturn(t *testing.T) {
	p := Params{MinObservations: 1, TradingDays: 252}

	// 252 days of a constant daily return compounding to +10%
	daily := math.Pow(1.1, 1.0/252) - 1
	returns := make([]float64, 252)
	for i := range returns {
		returns[i] = daily
	}
	ann := AnnualizedReturn(returns, p)
	require.NotNil(t, ann)
	assert.InDelta(t, 0.10, *ann, 1e-9)

	// half a year at the same pace annualizes to the same rate
	ann = AnnualizedReturn(returns[:126], p)
	assert.InDelta(t, 0.10, *ann, 1e-9)

	assert.Nil(t, AnnualizedReturn(nil, p))
}

func TestMaxDrawdown(t *testing.T) {
	p := Params{MinObservations: 1, TradingDays: 252}

	// 1 → 1.2 → 0.9 → 1.5 : worst is 0.9/1.2 - 1 = -25%
	returns := []float64{0.2, 0.9/1.2 - 1, 1.5/0.9 - 1}
	dd := MaxDrawdown(returns, p)
	require.NotNil(t, dd)
	assert.InDelta(t, -0.25, *dd, 1e-12)

	// loss on day one is measured against the starting value of 1
	dd = MaxDrawdown([]float64{-0.1, 0.05}, p)
	assert.InDelta(t, -0.1, *dd, 1e-12)
}

func TestSharpe(t *testing.T) {
	assert.Nil(t, Sharpe(nil, contracts.Float(0.1), 0.03))
	assert.Nil(t, Sharpe(contracts.Float(0.1), nil, 0.03))
	assert.InDelta(t, 0.35, *Sharpe(contracts.Float(0.10), contracts.Float(0.20), 0.03), 1e-12)
	assert.Equal(t, 0.0, *Sharpe(contracts.Float(0.10), contracts.Float(0), 0.03))
}

func TestBeta(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	benchReturns := make([]float64, 120)
	instReturns := make([]float64, 120)
	for i := range benchReturns {
		benchReturns[i] = rng.NormFloat64() * 0.01
		instReturns[i] = 2 * benchReturns[i]
	}

	bench := seriesFromReturns("bench", benchReturns, base)
	inst := seriesFromReturns("inst", instReturns, base)

	b := Beta(inst, bench)
	require.NotNil(t, b)
	assert.InDelta(t, 2.0, *b, 1e-9)
}

func TestBeta_InnerJoinByDate(t *testing.T) {
	bench := seriesFromReturns("bench", []float64{0.01, -0.02, 0.03, 0.01}, base)

	// instrument starts two days later: only the overlapping returns count
	late := seriesFromReturns("late", []float64{0.02, -0.01}, base.AddDate(0, 0, 2))
	b := Beta(late, bench)
	require.NotNil(t, b)
	// overlap: bench (0.03, 0.01) vs inst (0.02, -0.01)
	assert.InDelta(t, 1.5, *b, 1e-9)

	// a single common date is not enough
	one := seriesFromReturns("one", []float64{0.02}, base.AddDate(0, 0, 3))
	assert.Nil(t, Beta(one, bench))

	// flat benchmark has zero variance
	assert.Nil(t, Beta(bench, constantSeries(10, 3)))
}

func TestCompute_OptionalInputs(t *testing.T) {
	p := Params{MinObservations: 2, RiskFreeRate: 0.03, TradingDays: 252}
	s := seriesFromReturns("x", []float64{0.01, -0.01, 0.02}, base)

	m := Compute(s, nil, nil, p)
	assert.Nil(t, m.Beta)
	assert.Nil(t, m.Fee)

	fee := 1.5
	m = Compute(s, &s, &fee, p)
	require.NotNil(t, m.Beta)
	assert.InDelta(t, 1.0, *m.Beta, 1e-12)
	require.NotNil(t, m.Fee)
	assert.Equal(t, 1.5, *m.Fee)

	fee = 9
	assert.Equal(t, 1.5, *m.Fee, "result must not alias the caller's fee")
}

func TestConcentration(t *testing.T) {
	assert.Nil(t, Concentration(nil))
	assert.Nil(t, Concentration([]contracts.Holding{}))

	holdings := make([]contracts.Holding, 0, 12)
	for i := 1; i <= 12; i++ {
		holdings = append(holdings, contracts.Holding{Code: "x", Weight: float64(i)})
	}
	// 상위 10개: 3..12
	c := Concentration(holdings)
	require.NotNil(t, c)
	assert.InDelta(t, 75.0, *c, 1e-12)
	assert.Equal(t, 1.0, holdings[0].Weight, "input order must be preserved")
}

func TestWithProfile(t *testing.T) {
	priced := contracts.MetricsResult{Sharpe: contracts.Float(1.1)}

	m := WithProfile(priced, nil, nil)
	assert.Nil(t, m.ManagerTenure)
	assert.Nil(t, m.Concentration)
	assert.Equal(t, 1.1, *m.Sharpe)

	m = WithProfile(priced, &contracts.Manager{Name: "张坤", TenureYears: 3.5},
		[]contracts.Holding{{Weight: 9.5}, {Weight: 7.25}})
	require.NotNil(t, m.ManagerTenure)
	assert.Equal(t, 3.5, *m.ManagerTenure)
	require.NotNil(t, m.Concentration)
	assert.Equal(t, 16.75, *m.Concentration)
	assert.Nil(t, priced.Concentration)
}
