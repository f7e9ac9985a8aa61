package contracts

import (
	"math"
	"sort"
	"time"
)

// TimePoint is one dated observation (NAV, index close)
type TimePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is a chronological sequence of TimePoints for one instrument.
// Build it with NewSeries: dates are strictly increasing and unique.
type Series struct {
	InstrumentID string      `json:"instrument_id"`
	Points       []TimePoint `json:"points"`
}

// NewSeries sorts by date, keeps the last value written for a duplicated
// date and drops non-finite values. The input slice is not modified.
func NewSeries(instrumentID string, points []TimePoint) Series {
	byDay := make(map[time.Time]int, len(points))
	out := make([]TimePoint, 0, len(points))

	for _, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		day := truncateDay(p.Date)
		if i, ok := byDay[day]; ok {
			out[i].Value = p.Value // last write wins
			continue
		}
		byDay[day] = len(out)
		out = append(out, TimePoint{Date: day, Value: p.Value})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	return Series{InstrumentID: instrumentID, Points: out}
}

// truncateDay normalizes to midnight UTC of the calendar date
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Len returns the number of points
func (s Series) Len() int { return len(s.Points) }

// Values returns the values in date order
func (s Series) Values() []float64 {
	vals := make([]float64, len(s.Points))
	for i, p := range s.Points {
		vals[i] = p.Value
	}
	return vals
}

// Last returns the most recent point
func (s Series) Last() (TimePoint, bool) {
	if len(s.Points) == 0 {
		return TimePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Since returns the suffix of the series dated on or after from
func (s Series) Since(from time.Time) Series {
	i := sort.Search(len(s.Points), func(i int) bool { return !s.Points[i].Date.Before(from) })
	return Series{InstrumentID: s.InstrumentID, Points: s.Points[i:]}
}

// Until returns the prefix of the series dated on or before to
func (s Series) Until(to time.Time) Series {
	i := sort.Search(len(s.Points), func(i int) bool { return s.Points[i].Date.After(to) })
	return Series{InstrumentID: s.InstrumentID, Points: s.Points[:i]}
}
