package contracts

import (
	"context"
	"time"
)

// Instrument is one fund in the candidate universe.
// ⭐ SSOT: 유니버스 로드 이후 변경 불가
type Instrument struct {
	ID       string `json:"id"`       // 6-digit fund code
	Name     string `json:"name"`     // display name
	Category string `json:"category"` // 混合型, 股票型 ...
}

// UniverseProvider supplies the candidate set for one run
type UniverseProvider interface {
	ListInstruments(ctx context.Context) ([]Instrument, error)
}

// Holding is one position reported in a fund's latest disclosure
type Holding struct {
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"` // % of NAV
}

// Manager is the fund's current manager as listed on the tenure table
type Manager struct {
	Name        string    `json:"name"` // co-managers joined by a space
	Since       time.Time `json:"since"`
	TenureYears float64   `json:"tenure_years"`
}
