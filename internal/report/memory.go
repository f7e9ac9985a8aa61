package report

import (
	"context"
	"sync"

	"github.com/wonny/fundscope/internal/contracts"
)

// DefaultHistory is the number of reports Memory keeps
const DefaultHistory = 10

// Memory keeps the most recent reports for the read API
// ⭐ SSOT: API는 여기서만 최신 결과를 읽음
type Memory struct {
	mu      sync.RWMutex
	history []*contracts.Report // newest last
	limit   int
}

// NewMemory creates an in-memory sink keeping at most limit reports
func NewMemory(limit int) *Memory {
	if limit < 1 {
		limit = DefaultHistory
	}
	return &Memory{limit: limit}
}

// Name implements contracts.ReportSink
func (m *Memory) Name() string { return "memory" }

// Write implements contracts.ReportSink
func (m *Memory) Write(_ context.Context, r *contracts.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, r)
	if len(m.history) > m.limit {
		m.history = m.history[len(m.history)-m.limit:]
	}
	return nil
}

// Latest returns the newest report, or nil before the first run
func (m *Memory) Latest() *contracts.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.history) == 0 {
		return nil
	}
	return m.history[len(m.history)-1]
}

// Get returns the report with the given run id
func (m *Memory) Get(runID string) (*contracts.Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].RunID == runID {
			return m.history[i], true
		}
	}
	return nil, false
}

// Runs returns kept reports, newest first
func (m *Memory) Runs() []*contracts.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*contracts.Report, 0, len(m.history))
	for i := len(m.history) - 1; i >= 0; i-- {
		out = append(out, m.history[i])
	}
	return out
}
