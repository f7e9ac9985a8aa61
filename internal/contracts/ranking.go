package contracts

import (
	"fmt"
	"sort"
)

// RankEntry is one instrument's standing in a window
type RankEntry struct {
	Rank       int     `json:"rank"`       // 1-based
	Percentile float64 `json:"percentile"` // rank / total, in (0, 1]
	Return     float64 `json:"return"`     // window return in %, informational
}

// RankedID is one row of a source ranking, in source order
type RankedID struct {
	ID     string  `json:"id"`
	Return float64 `json:"return"`
}

// RankingSnapshot maps instrument → standing for one lookback window.
// Built once per window per run and never mutated afterwards.
type RankingSnapshot struct {
	window  string
	total   int
	entries map[string]RankEntry
}

// NewRankingSnapshot builds a snapshot from rows ordered best first.
// total is the size of the ranked population (may exceed len(rows)
// when the source pages results). Duplicate ids keep their first rank.
func NewRankingSnapshot(window string, total int, rows []RankedID) (*RankingSnapshot, error) {
	if total <= 0 {
		return nil, fmt.Errorf("ranking %s: total must be > 0, got %d", window, total)
	}
	if len(rows) > total {
		total = len(rows)
	}

	entries := make(map[string]RankEntry, len(rows))
	for i, r := range rows {
		if _, dup := entries[r.ID]; dup {
			continue
		}
		rank := i + 1
		entries[r.ID] = RankEntry{
			Rank:       rank,
			Percentile: float64(rank) / float64(total),
			Return:     r.Return,
		}
	}

	return &RankingSnapshot{window: window, total: total, entries: entries}, nil
}

// NewRankingSnapshotFromEntries builds a snapshot from precomputed entries
func NewRankingSnapshotFromEntries(window string, total int, entries map[string]RankEntry) *RankingSnapshot {
	cp := make(map[string]RankEntry, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return &RankingSnapshot{window: window, total: total, entries: cp}
}

func (s *RankingSnapshot) Window() string { return s.window }
func (s *RankingSnapshot) Total() int     { return s.total }
func (s *RankingSnapshot) Len() int       { return len(s.entries) }

// Entry returns the standing of id in this window
func (s *RankingSnapshot) Entry(id string) (RankEntry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// IDs returns the ranked ids ordered by rank
func (s *RankingSnapshot) IDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := s.entries[ids[i]].Rank, s.entries[ids[j]].Rank
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// RankingPage is one window of source ranking rows, best first.
// Plain data so it can be cached; Snapshot builds the read-only view.
type RankingPage struct {
	Window string     `json:"window"`
	Total  int        `json:"total"`
	Rows   []RankedID `json:"rows"`
}

// Snapshot builds the immutable ranking snapshot
func (p RankingPage) Snapshot() (*RankingSnapshot, error) {
	return NewRankingSnapshot(p.Window, p.Total, p.Rows)
}
