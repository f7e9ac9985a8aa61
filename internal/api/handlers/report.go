package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/internal/scheduler"
	"github.com/wonny/fundscope/pkg/logger"
)

// ReportStore exposes finished reports (satisfied by *report.Memory)
type ReportStore interface {
	Latest() *contracts.Report
	Get(runID string) (*contracts.Report, bool)
	Runs() []*contracts.Report
}

// Trigger starts a run in the background (satisfied by *scheduler.Scheduler)
type Trigger interface {
	RunJob(jobName string) error
}

// ReportHandler serves ranking results
// ⭐ SSOT: 결과 조회 API 핸들러는 여기서만
type ReportHandler struct {
	store   ReportStore
	trigger Trigger // optional
	jobName string
	logger  *logger.Logger
}

// NewReportHandler creates a report handler. trigger may be nil.
func NewReportHandler(store ReportStore, trigger Trigger, jobName string, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		store:   store,
		trigger: trigger,
		jobName: jobName,
		logger:  log,
	}
}

// RunSummary is one entry of GET /api/runs
type RunSummary struct {
	RunID       string             `json:"run_id"`
	StrategyID  string             `json:"strategy_id"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Cancelled   bool               `json:"cancelled"`
	Stats       contracts.RunStats `json:"stats"`
}

// RankingResponse is the body of GET /api/ranking
type RankingResponse struct {
	RunID       string                       `json:"run_id"`
	StrategyID  string                       `json:"strategy_id"`
	CompletedAt time.Time                    `json:"completed_at"`
	Cancelled   bool                         `json:"cancelled"`
	Total       int                          `json:"total"`
	Items       []contracts.ScoredInstrument `json:"items"`
}

// GetRanking returns the latest ranking
// GET /api/ranking?limit=20&recommended=true
func (h *ReportHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	rep := h.store.Latest()
	if rep == nil {
		respondError(w, http.StatusNotFound, "No completed run yet")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	onlyRecommended := r.URL.Query().Get("recommended") == "true"

	items := make([]contracts.ScoredInstrument, 0, len(rep.Ranked))
	for _, s := range rep.Ranked {
		if onlyRecommended && !s.Recommended {
			continue
		}
		items = append(items, s)
	}
	total := len(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	respondJSON(w, http.StatusOK, RankingResponse{
		RunID:       rep.RunID,
		StrategyID:  rep.StrategyID,
		CompletedAt: rep.CompletedAt,
		Cancelled:   rep.Cancelled,
		Total:       total,
		Items:       items,
	})
}

// GetExclusions returns the latest run's exclusions
// GET /api/exclusions?stage=detail&kind=AllSourcesExhausted
func (h *ReportHandler) GetExclusions(w http.ResponseWriter, r *http.Request) {
	rep := h.store.Latest()
	if rep == nil {
		respondError(w, http.StatusNotFound, "No completed run yet")
		return
	}

	stage := r.URL.Query().Get("stage")
	kind := r.URL.Query().Get("kind")

	items := make([]contracts.Exclusion, 0, len(rep.Excluded))
	for _, e := range rep.Excluded {
		if stage != "" && e.Stage != stage {
			continue
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		items = append(items, e)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": rep.RunID,
		"total":  len(items),
		"items":  items,
	})
}

// ListRuns returns kept runs, newest first
// GET /api/runs
func (h *ReportHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.store.Runs()
	out := make([]RunSummary, 0, len(runs))
	for _, rep := range runs {
		out = append(out, RunSummary{
			RunID:       rep.RunID,
			StrategyID:  rep.StrategyID,
			StartedAt:   rep.StartedAt,
			CompletedAt: rep.CompletedAt,
			Cancelled:   rep.Cancelled,
			Stats:       rep.Stats,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// GetRun returns one full report
// GET /api/runs/{id}
func (h *ReportHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rep, ok := h.store.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

// TriggerRun starts a pipeline run in the background
// POST /api/runs
func (h *ReportHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		respondError(w, http.StatusNotImplemented, "Manual runs are disabled")
		return
	}

	err := h.trigger.RunJob(h.jobName)
	switch {
	case errors.Is(err, scheduler.ErrJobRunning):
		respondError(w, http.StatusConflict, "A run is already in progress")
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to trigger run")
		respondError(w, http.StatusInternalServerError, "Failed to trigger run")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"job":    h.jobName,
	})
}
