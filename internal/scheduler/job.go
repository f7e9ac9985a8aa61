package scheduler

import (
	"context"
	"time"

	"github.com/wonny/fundscope/internal/contracts"
	"github.com/wonny/fundscope/pkg/logger"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string
	Run(ctx context.Context) error
	// Schedule returns the cron expression, e.g. "30 20 * * 1-5" or "@daily"
	Schedule() string
}

// Runner executes one pipeline run (satisfied by *pipeline.Pipeline)
type Runner interface {
	Run(ctx context.Context) (*contracts.Report, error)
}

// PipelineJob runs the screening pipeline on a cron schedule
type PipelineJob struct {
	name     string
	schedule string
	runner   Runner
	logger   *logger.Logger
}

// NewPipelineJob creates a pipeline job
func NewPipelineJob(name, schedule string, runner Runner, log *logger.Logger) *PipelineJob {
	return &PipelineJob{name: name, schedule: schedule, runner: runner, logger: log}
}

func (j *PipelineJob) Name() string     { return j.name }
func (j *PipelineJob) Schedule() string { return j.schedule }

// Run executes one pipeline run. Per-instrument failures are part of the
// report; only universe and sink failures fail the job.
func (j *PipelineJob) Run(ctx context.Context) error {
	report, err := j.runner.Run(ctx)
	if report != nil {
		j.logger.WithFields(map[string]interface{}{
			"job":       j.name,
			"run_id":    report.RunID,
			"ranked":    report.Stats.Ranked,
			"excluded":  report.Stats.Excluded,
			"cancelled": report.Cancelled,
		}).Info("Scheduled run finished")
	}
	return err
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory stores job execution history
type JobHistory struct {
	Results []JobResult
}

// AddResult adds a job result to history
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)

	// 최근 100건만 유지
	if len(h.Results) > 100 {
		h.Results = h.Results[len(h.Results)-100:]
	}
}

// GetLatestResults returns the latest N results
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	return h.Results[len(h.Results)-n:]
}

// GetFailedResults returns all failed results
func (h *JobHistory) GetFailedResults() []JobResult {
	failed := make([]JobResult, 0)
	for _, result := range h.Results {
		if !result.Success {
			failed = append(failed, result)
		}
	}
	return failed
}

// GetSuccessRate returns the success rate (0.0 - 1.0)
func (h *JobHistory) GetSuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0.0
	}

	successCount := 0
	for _, result := range h.Results {
		if result.Success {
			successCount++
		}
	}
	return float64(successCount) / float64(len(h.Results))
}
