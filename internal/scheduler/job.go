package scheduler

import (
	"context"
	"time"
)

// historyLimit bounds the per-job result ring.
const historyLimit = 100

// Job is one standing pipeline task.
type Job interface {
	// Name identifies the job in logs and history.
	Name() string

	// Run executes one firing.
	Run(ctx context.Context) error

	// Schedule returns the cron spec, six fields with a leading seconds
	// column, e.g. "0 0 6 * * *" for 06:00 UTC daily.
	Schedule() string
}

// JobResult records one firing of a job.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory keeps the most recent results for one job.
type JobHistory struct {
	Results []JobResult
}

// AddResult appends result, discarding the oldest past the limit.
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// Latest returns the most recent result, or nil before any run.
func (h *JobHistory) Latest() *JobResult {
	if len(h.Results) == 0 {
		return nil
	}
	return &h.Results[len(h.Results)-1]
}

// SuccessRate returns the share of recorded runs that succeeded.
func (h *JobHistory) SuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0
	}
	succeeded := 0
	for _, result := range h.Results {
		if result.Success {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(h.Results))
}
