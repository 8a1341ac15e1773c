// Package scheduler drives the standing pipeline jobs from cron specs
// and keeps a bounded run history per job.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/courtdata/fastbreak/pkg/logger"
)

// Scheduler owns the cron runner and the registered jobs.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	jobs    map[string]Job
	history map[string]*JobHistory
	mu      sync.RWMutex

	maxAttempts int
	retryDelay  time.Duration
}

// New creates a scheduler. Specs use the six-field form with a leading
// seconds column.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds()),
		logger:      log,
		jobs:        make(map[string]Job),
		history:     make(map[string]*JobHistory),
		maxAttempts: 3,
		retryDelay:  time.Minute,
	}
}

// AddJob registers job under its cron spec. Job names are unique.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	if _, err := s.cron.AddFunc(job.Schedule(), func() { s.runJob(job) }); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.history[name] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job registered")

	return nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop halts the schedules and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob fires one registered job immediately, outside its schedule.
func (s *Scheduler) RunJob(name string) error {
	job, err := s.job(name)
	if err != nil {
		return err
	}
	go s.runJob(job)
	return nil
}

// RunJobWait runs one registered job on the calling goroutine and
// returns the final outcome after retries.
func (s *Scheduler) RunJobWait(name string) error {
	job, err := s.job(name)
	if err != nil {
		return err
	}
	return s.runJob(job)
}

func (s *Scheduler) job(name string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return job, nil
}

// runJob executes one firing with bounded retries and records the
// outcome in the job's history.
func (s *Scheduler) runJob(job Job) error {
	name := job.Name()
	start := time.Now()

	s.logger.WithField("job", name).Info("Job started")

	var lastErr error
	success := false
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if lastErr = job.Run(context.Background()); lastErr == nil {
			success = true
			break
		}

		s.logger.WithFields(map[string]interface{}{
			"job":     name,
			"attempt": attempt,
			"error":   lastErr.Error(),
		}).Warn("Job attempt failed")

		if attempt < s.maxAttempts {
			time.Sleep(s.retryDelay)
		}
	}

	result := JobResult{
		JobName:   name,
		StartTime: start,
		EndTime:   time.Now(),
		Success:   success,
	}
	result.Duration = result.EndTime.Sub(result.StartTime)
	if !success {
		result.Error = lastErr.Error()
	}

	s.mu.Lock()
	if history, ok := s.history[name]; ok {
		history.AddResult(result)
	}
	s.mu.Unlock()

	if success {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": result.Duration,
		}).Info("Job completed")
		return nil
	}
	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"duration": result.Duration,
		"error":    lastErr.Error(),
	}).Error("Job failed after all attempts")
	return lastErr
}

// History returns the recorded runs for one job.
func (s *Scheduler) History(name string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return history, nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// JobStats summarizes the recorded runs of one job.
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

// Stats summarizes every registered job for operator surfaces.
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.history))
	for name, history := range s.history {
		st := JobStats{
			JobName:     name,
			Schedule:    s.jobs[name].Schedule(),
			TotalRuns:   len(history.Results),
			SuccessRate: history.SuccessRate(),
		}
		for i := range history.Results {
			r := history.Results[i]
			st.LastRun = &r.StartTime
			if r.Success {
				st.SuccessCount++
				st.LastSuccess = &r.StartTime
			} else {
				st.FailureCount++
				st.LastFailure = &r.StartTime
			}
		}
		stats[name] = st
	}
	return stats
}
