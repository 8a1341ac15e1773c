package jobs

import (
	"context"
	"fmt"

	"github.com/courtdata/fastbreak/internal/refdata"
	"github.com/courtdata/fastbreak/pkg/logger"
)

// ScheduleSyncJob refreshes the reference schedule from the feed so
// completeness checks know how many games each date expects.
type ScheduleSyncJob struct {
	syncer *refdata.Syncer
	spec   string
	logger *logger.Logger
}

// NewScheduleSyncJob creates the schedule sync job with a cron spec
// from configuration.
func NewScheduleSyncJob(s *refdata.Syncer, spec string, log *logger.Logger) *ScheduleSyncJob {
	return &ScheduleSyncJob{syncer: s, spec: spec, logger: log}
}

// Name returns the job name.
func (j *ScheduleSyncJob) Name() string {
	return "schedule_sync"
}

// Schedule returns the configured cron spec.
func (j *ScheduleSyncJob) Schedule() string {
	return j.spec
}

// Run upserts the current season's schedule into reference storage.
func (j *ScheduleSyncJob) Run(ctx context.Context) error {
	games, err := j.syncer.SyncSeason(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync schedule: %w", err)
	}

	j.logger.WithField("games", games).Info("Schedule sync completed")
	return nil
}
