// Package jobs holds the standing pipeline jobs the scheduler fires.
package jobs

import (
	"context"
	"fmt"

	"github.com/courtdata/fastbreak/internal/bronze"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/pkg/logger"
)

// IngestJob lands the previous day's raw feed objects. The business day
// closes after the last West Coast game, so the job runs the following
// UTC morning.
type IngestJob struct {
	ingestor *bronze.Ingestor
	spec     string
	logger   *logger.Logger
}

// NewIngestJob creates the nightly ingest job with a cron spec from
// configuration.
func NewIngestJob(ing *bronze.Ingestor, spec string, log *logger.Logger) *IngestJob {
	return &IngestJob{ingestor: ing, spec: spec, logger: log}
}

// Name returns the job name.
func (j *IngestJob) Name() string {
	return "nightly_ingest"
}

// Schedule returns the configured cron spec.
func (j *IngestJob) Schedule() string {
	return j.spec
}

// Run ingests the previous UTC day.
func (j *IngestJob) Run(ctx context.Context) error {
	date := contracts.Today().AddDays(-1)

	report, err := j.ingestor.IngestDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", date, err)
	}

	j.logger.WithFields(map[string]interface{}{
		"business_date": string(date),
		"games":         report.Games,
		"landed":        report.Landed,
		"quarantined":   report.Quarantined,
	}).Info("Nightly ingest completed")

	return nil
}
