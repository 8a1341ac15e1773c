package jobs

import (
	"context"
	"fmt"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/internal/silver"
	"github.com/courtdata/fastbreak/pkg/logger"
)

// SweepJob re-runs conformance for recent dates that never committed a
// ready marker, picking up late box scores and transient failures.
type SweepJob struct {
	store       blob.Store
	transformer *silver.Transformer
	days        int
	spec        string
	logger      *logger.Logger
}

// NewSweepJob creates the conformance sweep over the trailing days
// window.
func NewSweepJob(store blob.Store, tr *silver.Transformer, days int, spec string, log *logger.Logger) *SweepJob {
	if days < 1 {
		days = 1
	}
	return &SweepJob{store: store, transformer: tr, days: days, spec: spec, logger: log}
}

// Name returns the job name.
func (j *SweepJob) Name() string {
	return "conformance_sweep"
}

// Schedule returns the configured cron spec.
func (j *SweepJob) Schedule() string {
	return j.spec
}

// Run conforms every trailing date whose marker is still missing. A date
// that fails keeps the sweep going; the job reports the failures at the
// end so the next firing retries them.
func (j *SweepJob) Run(ctx context.Context) error {
	swept := 0
	failed := 0

	for back := 1; back <= j.days; back++ {
		date := contracts.Today().AddDays(-back)

		committed, err := blob.Exists(ctx, j.store, contracts.MarkerKey(date))
		if err != nil {
			return fmt.Errorf("failed to check marker for %s: %w", date, err)
		}
		if committed {
			continue
		}

		swept++
		result, err := j.transformer.Conform(ctx, date)
		if err != nil {
			failed++
			j.logger.WithFields(map[string]interface{}{
				"business_date": string(date),
				"error":         err.Error(),
			}).Error("Sweep conformance failed")
			continue
		}

		j.logger.WithFields(map[string]interface{}{
			"business_date": string(date),
			"written":       result.Written,
			"quarantined":   result.Quarantined,
			"ready":         result.Ready,
		}).Info("Swept uncommitted date")
	}

	if failed > 0 {
		return fmt.Errorf("sweep failed for %d of %d uncommitted dates", failed, swept)
	}

	j.logger.WithFields(map[string]interface{}{
		"checked": j.days,
		"swept":   swept,
	}).Info("Conformance sweep completed")

	return nil
}
