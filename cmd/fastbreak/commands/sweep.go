package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtdata/fastbreak/internal/scheduler/jobs"
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-run conformance for recent uncommitted dates",
	Long: `Walks the trailing window of business dates and re-runs conformance
for every date still missing its daily ready marker.

This catches dates where the event-driven path stalled: a late feed
correction, a poison-queued payload, or a worker outage. Committed
dates are skipped.

Example:
  go run ./cmd/fastbreak sweep
  go run ./cmd/fastbreak sweep --days 7`,
	RunE: runSweep,
}

var (
	sweepDays int
)

func init() {
	rootCmd.AddCommand(sweepCmd)

	// Flags
	sweepCmd.Flags().IntVar(&sweepDays, "days", 0, "trailing days to check (default from config)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	fmt.Println("=== fastbreak Conformance Sweep ===")

	// 1. Load config and logger
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}

	days := cfg.Pipeline.SweepDays
	if sweepDays > 0 {
		days = sweepDays
	}

	// 2. Open the object store
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.StageTimeout)
	defer cancel()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	// 3. Wire the transformer against the schedule reference store
	transformer, closeDB, err := newTransformer(cfg, log, store)
	if err != nil {
		return err
	}
	defer closeDB()

	// 4. Run the sweep once, synchronously
	job := jobs.NewSweepJob(store, transformer, days, cfg.Scheduler.SweepSpec, log)

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	fmt.Printf("\n✅ Sweep completed in %.2fs (%d trailing days checked)\n",
		time.Since(start).Seconds(), days)

	return nil
}
