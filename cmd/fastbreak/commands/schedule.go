package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtdata/fastbreak/internal/refdata"
	"github.com/courtdata/fastbreak/internal/scheduler"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the standing pipeline jobs",
	Long: `Starts the cron daemon or manages its jobs.

Registered jobs:
- nightly_ingest: lands the previous day's feed payloads in bronze
- conformance_sweep: re-runs conformance for recent uncommitted dates
- schedule_sync: refreshes the league schedule reference table

The standalone daemon runs the jobs without the event chain; prefer
the worker, which runs the same jobs in-process and reacts to their
writes.

Subcommands:
  start   - start the cron daemon
  list    - list registered jobs
  run     - run one job now and wait for it
  status  - show job run statistics
  sync    - refresh the schedule reference table once

Example:
  go run ./cmd/fastbreak schedule start
  go run ./cmd/fastbreak schedule run nightly_ingest
  go run ./cmd/fastbreak schedule sync`,
}

var (
	scheduleStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the cron daemon",
		Long: `Starts the scheduler and fires every registered job on its spec.

The daemon runs until interrupted with Ctrl+C.`,
		RunE: runScheduleStart,
	}

	scheduleListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listScheduleJobs,
	}

	scheduleRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleJob,
	}

	scheduleStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job run statistics",
		RunE:  showScheduleStatus,
	}

	scheduleSyncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Refresh the schedule reference table once",
		Long: `Fetches the full league schedule from the feed and upserts every
game into the reference table the completeness check reads.

Run this before the first conformance pass of a season, and again
whenever the league reshuffles the calendar.`,
		RunE: runScheduleSync,
	}
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleStartCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)
	scheduleCmd.AddCommand(scheduleStatusCmd)
	scheduleCmd.AddCommand(scheduleSyncCmd)
}

func runScheduleStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== fastbreak Scheduler ===")

	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	sched.Start()

	fmt.Println("\n✅ Scheduler started")
	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listScheduleJobs(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	fmt.Println("Registered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}

	return nil
}

func runScheduleJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	start := time.Now()
	if err := sched.RunJobWait(jobName); err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	fmt.Printf("✅ Job completed in %.2fs\n", time.Since(start).Seconds())
	return nil
}

func showScheduleStatus(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	stats := sched.Stats()

	fmt.Println("Job Statistics:")
	fmt.Println()

	for jobName, stat := range stats {
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)

		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}
		if stat.LastSuccess != nil {
			fmt.Printf("   Last Success: %s\n", stat.LastSuccess.Format("2006-01-02 15:04:05"))
		}
		if stat.LastFailure != nil {
			fmt.Printf("   Last Failure: %s\n", stat.LastFailure.Format("2006-01-02 15:04:05"))
		}

		fmt.Println()
	}

	return nil
}

func runScheduleSync(cmd *cobra.Command, args []string) error {
	fmt.Println("=== fastbreak Schedule Sync ===")

	// 1. Load config and logger
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}

	// 2. Connect the schedule reference store
	ref, closeDB, err := openRefdata(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.StageTimeout)
	defer cancel()

	// 3. Make sure the schema exists before the first upsert
	if err := ref.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	// 4. Sync the season schedule
	syncer := refdata.NewSyncer(newFeed(cfg, log), ref, log)

	start := time.Now()
	games, err := syncer.SyncSeason(ctx)
	if err != nil {
		return fmt.Errorf("sync schedule: %w", err)
	}

	fmt.Printf("\n✅ Schedule sync completed in %.2fs (%d games)\n",
		time.Since(start).Seconds(), games)

	return nil
}

// initScheduler wires the full job set for the standalone daemon and
// the job management subcommands.
func initScheduler() (*scheduler.Scheduler, func(), error) {
	// 1. Load config and logger
	cfg, log, err := loadRuntime()
	if err != nil {
		return nil, nil, err
	}

	// 2. Open the object store
	store, err := openStore(context.Background(), cfg, log)
	if err != nil {
		return nil, nil, err
	}

	// 3. Connect the schedule reference store
	ref, closeDB, err := openRefdata(cfg)
	if err != nil {
		return nil, nil, err
	}

	// 4. Wire the stage components
	feed := newFeed(cfg, log)
	ingestor := newIngestorWith(cfg, log, store, feed)
	transformer := newTransformerWith(cfg, log, store, ref)
	syncer := refdata.NewSyncer(feed, ref, log)

	// 5. Create the scheduler and register jobs
	sched := scheduler.New(log)
	if err := registerJobs(sched, cfg, log, store, ingestor, transformer, syncer); err != nil {
		closeDB()
		return nil, nil, err
	}

	return sched, closeDB, nil
}
