package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [date]",
	Short: "Land one day of raw feed payloads in bronze",
	Long: `Fetches the scoreboard, box scores, and rosters for one business
date and lands every payload in the bronze layer.

This command:
- Fetches the scoreboard for the date
- Fetches a box score per scheduled game
- Lands payloads that pass the envelope check, quarantines the rest
- Appends a fresh object per fetch, so re-runs are safe

The date defaults to the previous UTC day.

Example:
  go run ./cmd/fastbreak ingest
  go run ./cmd/fastbreak ingest 2024-01-15`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	fmt.Println("=== fastbreak Bronze Ingest ===")

	date, err := resolveDate(args)
	if err != nil {
		return err
	}

	// 1. Load config and logger
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}

	// 2. Open the object store
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.StageTimeout)
	defer cancel()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	// 3. Run the ingest
	ingestor := newIngestor(cfg, log, store)

	start := time.Now()
	report, err := ingestor.IngestDate(ctx, date)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", date, err)
	}

	fmt.Printf("\n✅ Ingest completed in %.2fs\n", time.Since(start).Seconds())
	fmt.Printf("   Date:        %s\n", date)
	fmt.Printf("   Games:       %d\n", report.Games)
	fmt.Printf("   Landed:      %d\n", report.Landed)
	fmt.Printf("   Skipped:     %d\n", report.Skipped)
	fmt.Printf("   Quarantined: %d\n", report.Quarantined)
	fmt.Printf("   Failed:      %d\n", report.Failed)

	return nil
}
