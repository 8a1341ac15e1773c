package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// conformCmd represents the conform command
var conformCmd = &cobra.Command{
	Use:   "conform [date]",
	Short: "Conform one bronze partition into silver entities",
	Long: `Reads every raw payload in one bronze partition, validates and
deduplicates it, and writes conformed entities to the silver layer.

This command:
- Parses and validates raw payloads against the entity schemas
- Deduplicates on natural key (latest fetch wins)
- Tracks roster changes as SCD2 versions
- Writes the daily ready marker when the date is complete

The date defaults to the previous UTC day.

Example:
  go run ./cmd/fastbreak conform
  go run ./cmd/fastbreak conform 2024-01-15`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConform,
}

func init() {
	rootCmd.AddCommand(conformCmd)
}

func runConform(cmd *cobra.Command, args []string) error {
	fmt.Println("=== fastbreak Silver Conformance ===")

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

	// 3. Wire the transformer against the schedule reference store
	transformer, closeDB, err := newTransformer(cfg, log, store)
	if err != nil {
		return err
	}
	defer closeDB()

	// 4. Run the conformance pass
	start := time.Now()
	result, err := transformer.Conform(ctx, date)
	if err != nil {
		return fmt.Errorf("conform %s: %w", date, err)
	}

	fmt.Printf("\n✅ Conformance completed in %.2fs\n", time.Since(start).Seconds())
	fmt.Printf("   Date:        %s\n", date)
	fmt.Printf("   Written:     %d\n", result.Written)
	fmt.Printf("   Quarantined: %d\n", result.Quarantined)
	if result.Ready {
		fmt.Printf("   Ready:       yes (marker written)\n")
	} else {
		fmt.Printf("   Ready:       no\n")
	}

	return nil
}
