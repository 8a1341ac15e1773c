package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtdata/fastbreak/internal/gold"
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build [date]",
	Short: "Build gold artifacts for one committed date",
	Long: `Aggregates one committed silver date into daily and season-to-date
stats and renders the public JSON artifacts.

This command:
- Requires the daily ready marker (conform the date first)
- Renders player, team, game summary, and top-list artifacts
- Degrades oversize artifacts to stay under the size bound
- Advances the served index when coverage clears the minimum

The date defaults to the previous UTC day.

Example:
  go run ./cmd/fastbreak build
  go run ./cmd/fastbreak build 2024-01-15`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	fmt.Println("=== fastbreak Gold Build ===")

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

	// 3. Run the build
	builder := newBuilder(cfg, log, store)

	start := time.Now()
	result, err := builder.Build(ctx, date)
	if err != nil {
		if errors.Is(err, gold.ErrDateNotCommitted) {
			return fmt.Errorf("%s is not committed yet: run conform first", date)
		}
		return fmt.Errorf("build %s: %w", date, err)
	}

	fmt.Printf("\n✅ Build completed in %.2fs\n", time.Since(start).Seconds())
	fmt.Printf("   Date:      %s\n", date)
	fmt.Printf("   Artifacts: %d\n", result.ArtifactsWritten)
	fmt.Printf("   Degraded:  %d\n", result.Degraded)
	fmt.Printf("   Skipped:   %d\n", result.Skipped)
	if result.IndexAdvanced {
		fmt.Printf("   Index:     advanced to %s\n", date)
	} else {
		fmt.Printf("   Index:     held\n")
	}

	return nil
}
