package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fastbreak",
	Short: "fastbreak - NBA statistics pipeline",
	Long: `fastbreak Unified CLI

Event-driven medallion pipeline over an object store: raw feed payloads
land in bronze, conform into silver entities, and aggregate into gold
artifacts served as public JSON.

Usage:
  go run ./cmd/fastbreak [command]

Examples:
  go run ./cmd/fastbreak ingest 2024-01-15
  go run ./cmd/fastbreak worker
  go run ./cmd/fastbreak serve
  go run ./cmd/fastbreak schedule start`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
