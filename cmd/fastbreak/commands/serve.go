package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtdata/fastbreak/internal/api"
	"github.com/courtdata/fastbreak/internal/api/handlers"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the public artifact API",
	Long: `Starts the read-only HTTP server for the published artifacts.

This command:
- Serves gold artifacts straight from the store's served/ prefix
- Serves the latest-date index
- Exposes the pipeline status endpoint for operators
- Serves /metrics on the metrics port

Endpoints:
  GET  /health
  GET  /artifacts/index/latest.json
  GET  /artifacts/{type}/{date}/{id}.json
  GET  /api/pipeline/status?date=YYYY-MM-DD

Example:
  go run ./cmd/fastbreak serve
  go run ./cmd/fastbreak serve --port 8089`,
	RunE: runServe,
}

var (
	servePort string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("=== fastbreak Artifact Server ===")

	// 1. Load config and logger
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}

	// Override port if flag is set
	if servePort != "" {
		cfg.Port = servePort
	}

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing artifact server")

	// 2. Open the object store
	ctx := context.Background()
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	// 3. Create handlers
	artifactHandler := handlers.NewArtifactHandler(store, cfg.CacheMaxAge, log)
	pipelineHandler := handlers.NewPipelineHandler(store, log)

	// 4. Create router and server
	router := api.NewRouter(artifactHandler, pipelineHandler, log)
	server := api.New(cfg, log, router)

	// 5. Metrics listener
	metricsSrv := startMetricsServer(cfg, log)
	defer stopMetricsServer(metricsSrv)

	// 6. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /artifacts/index/latest.json")
	fmt.Println("  GET  /artifacts/{type}/{date}/{id}.json")
	fmt.Println("  GET  /api/pipeline/status")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
