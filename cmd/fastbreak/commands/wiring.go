package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/bronze"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/internal/external/nbastats"
	"github.com/courtdata/fastbreak/internal/gold"
	"github.com/courtdata/fastbreak/internal/refdata"
	"github.com/courtdata/fastbreak/internal/scheduler"
	"github.com/courtdata/fastbreak/internal/scheduler/jobs"
	"github.com/courtdata/fastbreak/internal/silver"
	"github.com/courtdata/fastbreak/pkg/config"
	"github.com/courtdata/fastbreak/pkg/database"
	"github.com/courtdata/fastbreak/pkg/logger"
	"github.com/courtdata/fastbreak/pkg/metrics"
)

// loadRuntime loads configuration and builds the logger every command
// starts from.
func loadRuntime() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)
	return cfg, log, nil
}

// openStore builds the configured object store backend wrapped with
// operation metrics.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (blob.Store, error) {
	var base blob.Store
	switch cfg.Store.Backend {
	case "memory":
		base = blob.NewMemory()
		log.Info("Using in-memory object store")
	case "s3":
		s3Store, err := blob.NewS3(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open s3 store: %w", err)
		}
		base = s3Store
		log.WithFields(map[string]interface{}{
			"bucket": cfg.Store.Bucket,
			"region": cfg.Store.Region,
		}).Info("Using S3 object store")
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
	return blob.NewInstrumented(base), nil
}

// newFeed builds the upstream stats feed client.
func newFeed(cfg *config.Config, log *logger.Logger) *nbastats.Client {
	httpClient := nbastats.NewHTTPClient(cfg, log)
	return nbastats.NewClient(cfg.Feed, httpClient, log)
}

// newIngestor wires the feed client and landing writer into the bronze
// ingestor.
func newIngestor(cfg *config.Config, log *logger.Logger, store blob.Store) *bronze.Ingestor {
	return newIngestorWith(cfg, log, store, newFeed(cfg, log))
}

// newIngestorWith reuses an existing feed client so daemons share one
// rate limiter across the ingest and schedule-sync paths.
func newIngestorWith(cfg *config.Config, log *logger.Logger, store blob.Store, feed bronze.Feed) *bronze.Ingestor {
	writer := bronze.NewWriter(store, log)
	return bronze.NewIngestor(feed, writer, log, bronze.IngestConfigFrom(cfg))
}

// openRefdata connects the schedule reference store. The returned
// closer releases the database pool.
func openRefdata(cfg *config.Config) (*refdata.Store, func(), error) {
	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return refdata.NewStore(db.Pool), db.Close, nil
}

// newTransformer wires the schedule reference store into the silver
// transformer. The returned closer releases the database pool.
func newTransformer(cfg *config.Config, log *logger.Logger, store blob.Store) (*silver.Transformer, func(), error) {
	ref, closeDB, err := openRefdata(cfg)
	if err != nil {
		return nil, nil, err
	}
	return newTransformerWith(cfg, log, store, ref), closeDB, nil
}

// newTransformerWith builds the silver transformer on an already-open
// schedule reference store.
func newTransformerWith(cfg *config.Config, log *logger.Logger, store blob.Store, ref *refdata.Store) *silver.Transformer {
	return silver.NewTransformer(store, ref, log, silver.ConformConfigFrom(cfg))
}

// registerJobs registers the standing pipeline jobs on the scheduler.
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, log *logger.Logger, store blob.Store, ingestor *bronze.Ingestor, transformer *silver.Transformer, syncer *refdata.Syncer) error {
	jobList := []scheduler.Job{
		jobs.NewIngestJob(ingestor, cfg.Scheduler.IngestSpec, log),
		jobs.NewSweepJob(store, transformer, cfg.Pipeline.SweepDays, cfg.Scheduler.SweepSpec, log),
		jobs.NewScheduleSyncJob(syncer, cfg.Scheduler.ScheduleSyncSpec, log),
	}
	for _, j := range jobList {
		if err := sched.AddJob(j); err != nil {
			return fmt.Errorf("register job %s: %w", j.Name(), err)
		}
	}
	return nil
}

// newBuilder wires the gold aggregation and artifact builder.
func newBuilder(cfg *config.Config, log *logger.Logger, store blob.Store) *gold.Builder {
	return gold.NewBuilder(store, log, gold.BuildConfigFrom(cfg))
}

// resolveDate reads an optional positional YYYY-MM-DD argument, falling
// back to the previous UTC day, the date the nightly pipeline works on.
func resolveDate(args []string) (contracts.Date, error) {
	if len(args) == 0 {
		return contracts.Today().AddDays(-1), nil
	}
	date, err := contracts.ParseDate(args[0])
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", args[0])
	}
	return date, nil
}

// startMetricsServer exposes the Prometheus registry on its own port
// when metrics are enabled. Returns nil when disabled.
func startMetricsServer(cfg *config.Config, log *logger.Logger) *http.Server {
	if !cfg.MetricsEnabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server failed")
		}
	}()

	log.WithFields(map[string]interface{}{
		"port": cfg.MetricsPort,
	}).Info("Metrics server started")

	return srv
}

// stopMetricsServer shuts the metrics listener down if one was started.
func stopMetricsServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
