package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/internal/events"
	"github.com/courtdata/fastbreak/internal/gold"
	"github.com/courtdata/fastbreak/internal/refdata"
	"github.com/courtdata/fastbreak/internal/scheduler"
	"github.com/courtdata/fastbreak/pkg/logger"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the event-driven pipeline daemon",
	Long: `Runs the standing pipeline process: object writes flow through the
event router, and each stage triggers the next.

This command:
- Publishes an event for every object the pipeline writes
- Routes bronze landings to the conformance handler
- Routes daily ready markers to the gold build handler
- Retries failing handlers with backoff, parks exhausted events on
  the poison topic
- Runs the scheduled jobs (nightly ingest, sweep, schedule sync)
  in-process so their writes drive the same chain
- Serves /metrics on the metrics port

Example:
  go run ./cmd/fastbreak worker`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	fmt.Println("=== fastbreak Pipeline Worker ===")

	// 1. Load config and logger
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Open the object store
	base, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	// 3. Create the event router; every pipeline write goes through the
	// notifying store so the chain sees it.
	router, err := events.NewRouter(events.RouterConfigFrom(cfg), log)
	if err != nil {
		return fmt.Errorf("create event router: %w", err)
	}
	defer router.Close()

	store := blob.NewNotifying(base, router, cfg.Store.Bucket, log)

	// 4. Wire the stage components against the notifying store
	ref, closeDB, err := openRefdata(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	feed := newFeed(cfg, log)
	ingestor := newIngestorWith(cfg, log, store, feed)
	transformer := newTransformerWith(cfg, log, store, ref)
	builder := newBuilder(cfg, log, store)
	syncer := refdata.NewSyncer(feed, ref, log)

	stageTimeout := cfg.Pipeline.StageTimeout

	// 5. Bronze landings trigger conformance for the touched partition.
	// Every landed object re-runs the pass; conformance is idempotent,
	// so duplicate and out-of-order deliveries settle on the same state.
	router.AddObjectHandler("conformance",
		events.Filter{Prefix: "bronze/", Suffix: ".json"},
		func(ctx context.Context, evt events.ObjectEvent) error {
			date, _, ok := contracts.ParseBronzeKey(evt.Key)
			if !ok {
				log.WithFields(map[string]interface{}{
					"key": evt.Key,
				}).Warn("Skipping bronze event with unparseable key")
				return nil
			}
			ctx, cancel := context.WithTimeout(ctx, stageTimeout)
			defer cancel()
			_, err := transformer.Conform(ctx, date)
			return err
		})

	// 6. Ready markers trigger the gold build for the committed date.
	router.AddObjectHandler("gold",
		events.Filter{Prefix: contracts.MarkerPrefix, Suffix: ".json"},
		func(ctx context.Context, evt events.ObjectEvent) error {
			date, ok := contracts.ParseMarkerKey(evt.Key)
			if !ok {
				log.WithFields(map[string]interface{}{
					"key": evt.Key,
				}).Warn("Skipping marker event with unparseable key")
				return nil
			}
			ctx, cancel := context.WithTimeout(ctx, stageTimeout)
			defer cancel()
			_, err := builder.Build(ctx, date)
			if errors.Is(err, gold.ErrDateNotCommitted) {
				// The marker is gone. A stale event carries no work.
				return nil
			}
			return err
		})

	// 7. Drain the poison topic into the log
	poisonCh, err := router.PoisonSubscriber().Subscribe(ctx, router.PoisonTopic())
	if err != nil {
		return fmt.Errorf("subscribe poison topic: %w", err)
	}
	go drainPoison(poisonCh, log)

	// 8. Start the router
	routerErr := router.RunAsync(ctx)

	// 9. Run the standing jobs in-process so their writes feed the chain
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(log)
		if err := registerJobs(sched, cfg, log, store, ingestor, transformer, syncer); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	// 10. Metrics listener
	metricsSrv := startMetricsServer(cfg, log)
	defer stopMetricsServer(metricsSrv)

	fmt.Println("\n✅ Worker started")
	fmt.Println("\nHandlers:")
	fmt.Println("  bronze/**.json         → conformance")
	fmt.Println("  silver/markers/*.json  → gold build")
	if sched != nil {
		fmt.Println("\nScheduled jobs:")
		for _, name := range sched.Jobs() {
			fmt.Printf("  - %s\n", name)
		}
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal or router failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Shutting down worker...")
	case err := <-routerErr:
		if err != nil {
			return fmt.Errorf("event router stopped: %w", err)
		}
		log.Info("Event router stopped")
	}

	cancel()
	fmt.Println("Worker stopped")
	return nil
}

// drainPoison logs events that exhausted their retries. The log line is
// the operator's signal to inspect and replay by hand.
func drainPoison(msgs <-chan *message.Message, log *logger.Logger) {
	for msg := range msgs {
		fields := map[string]interface{}{
			"message_id": msg.UUID,
			"handler":    msg.Metadata.Get(middleware.PoisonedHandlerKey),
			"reason":     msg.Metadata.Get(middleware.ReasonForPoisonedKey),
		}
		if evt, err := events.UnmarshalObjectEvent(msg.Payload); err == nil {
			fields["key"] = evt.Key
		}
		log.WithFields(fields).Error("Event handling exhausted retries")
		msg.Ack()
	}
}
