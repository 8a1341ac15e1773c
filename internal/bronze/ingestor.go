package bronze

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/internal/external/nbastats"
	"github.com/courtdata/fastbreak/pkg/config"
	"github.com/courtdata/fastbreak/pkg/logger"
	"github.com/courtdata/fastbreak/pkg/metrics"
)

// Feed is the slice of the stats client ingestion drives.
type Feed interface {
	Scoreboard(ctx context.Context, date contracts.Date) (*nbastats.Scoreboard, error)
	BoxScore(ctx context.Context, gameID string) (json.RawMessage, error)
	TeamRoster(ctx context.Context, teamID string) (json.RawMessage, error)
}

// IngestConfig tunes one ingest run.
type IngestConfig struct {
	Workers    int
	MaxRetries int
	RetryBase  time.Duration
	Rosters    bool
}

// DefaultIngestConfig returns the tuning used when no overrides are set.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Workers:    4,
		MaxRetries: 3,
		RetryBase:  500 * time.Millisecond,
		Rosters:    true,
	}
}

// IngestConfigFrom overlays the loaded configuration onto the defaults.
func IngestConfigFrom(cfg *config.Config) IngestConfig {
	ic := DefaultIngestConfig()
	if cfg.Pipeline.IngestWorkers > 0 {
		ic.Workers = cfg.Pipeline.IngestWorkers
	}
	if cfg.Pipeline.FetchMaxRetries > 0 {
		ic.MaxRetries = cfg.Pipeline.FetchMaxRetries
	}
	if cfg.Pipeline.FetchRetryBase > 0 {
		ic.RetryBase = cfg.Pipeline.FetchRetryBase
	}
	ic.Rosters = cfg.Pipeline.IngestRosters
	return ic
}

// IngestReport counts what one ingest run did with its units.
type IngestReport struct {
	Games       int
	Landed      int
	Quarantined int
	Skipped     int
	Failed      int
}

// Ingestor pulls one date's raw payloads from the feed and lands them.
// Transient feed failures are retried here with backoff; the client
// itself never retries.
type Ingestor struct {
	feed   Feed
	writer *Writer
	logger *logger.Logger
	config IngestConfig
}

// NewIngestor creates an ingestor that lands through writer.
func NewIngestor(feed Feed, writer *Writer, log *logger.Logger, ic IngestConfig) *Ingestor {
	return &Ingestor{
		feed:   feed,
		writer: writer,
		logger: log,
		config: ic,
	}
}

type fetchUnit struct {
	resource contracts.RawResource
	sourceID string
}

type unitOutcome int

const (
	unitLanded unitOutcome = iota
	unitQuarantined
	unitSkipped
	unitFailed
)

type unitResult struct {
	unit    fetchUnit
	outcome unitOutcome
}

// IngestDate pulls the scoreboard for date, then every game's box score
// and, when enabled, each involved team's roster. A unit that stays
// unfetchable after retries is given up for this run; the sweep comes
// back for it.
func (i *Ingestor) IngestDate(ctx context.Context, date contracts.Date) (IngestReport, error) {
	report := contracts.NewStageReport(contracts.StageBronze, date)
	var out IngestReport

	sb, done, err := i.ingestScoreboard(ctx, date, &out)
	if err != nil {
		metrics.RecordStageRun(string(contracts.StageBronze), "error")
		return out, err
	}
	if done {
		i.finish(report, out)
		return out, nil
	}

	out.Games = len(sb.Games)
	units := make([]fetchUnit, 0, len(sb.Games)*3)
	for _, g := range sb.Games {
		units = append(units, fetchUnit{resource: contracts.ResourceBoxScore, sourceID: g.GameID})
	}
	if i.config.Rosters {
		for _, teamID := range uniqueTeams(sb.Games) {
			units = append(units, fetchUnit{resource: contracts.ResourceRoster, sourceID: teamID})
		}
	}

	i.logger.WithFields(map[string]interface{}{
		"business_date": string(date),
		"games":         len(sb.Games),
		"units":         len(units),
		"workers":       i.config.Workers,
	}).Info("Starting ingest run")

	unitCh := make(chan fetchUnit, len(units))
	resultCh := make(chan unitResult, len(units))

	var wg sync.WaitGroup
	workers := i.config.Workers
	if workers < 1 {
		workers = 1
	}
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			i.unitWorker(ctx, date, unitCh, resultCh)
		}()
	}

	for _, u := range units {
		unitCh <- u
	}
	close(unitCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for r := range resultCh {
		switch r.outcome {
		case unitLanded:
			out.Landed++
		case unitQuarantined:
			out.Quarantined++
		case unitSkipped:
			out.Skipped++
		case unitFailed:
			out.Failed++
		}
	}

	report.RecordsProcessed = out.Landed
	report.RecordsQuarantined = out.Quarantined
	i.finish(report, out)
	return out, nil
}

// ingestScoreboard fetches and lands the day's game list. done reports
// that the run has nothing further to do: the date has no scoreboard
// upstream, or the payload could only be quarantined.
func (i *Ingestor) ingestScoreboard(ctx context.Context, date contracts.Date, out *IngestReport) (*nbastats.Scoreboard, bool, error) {
	var sb *nbastats.Scoreboard
	err := i.withRetry(ctx, func() error {
		var ferr error
		sb, ferr = i.feed.Scoreboard(ctx, date)
		return ferr
	})
	if err != nil {
		if nbastats.IsNotFound(err) {
			i.logger.WithFields(map[string]interface{}{
				"business_date": string(date),
			}).Info("No scoreboard published for date")
			out.Skipped++
			return nil, true, nil
		}
		if nbastats.IsPermanentlyInvalid(err) {
			i.quarantineFetch(ctx, date, contracts.ResourceScoreboard, string(date), err)
			out.Quarantined++
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("failed to fetch scoreboard: %w", err)
	}

	res, err := i.writer.Land(ctx, RawPayload{
		Resource:  contracts.ResourceScoreboard,
		SourceID:  string(date),
		Body:      sb.Body,
		FetchedAt: time.Now().UTC(),
	}, date)
	if err != nil {
		return nil, false, err
	}
	if res.Quarantined {
		out.Quarantined++
		return nil, true, nil
	}
	out.Landed++
	return sb, false, nil
}

func (i *Ingestor) unitWorker(ctx context.Context, date contracts.Date, unitCh <-chan fetchUnit, resultCh chan<- unitResult) {
	for u := range unitCh {
		select {
		case <-ctx.Done():
			resultCh <- unitResult{unit: u, outcome: unitFailed}
			return
		default:
		}

		resultCh <- unitResult{unit: u, outcome: i.ingestUnit(ctx, date, u)}
	}
}

func (i *Ingestor) ingestUnit(ctx context.Context, date contracts.Date, u fetchUnit) unitOutcome {
	var body json.RawMessage
	err := i.withRetry(ctx, func() error {
		var ferr error
		body, ferr = i.fetchUnit(ctx, u)
		return ferr
	})
	if err != nil {
		switch {
		case nbastats.IsNotFound(err):
			i.logger.WithFields(map[string]interface{}{
				"resource": string(u.resource),
				"source":   u.sourceID,
			}).Info("Resource not published upstream, skipping")
			return unitSkipped
		case nbastats.IsPermanentlyInvalid(err):
			i.quarantineFetch(ctx, date, u.resource, u.sourceID, err)
			return unitQuarantined
		default:
			i.logger.WithError(err).WithFields(map[string]interface{}{
				"resource": string(u.resource),
				"source":   u.sourceID,
			}).Error("Giving up on unit for this run")
			return unitFailed
		}
	}

	res, err := i.writer.Land(ctx, RawPayload{
		Resource:  u.resource,
		SourceID:  u.sourceID,
		Body:      body,
		FetchedAt: time.Now().UTC(),
	}, date)
	if err != nil {
		i.logger.WithError(err).WithFields(map[string]interface{}{
			"resource": string(u.resource),
			"source":   u.sourceID,
		}).Error("Failed to land unit")
		return unitFailed
	}
	if res.Quarantined {
		return unitQuarantined
	}
	return unitLanded
}

func (i *Ingestor) fetchUnit(ctx context.Context, u fetchUnit) (json.RawMessage, error) {
	switch u.resource {
	case contracts.ResourceBoxScore:
		return i.feed.BoxScore(ctx, u.sourceID)
	case contracts.ResourceRoster:
		return i.feed.TeamRoster(ctx, u.sourceID)
	}
	return nil, fmt.Errorf("no fetcher for resource %q", u.resource)
}

// withRetry runs do, retrying rate-limit and transient failures with
// doubling delay. Everything else returns immediately: a 404 or an
// invalid payload will not improve on refetch.
func (i *Ingestor) withRetry(ctx context.Context, do func() error) error {
	delay := i.config.RetryBase
	var lastErr error
	for attempt := 0; attempt <= i.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := do()
		if err == nil {
			return nil
		}
		lastErr = err
		if !nbastats.IsRateLimited(err) && !nbastats.IsTransient(err) {
			return err
		}
	}
	return lastErr
}

// quarantineFetch parks the offending bytes of a permanently invalid
// fetch. Failures here are logged and dropped: quarantine is evidence
// capture, not a gate.
func (i *Ingestor) quarantineFetch(ctx context.Context, date contracts.Date, resource contracts.RawResource, sourceID string, ferr error) {
	var fe *nbastats.FetchError
	payload := RawPayload{
		Resource:  resource,
		SourceID:  sourceID,
		FetchedAt: time.Now().UTC(),
	}
	if errors.As(ferr, &fe) {
		payload.Body = fe.Body
	}

	if _, err := i.writer.Quarantine(ctx, payload, date, ferr.Error()); err != nil {
		i.logger.WithError(err).WithFields(map[string]interface{}{
			"resource": string(resource),
			"source":   sourceID,
		}).Error("Failed to quarantine invalid payload")
	}
}

func (i *Ingestor) finish(report *contracts.StageReport, out IngestReport) {
	metrics.RecordStageRun(string(contracts.StageBronze), "ok")
	metrics.ObserveStageDuration(string(contracts.StageBronze), time.Since(report.StartedAt).Seconds())
	i.logger.WithFields(report.Fields()).Info("Stage complete")
}

func uniqueTeams(games []nbastats.GameHeader) []string {
	seen := make(map[string]struct{}, len(games)*2)
	teams := make([]string, 0, len(games)*2)
	for _, g := range games {
		for _, id := range []string{g.HomeTeamID, g.AwayTeamID} {
			if id == "" || id == "0" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			teams = append(teams, id)
		}
	}
	return teams
}
