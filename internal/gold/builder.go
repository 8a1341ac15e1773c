// Package gold aggregates committed silver dates into season-to-date
// snapshots and renders the public JSON artifacts, committing the
// serving index only after enough of the date's bodies are written.
package gold

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/pkg/config"
	"github.com/courtdata/fastbreak/pkg/logger"
	"github.com/courtdata/fastbreak/pkg/metrics"
)

// ErrDateNotCommitted reports a build request for a date whose ready
// marker does not exist yet.
var ErrDateNotCommitted = errors.New("business date is not committed")

// indexSwapAttempts bounds the serving index CAS loop when concurrent
// builds race on the pointer.
const indexSwapAttempts = 3

// BuildConfig tunes one artifact build.
type BuildConfig struct {
	// Workers bounds the parallel render pool.
	Workers int
	// MinCoverage is the share of expected artifacts that must render
	// before the serving index may advance.
	MinCoverage float64
	// TopListSize truncates every leaderboard.
	TopListSize int
}

// DefaultBuildConfig returns the tuning used when nothing is configured.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		Workers:     4,
		MinCoverage: 0.9,
		TopListSize: 10,
	}
}

// BuildConfigFrom overlays the loaded configuration onto the defaults.
func BuildConfigFrom(cfg *config.Config) BuildConfig {
	bc := DefaultBuildConfig()
	if cfg.Pipeline.RenderWorkers > 0 {
		bc.Workers = cfg.Pipeline.RenderWorkers
	}
	if cfg.Pipeline.ArtifactCoverage > 0 {
		bc.MinCoverage = cfg.Pipeline.ArtifactCoverage
	}
	if cfg.Pipeline.TopListSize > 0 {
		bc.TopListSize = cfg.Pipeline.TopListSize
	}
	return bc
}

// BuildResult counts what one build produced.
type BuildResult struct {
	ArtifactsWritten int
	Degraded         int
	Skipped          int
	IndexAdvanced    bool
}

// Builder renders the gold layer for committed business dates.
type Builder struct {
	store  blob.Store
	logger *logger.Logger
	config BuildConfig
}

// NewBuilder creates an artifact builder over store.
func NewBuilder(store blob.Store, log *logger.Logger, bc BuildConfig) *Builder {
	return &Builder{store: store, logger: log, config: bc}
}

// sourceRef is the conformed provenance carried into artifact lineage.
type sourceRef struct {
	recordID string
	fetchAt  time.Time
}

type gameRecord struct {
	game   contracts.Game
	source sourceRef
}

type teamRecord struct {
	stat   contracts.TeamGameStat
	source sourceRef
}

type playerRecord struct {
	stat   contracts.PlayerGameStat
	source sourceRef
}

// playerDay is one player's combined line for the date. A date almost
// always holds one game per player; summing keeps the rollup right when
// it does not.
type playerDay struct {
	stat   contracts.PlayerGameStat
	line   contracts.StatLine
	games  []string
	source sourceRef
}

type teamDay struct {
	stat   contracts.TeamGameStat
	line   contracts.StatLine
	games  []string
	source sourceRef
}

type renderTask struct {
	artifactType contracts.ArtifactType
	entityID     string
	render       func(context.Context) (degradable, error)
}

type renderOutcome struct {
	task     renderTask
	degraded bool
	err      error
}

// Build renders every artifact for one committed business date, then
// advances the serving index when coverage allows. Render failures skip
// the entity; the build only fails on infrastructure errors or when
// written coverage falls below the configured minimum, in which case
// the index is left untouched.
func (b *Builder) Build(ctx context.Context, businessDate contracts.Date) (BuildResult, error) {
	report := contracts.NewStageReport(contracts.StageGold, businessDate)
	var result BuildResult

	marker, err := b.readMarker(ctx, businessDate)
	if err != nil {
		metrics.RecordStageRun(string(contracts.StageGold), "error")
		return result, err
	}

	games, teams, players, err := b.loadDate(ctx, businessDate)
	if err != nil {
		metrics.RecordStageRun(string(contracts.StageGold), "error")
		return result, err
	}

	tasks := b.renderTasks(businessDate, games, teams, players)
	expected := len(tasks)

	workers := b.config.Workers
	if workers < 1 {
		workers = 1
	}
	b.logger.WithFields(map[string]interface{}{
		"business_date": string(businessDate),
		"games":         marker.GameCount,
		"artifacts":     expected,
		"workers":       workers,
	}).Info("Starting artifact build")

	taskCh := make(chan renderTask, len(tasks))
	resultCh := make(chan renderOutcome, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				resultCh <- b.renderOne(ctx, businessDate, task)
			}
		}()
	}

	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for out := range resultCh {
		if out.err != nil {
			b.logger.WithFields(map[string]interface{}{
				"artifact": string(out.task.artifactType),
				"entity":   out.task.entityID,
				"error":    out.err.Error(),
			}).Error("Artifact skipped")
			result.Skipped++
			continue
		}
		result.ArtifactsWritten++
		if out.degraded {
			result.Degraded++
		}
	}

	if expected > 0 {
		coverage := float64(result.ArtifactsWritten) / float64(expected)
		if coverage < b.config.MinCoverage {
			metrics.RecordStageRun(string(contracts.StageGold), "error")
			b.logger.WithFields(map[string]interface{}{
				"business_date": string(businessDate),
				"written":       result.ArtifactsWritten,
				"expected":      expected,
				"coverage":      coverage,
			}).Error("Artifact coverage below minimum, index untouched")
			return result, fmt.Errorf("artifact coverage %.2f below minimum %.2f", coverage, b.config.MinCoverage)
		}
	}

	advanced, err := b.advanceIndex(ctx, businessDate)
	if err != nil {
		metrics.RecordStageRun(string(contracts.StageGold), "error")
		return result, err
	}
	result.IndexAdvanced = advanced

	report.RecordsProcessed = result.ArtifactsWritten
	metrics.AddRecordsProcessed(string(contracts.StageGold), result.ArtifactsWritten)
	metrics.RecordStageRun(string(contracts.StageGold), "ok")
	metrics.ObserveStageDuration(string(contracts.StageGold), time.Since(report.StartedAt).Seconds())
	b.logger.WithFields(report.Fields()).Info("Stage complete")

	return result, nil
}

func (b *Builder) readMarker(ctx context.Context, date contracts.Date) (contracts.DailyReadyMarker, error) {
	var marker contracts.DailyReadyMarker

	obj, err := b.store.Get(ctx, contracts.MarkerKey(date))
	if errors.Is(err, blob.ErrNotFound) {
		return marker, fmt.Errorf("%w: %s", ErrDateNotCommitted, date)
	}
	if err != nil {
		return marker, fmt.Errorf("failed to read ready marker: %w", err)
	}
	if err := json.Unmarshal(obj.Body, &marker); err != nil {
		return marker, fmt.Errorf("ready marker for %s is corrupt: %w", date, err)
	}
	return marker, nil
}

func (b *Builder) loadDate(ctx context.Context, date contracts.Date) ([]gameRecord, []teamRecord, []playerRecord, error) {
	gameRecs, err := b.loadConformed(ctx, date, contracts.EntityGame)
	if err != nil {
		return nil, nil, nil, err
	}
	games := make([]gameRecord, 0, len(gameRecs))
	for _, rec := range gameRecs {
		var g contracts.Game
		if err := json.Unmarshal(rec.Entity, &g); err != nil {
			return nil, nil, nil, fmt.Errorf("conformed game %s is corrupt: %w", rec.NaturalKey, err)
		}
		games = append(games, gameRecord{game: g, source: sourceRef{rec.SourceRecordID, rec.SourceFetchAt}})
	}

	teamRecs, err := b.loadConformed(ctx, date, contracts.EntityTeamGameStat)
	if err != nil {
		return nil, nil, nil, err
	}
	teams := make([]teamRecord, 0, len(teamRecs))
	for _, rec := range teamRecs {
		var t contracts.TeamGameStat
		if err := json.Unmarshal(rec.Entity, &t); err != nil {
			return nil, nil, nil, fmt.Errorf("conformed team stat %s is corrupt: %w", rec.NaturalKey, err)
		}
		teams = append(teams, teamRecord{stat: t, source: sourceRef{rec.SourceRecordID, rec.SourceFetchAt}})
	}

	playerRecs, err := b.loadConformed(ctx, date, contracts.EntityPlayerGameStat)
	if err != nil {
		return nil, nil, nil, err
	}
	players := make([]playerRecord, 0, len(playerRecs))
	for _, rec := range playerRecs {
		var p contracts.PlayerGameStat
		if err := json.Unmarshal(rec.Entity, &p); err != nil {
			return nil, nil, nil, fmt.Errorf("conformed player stat %s is corrupt: %w", rec.NaturalKey, err)
		}
		players = append(players, playerRecord{stat: p, source: sourceRef{rec.SourceRecordID, rec.SourceFetchAt}})
	}

	return games, teams, players, nil
}

func (b *Builder) loadConformed(ctx context.Context, date contracts.Date, entityType contracts.EntityType) ([]contracts.ConformedRecord, error) {
	infos, err := b.store.List(ctx, contracts.SilverEntityPrefix(date, entityType))
	if err != nil {
		return nil, fmt.Errorf("failed to list conformed %s records: %w", entityType, err)
	}

	recs := make([]contracts.ConformedRecord, 0, len(infos))
	for _, info := range infos {
		obj, err := b.store.Get(ctx, info.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", info.Key, err)
		}
		var rec contracts.ConformedRecord
		if err := json.Unmarshal(obj.Body, &rec); err != nil {
			return nil, fmt.Errorf("conformed record %s is corrupt: %w", info.Key, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// renderTasks enumerates one task per expected artifact for the date.
func (b *Builder) renderTasks(date contracts.Date, games []gameRecord, teams []teamRecord, players []playerRecord) []renderTask {
	var tasks []renderTask

	for _, day := range groupPlayers(players) {
		day := day
		tasks = append(tasks, renderTask{
			artifactType: contracts.ArtifactPlayerDaily,
			entityID:     day.stat.PlayerID,
			render: func(ctx context.Context) (degradable, error) {
				return b.renderPlayerDaily(ctx, date, day)
			},
		})
	}

	for _, day := range groupTeams(teams) {
		day := day
		tasks = append(tasks, renderTask{
			artifactType: contracts.ArtifactTeamDaily,
			entityID:     day.stat.TeamID,
			render: func(ctx context.Context) (degradable, error) {
				return b.renderTeamDaily(ctx, date, day)
			},
		})
	}

	teamLines := make(map[string]contracts.TeamGameStat, len(teams))
	for _, t := range teams {
		teamLines[t.stat.NaturalKey()] = t.stat
	}
	for _, g := range games {
		g := g
		tasks = append(tasks, renderTask{
			artifactType: contracts.ArtifactGameSummary,
			entityID:     g.game.GameID,
			render: func(context.Context) (degradable, error) {
				return renderGameSummary(date, g, teamLines), nil
			},
		})
	}

	stats := make([]contracts.PlayerGameStat, 0, len(players))
	for _, p := range players {
		stats = append(stats, p.stat)
	}
	for _, metric := range topListMetrics {
		metric := metric
		tasks = append(tasks, renderTask{
			artifactType: contracts.ArtifactTopLists,
			entityID:     metric.name,
			render: func(context.Context) (degradable, error) {
				return buildTopList(date, metric.name, metric.value, stats, b.config.TopListSize), nil
			},
		})
	}

	return tasks
}

func (b *Builder) renderOne(ctx context.Context, date contracts.Date, task renderTask) renderOutcome {
	out := renderOutcome{task: task}

	art, err := task.render(ctx)
	if err != nil {
		out.err = err
		return out
	}
	body, degraded, err := renderBounded(art)
	if err != nil {
		out.err = err
		return out
	}

	key := contracts.ArtifactPath(task.artifactType, date, task.entityID)
	if _, err := b.store.Put(ctx, key, body); err != nil {
		out.err = fmt.Errorf("failed to write artifact: %w", err)
		return out
	}

	metrics.RecordArtifactRendered(string(task.artifactType))
	metrics.ObserveArtifactBytes(string(task.artifactType), len(body))
	if degraded {
		metrics.RecordArtifactDegraded(string(task.artifactType))
		b.logger.WithFields(map[string]interface{}{
			"artifact": string(task.artifactType),
			"entity":   task.entityID,
			"bytes":    len(body),
		}).Warn("Artifact degraded to meet size bound")
	}

	out.degraded = degraded
	return out
}

func (b *Builder) renderPlayerDaily(ctx context.Context, date contracts.Date, day playerDay) (degradable, error) {
	agg, err := b.advanceSnapshot(ctx, contracts.AggregatePlayer, day.stat.PlayerID, day.stat.PlayerName, day.stat.Season, date, day.line, len(day.games))
	if err != nil {
		return nil, err
	}
	return &playerDailyArtifact{
		SchemaVersion: contracts.ArtifactSchemaVersion,
		ArtifactType:  contracts.ArtifactPlayerDaily,
		Date:          date,
		PlayerID:      day.stat.PlayerID,
		PlayerName:    day.stat.PlayerName,
		Position:      day.stat.Position,
		TeamID:        day.stat.TeamID,
		GameIDs:       day.games,
		Starter:       day.stat.Starter,
		Line:          statBlockFrom(day.line),
		Shooting:      shootingFrom(day.line),
		Season: &seasonBlock{
			GamesPlayed: agg.GamesPlayed,
			Totals:      statBlockFrom(agg.Totals),
			Metrics:     agg.Metrics,
		},
		Lineage: &lineageBlock{
			SourceRecordID: day.source.recordID,
			SourceFetchAt:  day.source.fetchAt,
			GeneratedAt:    time.Now().UTC(),
		},
	}, nil
}

func (b *Builder) renderTeamDaily(ctx context.Context, date contracts.Date, day teamDay) (degradable, error) {
	agg, err := b.advanceSnapshot(ctx, contracts.AggregateTeam, day.stat.TeamID, day.stat.TeamName, day.stat.Season, date, day.line, len(day.games))
	if err != nil {
		return nil, err
	}
	return &teamDailyArtifact{
		SchemaVersion: contracts.ArtifactSchemaVersion,
		ArtifactType:  contracts.ArtifactTeamDaily,
		Date:          date,
		TeamID:        day.stat.TeamID,
		TeamName:      day.stat.TeamName,
		GameIDs:       day.games,
		Home:          day.stat.Home,
		Line:          statBlockFrom(day.line),
		Shooting:      shootingFrom(day.line),
		Season: &seasonBlock{
			GamesPlayed: agg.GamesPlayed,
			Totals:      statBlockFrom(agg.Totals),
			Metrics:     agg.Metrics,
		},
		Lineage: &lineageBlock{
			SourceRecordID: day.source.recordID,
			SourceFetchAt:  day.source.fetchAt,
			GeneratedAt:    time.Now().UTC(),
		},
	}, nil
}

func renderGameSummary(date contracts.Date, g gameRecord, teamLines map[string]contracts.TeamGameStat) degradable {
	return &gameSummaryArtifact{
		SchemaVersion: contracts.ArtifactSchemaVersion,
		ArtifactType:  contracts.ArtifactGameSummary,
		Date:          date,
		GameID:        g.game.GameID,
		Season:        g.game.Season,
		Status:        g.game.Status,
		Period:        g.game.Period,
		Arena:         g.game.Arena,
		Attendance:    g.game.Attendance,
		Home:          gameLineFor(g.game.GameID, g.game.HomeTeamID, g.game.HomeScore, teamLines),
		Away:          gameLineFor(g.game.GameID, g.game.AwayTeamID, g.game.AwayScore, teamLines),
		Lineage: &lineageBlock{
			SourceRecordID: g.source.recordID,
			SourceFetchAt:  g.source.fetchAt,
			GeneratedAt:    time.Now().UTC(),
		},
	}
}

// gameLineFor builds one side of a game summary. A quarantined team
// line leaves the side with the score only.
func gameLineFor(gameID, teamID string, score int, teamLines map[string]contracts.TeamGameStat) gameTeamLine {
	line := gameTeamLine{TeamID: teamID, Score: score}
	if stat, ok := teamLines[gameID+"_"+teamID]; ok {
		line.TeamName = stat.TeamName
		line.Line = statBlockFrom(stat.StatLine)
		line.Shooting = shootingFrom(stat.StatLine)
	}
	return line
}

func groupPlayers(players []playerRecord) []playerDay {
	byID := make(map[string]*playerDay, len(players))
	order := make([]string, 0, len(players))
	for _, p := range players {
		day, ok := byID[p.stat.PlayerID]
		if !ok {
			day = &playerDay{stat: p.stat, source: p.source}
			byID[p.stat.PlayerID] = day
			order = append(order, p.stat.PlayerID)
		}
		day.line = day.line.Add(p.stat.StatLine)
		day.games = append(day.games, p.stat.GameID)
	}

	out := make([]playerDay, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func groupTeams(teams []teamRecord) []teamDay {
	byID := make(map[string]*teamDay, len(teams))
	order := make([]string, 0, len(teams))
	for _, t := range teams {
		day, ok := byID[t.stat.TeamID]
		if !ok {
			day = &teamDay{stat: t.stat, source: t.source}
			byID[t.stat.TeamID] = day
			order = append(order, t.stat.TeamID)
		}
		day.line = day.line.Add(t.stat.StatLine)
		day.games = append(day.games, t.stat.GameID)
	}

	out := make([]teamDay, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

// advanceIndex moves served/index/latest.json forward to date, never
// backward. Concurrent builds race on the pointer; a lost CAS rereads
// and re-evaluates.
func (b *Builder) advanceIndex(ctx context.Context, date contracts.Date) (bool, error) {
	body, err := json.Marshal(contracts.LatestIndex{
		LatestDate:  date,
		GeneratedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal index: %w", err)
	}

	for attempt := 0; attempt < indexSwapAttempts; attempt++ {
		obj, err := b.store.Get(ctx, contracts.IndexPath)
		if errors.Is(err, blob.ErrNotFound) {
			_, err := b.store.PutIfAbsent(ctx, contracts.IndexPath, body)
			if errors.Is(err, blob.ErrPreconditionFailed) {
				continue
			}
			if err != nil {
				return false, fmt.Errorf("failed to write index: %w", err)
			}
			metrics.RecordIndexAdvanced()
			metrics.SetIndexLatestDate(date.Time())
			b.logger.WithFields(map[string]interface{}{
				"latest_date": string(date),
			}).Info("Serving index advanced")
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to read index: %w", err)
		}

		var current contracts.LatestIndex
		if err := json.Unmarshal(obj.Body, &current); err != nil {
			return false, fmt.Errorf("serving index is corrupt: %w", err)
		}
		if !date.After(current.LatestDate) {
			metrics.RecordIndexHeld()
			b.logger.WithFields(map[string]interface{}{
				"latest_date": string(current.LatestDate),
				"build_date":  string(date),
			}).Debug("Serving index already ahead")
			return false, nil
		}

		_, err = b.store.PutIfMatch(ctx, contracts.IndexPath, body, obj.ETag)
		if errors.Is(err, blob.ErrPreconditionFailed) || errors.Is(err, blob.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to advance index: %w", err)
		}
		metrics.RecordIndexAdvanced()
		metrics.SetIndexLatestDate(date.Time())
		b.logger.WithFields(map[string]interface{}{
			"latest_date": string(date),
		}).Info("Serving index advanced")
		return true, nil
	}

	return false, fmt.Errorf("serving index kept moving after %d attempts", indexSwapAttempts)
}
