package gold

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
)

// advanceSnapshot folds one day's contribution into the entity's
// season-to-date rollup and overwrites the snapshot for the date. The
// prior state is the newest snapshot strictly before the build date, so
// re-running a date always produces the same rollup instead of double
// counting.
func (b *Builder) advanceSnapshot(ctx context.Context, entity contracts.AggregateEntity, entityID, entityName string, season contracts.Season, date contracts.Date, day contracts.StatLine, games int) (*contracts.GoldAggregate, error) {
	prior, err := b.priorSnapshot(ctx, season, entity, entityID, date)
	if err != nil {
		return nil, err
	}

	agg := contracts.GoldAggregate{
		EntityID:    entityID,
		EntityName:  entityName,
		Entity:      entity,
		Season:      season,
		AsOfDate:    date,
		GamesPlayed: games,
		Totals:      day,
		ComputedAt:  time.Now().UTC(),
	}
	if prior != nil {
		agg.GamesPlayed += prior.GamesPlayed
		agg.Totals = prior.Totals.Add(day)
	}
	agg.Metrics = deriveMetrics(agg)

	body, err := json.Marshal(agg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	key := contracts.SeasonSnapshotKey(season, entity, entityID, date)
	if _, err := b.store.Put(ctx, key, body); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	return &agg, nil
}

// priorSnapshot returns the newest snapshot dated before the build
// date, or nil at the start of a season. Listing returns keys in
// ascending order and snapshot keys end in the as-of date, so the last
// qualifying key is the newest.
func (b *Builder) priorSnapshot(ctx context.Context, season contracts.Season, entity contracts.AggregateEntity, entityID string, before contracts.Date) (*contracts.GoldAggregate, error) {
	infos, err := b.store.List(ctx, contracts.SeasonSnapshotPrefix(season, entity, entityID))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var priorKey string
	for _, info := range infos {
		asOf, ok := snapshotDate(info.Key)
		if !ok || !asOf.Before(before) {
			continue
		}
		priorKey = info.Key
	}
	if priorKey == "" {
		return nil, nil
	}

	obj, err := b.store.Get(ctx, priorKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", priorKey, err)
	}
	var prior contracts.GoldAggregate
	if err := json.Unmarshal(obj.Body, &prior); err != nil {
		return nil, fmt.Errorf("snapshot %s is corrupt: %w", priorKey, err)
	}
	return &prior, nil
}

// snapshotDate extracts the as-of date from a snapshot key.
func snapshotDate(key string) (contracts.Date, bool) {
	stem := strings.TrimSuffix(path.Base(key), ".json")
	date, err := contracts.ParseDate(stem)
	if err != nil {
		return "", false
	}
	return date, true
}

// deriveMetrics computes the served per-game rates and shooting
// percentages from season totals.
func deriveMetrics(g contracts.GoldAggregate) contracts.MetricSet {
	return contracts.MetricSet{
		"points_per_game":    round4(g.PerGame(float64(g.Totals.Points))),
		"rebounds_per_game":  round4(g.PerGame(float64(g.Totals.Rebounds()))),
		"assists_per_game":   round4(g.PerGame(float64(g.Totals.Assists))),
		"steals_per_game":    round4(g.PerGame(float64(g.Totals.Steals))),
		"blocks_per_game":    round4(g.PerGame(float64(g.Totals.Blocks))),
		"turnovers_per_game": round4(g.PerGame(float64(g.Totals.Turnovers))),
		"minutes_per_game":   round4(g.PerGame(g.Totals.Minutes)),
		"field_goal_pct":     rate(g.Totals.FieldGoalsMade, g.Totals.FieldGoalsAtt),
		"three_point_pct":    rate(g.Totals.ThreePointersMade, g.Totals.ThreePointersAtt),
		"free_throw_pct":     rate(g.Totals.FreeThrowsMade, g.Totals.FreeThrowsAtt),
	}
}

// rate is made/attempted rounded to four places, 0 when unattempted.
func rate(made, att int) float64 {
	if att == 0 {
		return 0
	}
	return round4(float64(made) / float64(att))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
