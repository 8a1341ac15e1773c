// Package refdata holds the schedule reference store. The conformance
// completeness gate needs to know how many games were expected on a
// date; that answer comes from here, never from the feed at run time.
package refdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courtdata/fastbreak/internal/contracts"
)

// ScheduleSource answers how many games were scheduled for a date.
// Implemented by Store; stubbed in pipeline tests.
type ScheduleSource interface {
	ExpectedGames(ctx context.Context, date contracts.Date) (int, error)
}

// ScheduledGame is one row of the schedule reference table.
type ScheduledGame struct {
	GameID       string
	BusinessDate contracts.Date
	Season       contracts.Season
	HomeTeamID   string
	AwayTeamID   string
	Status       contracts.GameStatus
}

// Store reads and writes the schedule reference tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a schedule store on pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the reference schema and tables when missing.
// Safe to run on every start of the sync job.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE SCHEMA IF NOT EXISTS ref`,
		`CREATE TABLE IF NOT EXISTS ref.schedule_games (
			game_id       TEXT PRIMARY KEY,
			business_date DATE NOT NULL,
			season        TEXT NOT NULL,
			home_team_id  TEXT NOT NULL,
			away_team_id  TEXT NOT NULL,
			status        TEXT NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS schedule_games_business_date_idx
			ON ref.schedule_games (business_date)`,
	}

	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// ExpectedGames counts the games scheduled for a business date.
func (s *Store) ExpectedGames(ctx context.Context, date contracts.Date) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM ref.schedule_games
		WHERE business_date = $1
	`

	var count int
	if err := s.pool.QueryRow(ctx, query, date.Time()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scheduled games: %w", err)
	}
	return count, nil
}

// GamesOn lists the games scheduled for a business date.
func (s *Store) GamesOn(ctx context.Context, date contracts.Date) ([]ScheduledGame, error) {
	query := `
		SELECT game_id, business_date, season, home_team_id, away_team_id, status
		FROM ref.schedule_games
		WHERE business_date = $1
		ORDER BY game_id
	`

	rows, err := s.pool.Query(ctx, query, date.Time())
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled games: %w", err)
	}
	defer rows.Close()

	var games []ScheduledGame
	for rows.Next() {
		var (
			g            ScheduledGame
			businessDate time.Time
			season       string
			status       string
		)
		if err := rows.Scan(&g.GameID, &businessDate, &season, &g.HomeTeamID, &g.AwayTeamID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		g.BusinessDate = contracts.NewDate(businessDate)
		g.Season = contracts.Season(season)
		g.Status = contracts.GameStatus(status)
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return games, nil
}

// UpsertGames writes the batch in one transaction, replacing rows that
// already exist. Returns the number of rows written.
func (s *Store) UpsertGames(ctx context.Context, games []ScheduledGame) (int, error) {
	if len(games) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO ref.schedule_games (
			game_id, business_date, season, home_team_id, away_team_id, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id) DO UPDATE SET
			business_date = EXCLUDED.business_date,
			season = EXCLUDED.season,
			home_team_id = EXCLUDED.home_team_id,
			away_team_id = EXCLUDED.away_team_id,
			status = EXCLUDED.status,
			updated_at = NOW()
	`

	written := 0
	for _, g := range games {
		if g.GameID == "" {
			continue
		}
		if _, err := tx.Exec(ctx, query,
			g.GameID, g.BusinessDate.Time(), string(g.Season),
			g.HomeTeamID, g.AwayTeamID, string(g.Status),
		); err != nil {
			return 0, fmt.Errorf("failed to upsert game %s: %w", g.GameID, err)
		}
		written++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return written, nil
}
