package refdata

import (
	"context"
	"fmt"

	"github.com/courtdata/fastbreak/internal/external/nbastats"
	"github.com/courtdata/fastbreak/pkg/logger"
)

// ScheduleFeed fetches the league schedule from the upstream feed.
type ScheduleFeed interface {
	SeasonSchedule(ctx context.Context) ([]nbastats.ScheduleGame, error)
}

// ScheduleWriter is the store side the syncer writes through.
type ScheduleWriter interface {
	UpsertGames(ctx context.Context, games []ScheduledGame) (int, error)
}

// Syncer refreshes the schedule reference tables from the feed.
type Syncer struct {
	feed   ScheduleFeed
	store  ScheduleWriter
	logger *logger.Logger
}

// NewSyncer creates a schedule syncer.
func NewSyncer(feed ScheduleFeed, store ScheduleWriter, log *logger.Logger) *Syncer {
	return &Syncer{
		feed:   feed,
		store:  store,
		logger: log,
	}
}

// SyncSeason fetches the full league schedule and upserts every game.
// Games already present keep their row and take the feed's latest
// date and status.
func (s *Syncer) SyncSeason(ctx context.Context) (int, error) {
	feedGames, err := s.feed.SeasonSchedule(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch season schedule: %w", err)
	}

	games := make([]ScheduledGame, 0, len(feedGames))
	for _, fg := range feedGames {
		games = append(games, ScheduledGame{
			GameID:       fg.GameID,
			BusinessDate: fg.BusinessDate,
			Season:       fg.Season,
			HomeTeamID:   fg.HomeTeamID,
			AwayTeamID:   fg.AwayTeamID,
			Status:       fg.Status,
		})
	}

	written, err := s.store.UpsertGames(ctx, games)
	if err != nil {
		return 0, fmt.Errorf("failed to store schedule: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"fetched": len(feedGames),
		"written": written,
	}).Info("Season schedule synced")

	return written, nil
}
