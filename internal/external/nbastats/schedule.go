package nbastats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/contracts"
)

// resourceSchedule labels schedule fetches in errors and metrics. The
// schedule feeds the reference store directly and never lands in bronze,
// so it stays out of the bronze resource enum.
const resourceSchedule contracts.RawResource = "schedule"

// ScheduleGame is one game from the league schedule feed.
type ScheduleGame struct {
	GameID       string
	BusinessDate contracts.Date
	Season       contracts.Season
	HomeTeamID   string
	AwayTeamID   string
	Status       contracts.GameStatus
}

// SeasonSchedule fetches and parses the full league schedule.
func (c *Client) SeasonSchedule(ctx context.Context) ([]ScheduleGame, error) {
	body, err := c.fetch(ctx, resourceSchedule, "league", c.scheduleURL())
	if err != nil {
		return nil, err
	}

	games, err := ParseSchedule(body)
	if err != nil {
		return nil, &FetchError{
			Kind:     KindPermanentlyInvalid,
			Resource: resourceSchedule,
			SourceID: "league",
			Body:     body,
			Err:      err,
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"games": len(games),
	}).Debug("Fetched league schedule")

	return games, nil
}

type scheduleResponse struct {
	LeagueSchedule struct {
		SeasonYear string `json:"seasonYear"`
		GameDates  []struct {
			GameDate string `json:"gameDate"`
			Games    []struct {
				GameID          string `json:"gameId"`
				GameStatus      int    `json:"gameStatus"`
				GameDateTimeUTC string `json:"gameDateTimeUTC"`
				HomeTeam        struct {
					TeamID int64 `json:"teamId"`
				} `json:"homeTeam"`
				AwayTeam struct {
					TeamID int64 `json:"teamId"`
				} `json:"awayTeam"`
			} `json:"games"`
		} `json:"gameDates"`
	} `json:"leagueSchedule"`
}

// ParseSchedule extracts every dated game from a raw schedule payload.
// Games without an id or a parseable UTC timestamp are dropped.
func ParseSchedule(body []byte) ([]ScheduleGame, error) {
	var resp scheduleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}

	var games []ScheduleGame
	for _, gd := range resp.LeagueSchedule.GameDates {
		for _, g := range gd.Games {
			if g.GameID == "" {
				continue
			}
			tipOff, err := time.Parse(time.RFC3339, g.GameDateTimeUTC)
			if err != nil {
				continue
			}
			businessDate := contracts.NewDate(tipOff)
			games = append(games, ScheduleGame{
				GameID:       g.GameID,
				BusinessDate: businessDate,
				Season:       contracts.SeasonOf(businessDate),
				HomeTeamID:   strconv.FormatInt(g.HomeTeam.TeamID, 10),
				AwayTeamID:   strconv.FormatInt(g.AwayTeam.TeamID, 10),
				Status:       StatusFromCode(g.GameStatus),
			})
		}
	}
	return games, nil
}
