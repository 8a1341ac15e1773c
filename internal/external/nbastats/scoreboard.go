package nbastats

import (
	"context"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/contracts"
)

// GameHeader is the slice of a scoreboard the ingest orchestration
// needs: which games exist on the date and who plays in them.
type GameHeader struct {
	GameID     string
	Status     contracts.GameStatus
	HomeTeamID string
	AwayTeamID string
}

// Scoreboard is one day's game list. Body is the untouched payload for
// the bronze layer; Games is the parsed view for orchestration.
type Scoreboard struct {
	Date  contracts.Date
	Body  json.RawMessage
	Games []GameHeader
}

// Scoreboard fetches the game list for a date.
func (c *Client) Scoreboard(ctx context.Context, date contracts.Date) (*Scoreboard, error) {
	body, err := c.fetch(ctx, contracts.ResourceScoreboard, string(date), c.scoreboardURL(date))
	if err != nil {
		return nil, err
	}

	games, err := ParseScoreboard(body)
	if err != nil {
		return nil, &FetchError{
			Kind:     KindPermanentlyInvalid,
			Resource: contracts.ResourceScoreboard,
			SourceID: string(date),
			Body:     body,
			Err:      err,
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"business_date": string(date),
		"games":         len(games),
	}).Debug("Fetched scoreboard")

	return &Scoreboard{Date: date, Body: body, Games: games}, nil
}

// Feed wire shape. Field names follow the CDN payload exactly.
type scoreboardResponse struct {
	Scoreboard struct {
		GameDate string `json:"gameDate"`
		Games    []struct {
			GameID     string `json:"gameId"`
			GameStatus int    `json:"gameStatus"`
			HomeTeam   struct {
				TeamID int64 `json:"teamId"`
			} `json:"homeTeam"`
			AwayTeam struct {
				TeamID int64 `json:"teamId"`
			} `json:"awayTeam"`
		} `json:"games"`
	} `json:"scoreboard"`
}

// ParseScoreboard extracts game headers from a raw scoreboard payload.
func ParseScoreboard(body []byte) ([]GameHeader, error) {
	var resp scoreboardResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse scoreboard: %w", err)
	}

	headers := make([]GameHeader, 0, len(resp.Scoreboard.Games))
	for _, g := range resp.Scoreboard.Games {
		if g.GameID == "" {
			continue
		}
		headers = append(headers, GameHeader{
			GameID:     g.GameID,
			Status:     StatusFromCode(g.GameStatus),
			HomeTeamID: strconv.FormatInt(g.HomeTeam.TeamID, 10),
			AwayTeamID: strconv.FormatInt(g.AwayTeam.TeamID, 10),
		})
	}
	return headers, nil
}

// StatusFromCode maps the feed's numeric gameStatus: 1 scheduled,
// 2 in progress, 3 final. Unknown codes read as scheduled.
func StatusFromCode(code int) contracts.GameStatus {
	switch code {
	case 2:
		return contracts.GameInProgress
	case 3:
		return contracts.GameFinal
	default:
		return contracts.GameScheduled
	}
}
