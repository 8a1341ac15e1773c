package nbastats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/contracts"
)

// BoxScore fetches the raw box score payload for one game.
func (c *Client) BoxScore(ctx context.Context, gameID string) (json.RawMessage, error) {
	body, err := c.fetch(ctx, contracts.ResourceBoxScore, gameID, c.boxScoreURL(gameID))
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"game_id": gameID,
		"bytes":   len(body),
	}).Debug("Fetched box score")

	return body, nil
}

// BoxScoreData is a fully parsed box score: the game row plus both team
// totals and every player line, ready for conformance validation.
type BoxScoreData struct {
	Game    contracts.Game
	Teams   []contracts.TeamGameStat
	Players []contracts.PlayerGameStat
}

// Feed wire shapes. Field names follow the CDN payload exactly; note
// starter flags arrive as "1"/"0" strings and minutes as an ISO-8601
// duration like "PT36M45.00S".
type boxScoreResponse struct {
	Game struct {
		GameID      string `json:"gameId"`
		GameStatus  int    `json:"gameStatus"`
		GameTimeUTC string `json:"gameTimeUTC"`
		Period      int    `json:"period"`
		Attendance  int    `json:"attendance"`
		Arena       struct {
			ArenaName string `json:"arenaName"`
		} `json:"arena"`
		HomeTeam wireTeam `json:"homeTeam"`
		AwayTeam wireTeam `json:"awayTeam"`
	} `json:"game"`
}

type wireTeam struct {
	TeamID      int64        `json:"teamId"`
	TeamName    string       `json:"teamName"`
	TeamCity    string       `json:"teamCity"`
	TeamTricode string       `json:"teamTricode"`
	Score       int          `json:"score"`
	Statistics  wireStats    `json:"statistics"`
	Players     []wirePlayer `json:"players"`
}

type wirePlayer struct {
	PersonID   int64     `json:"personId"`
	Name       string    `json:"name"`
	Position   string    `json:"position"`
	Starter    string    `json:"starter"`
	Statistics wireStats `json:"statistics"`
}

type wireStats struct {
	Minutes                string  `json:"minutes"`
	Points                 int     `json:"points"`
	Assists                int     `json:"assists"`
	Steals                 int     `json:"steals"`
	Blocks                 int     `json:"blocks"`
	Turnovers              int     `json:"turnovers"`
	FoulsPersonal          int     `json:"foulsPersonal"`
	ReboundsOffensive      int     `json:"reboundsOffensive"`
	ReboundsDefensive      int     `json:"reboundsDefensive"`
	FieldGoalsMade         int     `json:"fieldGoalsMade"`
	FieldGoalsAttempted    int     `json:"fieldGoalsAttempted"`
	ThreePointersMade      int     `json:"threePointersMade"`
	ThreePointersAttempted int     `json:"threePointersAttempted"`
	FreeThrowsMade         int     `json:"freeThrowsMade"`
	FreeThrowsAttempted    int     `json:"freeThrowsAttempted"`
	PlusMinusPoints        float64 `json:"plusMinusPoints"`
}

// ParseBoxScore turns a raw box score payload into typed entities. The
// business date is the UTC calendar day of the game's tip-off time.
func ParseBoxScore(body []byte) (*BoxScoreData, error) {
	var resp boxScoreResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse box score: %w", err)
	}

	g := resp.Game
	if g.GameID == "" {
		return nil, fmt.Errorf("box score has no gameId")
	}

	tipOff, err := time.Parse(time.RFC3339, g.GameTimeUTC)
	if err != nil {
		return nil, fmt.Errorf("parse gameTimeUTC %q: %w", g.GameTimeUTC, err)
	}
	businessDate := contracts.NewDate(tipOff)
	season := contracts.SeasonOf(businessDate)

	homeID := strconv.FormatInt(g.HomeTeam.TeamID, 10)
	awayID := strconv.FormatInt(g.AwayTeam.TeamID, 10)

	data := &BoxScoreData{
		Game: contracts.Game{
			GameID:       g.GameID,
			BusinessDate: businessDate,
			Season:       season,
			Status:       StatusFromCode(g.GameStatus),
			HomeTeamID:   homeID,
			AwayTeamID:   awayID,
			HomeScore:    g.HomeTeam.Score,
			AwayScore:    g.AwayTeam.Score,
			Period:       g.Period,
			Arena:        g.Arena.ArenaName,
			Attendance:   g.Attendance,
		},
	}

	for _, side := range []struct {
		team wireTeam
		home bool
	}{
		{g.HomeTeam, true},
		{g.AwayTeam, false},
	} {
		teamID := strconv.FormatInt(side.team.TeamID, 10)

		data.Teams = append(data.Teams, contracts.TeamGameStat{
			GameID:       g.GameID,
			TeamID:       teamID,
			TeamName:     teamDisplayName(side.team),
			Home:         side.home,
			BusinessDate: businessDate,
			Season:       season,
			StatLine:     statLineFromWire(side.team.Statistics),
		})

		for _, p := range side.team.Players {
			if p.PersonID == 0 {
				continue
			}
			data.Players = append(data.Players, contracts.PlayerGameStat{
				GameID:       g.GameID,
				PlayerID:     strconv.FormatInt(p.PersonID, 10),
				TeamID:       teamID,
				PlayerName:   p.Name,
				Position:     p.Position,
				Starter:      p.Starter == "1",
				BusinessDate: businessDate,
				Season:       season,
				StatLine:     statLineFromWire(p.Statistics),
			})
		}
	}

	return data, nil
}

func teamDisplayName(t wireTeam) string {
	if t.TeamCity != "" && t.TeamName != "" {
		return t.TeamCity + " " + t.TeamName
	}
	if t.TeamName != "" {
		return t.TeamName
	}
	return t.TeamTricode
}

func statLineFromWire(s wireStats) contracts.StatLine {
	return contracts.StatLine{
		Minutes:           ParseClockMinutes(s.Minutes),
		Points:            s.Points,
		Assists:           s.Assists,
		Steals:            s.Steals,
		Blocks:            s.Blocks,
		Turnovers:         s.Turnovers,
		PersonalFouls:     s.FoulsPersonal,
		ReboundsOff:       s.ReboundsOffensive,
		ReboundsDef:       s.ReboundsDefensive,
		FieldGoalsMade:    s.FieldGoalsMade,
		FieldGoalsAtt:     s.FieldGoalsAttempted,
		ThreePointersMade: s.ThreePointersMade,
		ThreePointersAtt:  s.ThreePointersAttempted,
		FreeThrowsMade:    s.FreeThrowsMade,
		FreeThrowsAtt:     s.FreeThrowsAttempted,
		PlusMinus:         int(s.PlusMinusPoints),
	}
}

// ParseClockMinutes converts the feed's ISO-8601 playing time, e.g.
// "PT36M45.00S", into decimal minutes. Empty or unreadable values read
// as zero; a bench player who never checked in has no playing time.
func ParseClockMinutes(clock string) float64 {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return 0
	}

	rest, ok := strings.CutPrefix(clock, "PT")
	if !ok {
		return 0
	}

	var minutes float64
	if i := strings.IndexByte(rest, 'M'); i >= 0 {
		m, err := strconv.ParseFloat(rest[:i], 64)
		if err != nil {
			return 0
		}
		minutes = m
		rest = rest[i+1:]
	}

	if i := strings.IndexByte(rest, 'S'); i >= 0 {
		s, err := strconv.ParseFloat(rest[:i], 64)
		if err != nil {
			return minutes
		}
		minutes += s / 60
	}

	return minutes
}
