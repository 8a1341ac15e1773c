package nbastats

import (
	"context"
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/contracts"
)

// TeamRoster fetches the raw roster payload for one team.
func (c *Client) TeamRoster(ctx context.Context, teamID string) (json.RawMessage, error) {
	body, err := c.fetch(ctx, contracts.ResourceRoster, teamID, c.rosterURL(teamID))
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"team_id": teamID,
		"bytes":   len(body),
	}).Debug("Fetched team roster")

	return body, nil
}

type rosterResponse struct {
	TeamID int64  `json:"teamId"`
	Season string `json:"season"`
	Roster []struct {
		PersonID  int64  `json:"personId"`
		Name      string `json:"name"`
		Position  string `json:"position"`
		JerseyNum string `json:"jerseyNum"`
	} `json:"roster"`
}

// ParseRoster turns a raw roster payload into entries effective on
// businessDate. Members without a person id are dropped.
func ParseRoster(body []byte, businessDate contracts.Date) ([]contracts.RosterEntry, error) {
	var resp rosterResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if resp.TeamID == 0 {
		return nil, fmt.Errorf("roster has no teamId")
	}

	teamID := strconv.FormatInt(resp.TeamID, 10)
	season := contracts.SeasonOf(businessDate)

	entries := make([]contracts.RosterEntry, 0, len(resp.Roster))
	for _, m := range resp.Roster {
		if m.PersonID == 0 {
			continue
		}
		entries = append(entries, contracts.RosterEntry{
			TeamID:       teamID,
			PlayerID:     strconv.FormatInt(m.PersonID, 10),
			PlayerName:   m.Name,
			Position:     m.Position,
			JerseyNumber: m.JerseyNum,
			BusinessDate: businessDate,
			Season:       season,
		})
	}
	return entries, nil
}
