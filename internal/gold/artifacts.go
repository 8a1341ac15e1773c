package gold

import (
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/contracts"
)

// statBlock is the core counting line served in every artifact. It never
// gets dropped by the size bound.
type statBlock struct {
	Minutes   float64 `json:"minutes"`
	Points    int     `json:"points"`
	Rebounds  int     `json:"rebounds"`
	Assists   int     `json:"assists"`
	Steals    int     `json:"steals"`
	Blocks    int     `json:"blocks"`
	Turnovers int     `json:"turnovers"`
	Fouls     int     `json:"fouls"`
	PlusMinus int     `json:"plus_minus"`
}

func statBlockFrom(s contracts.StatLine) statBlock {
	return statBlock{
		Minutes:   s.Minutes,
		Points:    s.Points,
		Rebounds:  s.Rebounds(),
		Assists:   s.Assists,
		Steals:    s.Steals,
		Blocks:    s.Blocks,
		Turnovers: s.Turnovers,
		Fouls:     s.PersonalFouls,
		PlusMinus: s.PlusMinus,
	}
}

// shootingSplits is the extended made/attempted detail.
type shootingSplits struct {
	FieldGoalsMade    int     `json:"field_goals_made"`
	FieldGoalsAtt     int     `json:"field_goals_att"`
	ThreePointersMade int     `json:"three_pointers_made"`
	ThreePointersAtt  int     `json:"three_pointers_att"`
	FreeThrowsMade    int     `json:"free_throws_made"`
	FreeThrowsAtt     int     `json:"free_throws_att"`
	FieldGoalPct      float64 `json:"field_goal_pct"`
	ThreePointPct     float64 `json:"three_point_pct"`
	FreeThrowPct      float64 `json:"free_throw_pct"`
}

func shootingFrom(s contracts.StatLine) *shootingSplits {
	return &shootingSplits{
		FieldGoalsMade:    s.FieldGoalsMade,
		FieldGoalsAtt:     s.FieldGoalsAtt,
		ThreePointersMade: s.ThreePointersMade,
		ThreePointersAtt:  s.ThreePointersAtt,
		FreeThrowsMade:    s.FreeThrowsMade,
		FreeThrowsAtt:     s.FreeThrowsAtt,
		FieldGoalPct:      rate(s.FieldGoalsMade, s.FieldGoalsAtt),
		ThreePointPct:     rate(s.ThreePointersMade, s.ThreePointersAtt),
		FreeThrowPct:      rate(s.FreeThrowsMade, s.FreeThrowsAtt),
	}
}

// seasonBlock summarizes the season to date inside a daily artifact.
type seasonBlock struct {
	GamesPlayed int                 `json:"games_played"`
	Totals      statBlock           `json:"totals"`
	Metrics     contracts.MetricSet `json:"metrics,omitempty"`
}

// lineageBlock points back at the conformed source of an artifact.
type lineageBlock struct {
	SourceRecordID string    `json:"source_record_id"`
	SourceFetchAt  time.Time `json:"source_fetch_at"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// degradable artifacts shed optional sections one at a time until the
// body fits the size bound. dropNext reports false once only the
// required core remains.
type degradable interface {
	dropNext() bool
}

// renderBounded marshals the artifact, dropping optional sections until
// the body fits MaxArtifactBytes. The bool reports whether anything was
// dropped. When even the required core exceeds the bound the artifact
// fails.
func renderBounded(v degradable) ([]byte, bool, error) {
	degraded := false
	for {
		body, err := json.Marshal(v)
		if err != nil {
			return nil, degraded, fmt.Errorf("failed to marshal artifact: %w", err)
		}
		if len(body) <= contracts.MaxArtifactBytes {
			return body, degraded, nil
		}
		if !v.dropNext() {
			return nil, degraded, fmt.Errorf("artifact core is %d bytes, exceeds the %d byte bound", len(body), contracts.MaxArtifactBytes)
		}
		degraded = true
	}
}

type playerDailyArtifact struct {
	SchemaVersion int                    `json:"schema_version"`
	ArtifactType  contracts.ArtifactType `json:"artifact_type"`
	Date          contracts.Date         `json:"date"`
	PlayerID      string                 `json:"player_id"`
	PlayerName    string                 `json:"player_name"`
	Position      string                 `json:"position,omitempty"`
	TeamID        string                 `json:"team_id"`
	GameIDs       []string               `json:"game_ids"`
	Starter       bool                   `json:"starter"`
	Line          statBlock              `json:"line"`
	Shooting      *shootingSplits        `json:"shooting,omitempty"`
	Season        *seasonBlock           `json:"season,omitempty"`
	Lineage       *lineageBlock          `json:"lineage,omitempty"`
}

func (a *playerDailyArtifact) dropNext() bool {
	switch {
	case a.Lineage != nil:
		a.Lineage = nil
	case a.Shooting != nil:
		a.Shooting = nil
	case a.Season != nil && len(a.Season.Metrics) > 0:
		a.Season.Metrics = nil
	default:
		return false
	}
	return true
}

type teamDailyArtifact struct {
	SchemaVersion int                    `json:"schema_version"`
	ArtifactType  contracts.ArtifactType `json:"artifact_type"`
	Date          contracts.Date         `json:"date"`
	TeamID        string                 `json:"team_id"`
	TeamName      string                 `json:"team_name"`
	GameIDs       []string               `json:"game_ids"`
	Home          bool                   `json:"home"`
	Line          statBlock              `json:"line"`
	Shooting      *shootingSplits        `json:"shooting,omitempty"`
	Season        *seasonBlock           `json:"season,omitempty"`
	Lineage       *lineageBlock          `json:"lineage,omitempty"`
}

func (a *teamDailyArtifact) dropNext() bool {
	switch {
	case a.Lineage != nil:
		a.Lineage = nil
	case a.Shooting != nil:
		a.Shooting = nil
	case a.Season != nil && len(a.Season.Metrics) > 0:
		a.Season.Metrics = nil
	default:
		return false
	}
	return true
}

type gameTeamLine struct {
	TeamID   string          `json:"team_id"`
	TeamName string          `json:"team_name"`
	Score    int             `json:"score"`
	Line     statBlock       `json:"line"`
	Shooting *shootingSplits `json:"shooting,omitempty"`
}

type gameSummaryArtifact struct {
	SchemaVersion int                    `json:"schema_version"`
	ArtifactType  contracts.ArtifactType `json:"artifact_type"`
	Date          contracts.Date         `json:"date"`
	GameID        string                 `json:"game_id"`
	Season        contracts.Season       `json:"season"`
	Status        contracts.GameStatus   `json:"status"`
	Period        int                    `json:"period"`
	Arena         string                 `json:"arena,omitempty"`
	Attendance    int                    `json:"attendance,omitempty"`
	Home          gameTeamLine           `json:"home"`
	Away          gameTeamLine           `json:"away"`
	Lineage       *lineageBlock          `json:"lineage,omitempty"`
}

func (a *gameSummaryArtifact) dropNext() bool {
	switch {
	case a.Lineage != nil:
		a.Lineage = nil
	case a.Home.Shooting != nil || a.Away.Shooting != nil:
		a.Home.Shooting = nil
		a.Away.Shooting = nil
	default:
		return false
	}
	return true
}

type topListEntry struct {
	Rank     int     `json:"rank"`
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	TeamID   string  `json:"team_id,omitempty"`
	GameID   string  `json:"game_id,omitempty"`
	Value    float64 `json:"value"`
}

type topListsArtifact struct {
	SchemaVersion int                    `json:"schema_version"`
	ArtifactType  contracts.ArtifactType `json:"artifact_type"`
	Date          contracts.Date         `json:"date"`
	Metric        string                 `json:"metric"`
	Entries       []topListEntry         `json:"entries"`
}

func (a *topListsArtifact) dropNext() bool { return false }

// topListMetrics names the served leaderboards. The metric name is the
// artifact's entity id in the key scheme.
var topListMetrics = []struct {
	name  string
	value func(contracts.PlayerGameStat) float64
}{
	{"points", func(p contracts.PlayerGameStat) float64 { return float64(p.Points) }},
	{"rebounds", func(p contracts.PlayerGameStat) float64 { return float64(p.Rebounds()) }},
	{"assists", func(p contracts.PlayerGameStat) float64 { return float64(p.Assists) }},
	{"steals", func(p contracts.PlayerGameStat) float64 { return float64(p.Steals) }},
	{"blocks", func(p contracts.PlayerGameStat) float64 { return float64(p.Blocks) }},
	{"three_pointers_made", func(p contracts.PlayerGameStat) float64 { return float64(p.ThreePointersMade) }},
}

// buildTopList ranks the day's player lines by one metric: value
// descending, ties broken by entity id ascending, truncated to size.
func buildTopList(date contracts.Date, metric string, value func(contracts.PlayerGameStat) float64, players []contracts.PlayerGameStat, size int) *topListsArtifact {
	entries := make([]topListEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, topListEntry{
			EntityID: p.PlayerID,
			Name:     p.PlayerName,
			TeamID:   p.TeamID,
			GameID:   p.GameID,
			Value:    value(p),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].EntityID < entries[j].EntityID
	})
	if size > 0 && len(entries) > size {
		entries = entries[:size]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return &topListsArtifact{
		SchemaVersion: contracts.ArtifactSchemaVersion,
		ArtifactType:  contracts.ArtifactTopLists,
		Date:          date,
		Metric:        metric,
		Entries:       entries,
	}
}
