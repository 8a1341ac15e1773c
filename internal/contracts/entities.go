package contracts

// EntityType names a conformed record shape in the silver layer.
type EntityType string

const (
	EntityGame           EntityType = "game"
	EntityPlayerGameStat EntityType = "player_game_stat"
	EntityTeamGameStat   EntityType = "team_game_stat"
	EntityRosterEntry    EntityType = "roster_entry"
)

// AllEntityTypes returns the conformed entity types.
func AllEntityTypes() []EntityType {
	return []EntityType{EntityGame, EntityPlayerGameStat, EntityTeamGameStat, EntityRosterEntry}
}

// IsValidEntityType checks whether t names a known entity type.
func IsValidEntityType(t EntityType) bool {
	switch t {
	case EntityGame, EntityPlayerGameStat, EntityTeamGameStat, EntityRosterEntry:
		return true
	}
	return false
}

func (t EntityType) String() string {
	return string(t)
}

// Entity is implemented by every conformed entity shape. The natural key
// identifies one real-world fact and stays stable across re-fetches, so
// repeated runs overwrite rather than duplicate.
type Entity interface {
	EntityType() EntityType
	NaturalKey() string
}

// GameStatus tracks the lifecycle of a game on its business date.
type GameStatus string

const (
	GameScheduled  GameStatus = "scheduled"
	GameInProgress GameStatus = "in_progress"
	GameFinal      GameStatus = "final"
)

// Game is one scheduled or played game.
type Game struct {
	GameID       string     `json:"game_id" validate:"required"`
	BusinessDate Date       `json:"business_date" validate:"required"`
	Season       Season     `json:"season" validate:"required"`
	Status       GameStatus `json:"status" validate:"required,oneof=scheduled in_progress final"`
	HomeTeamID   string     `json:"home_team_id" validate:"required"`
	AwayTeamID   string     `json:"away_team_id" validate:"required,nefield=HomeTeamID"`
	HomeScore    int        `json:"home_score" validate:"gte=0"`
	AwayScore    int        `json:"away_score" validate:"gte=0"`
	Period       int        `json:"period" validate:"gte=0"`
	Arena        string     `json:"arena,omitempty"`
	Attendance   int        `json:"attendance,omitempty" validate:"gte=0"`
}

func (g Game) EntityType() EntityType { return EntityGame }
func (g Game) NaturalKey() string     { return g.GameID }

// StatLine is the box-score counting block shared by player and team
// records. Shooting splits carry made and attempted separately; derived
// percentages are computed at the gold layer, never stored here.
type StatLine struct {
	Minutes           float64 `json:"minutes" validate:"gte=0"`
	Points            int     `json:"points" validate:"gte=0"`
	Assists           int     `json:"assists" validate:"gte=0"`
	Steals            int     `json:"steals" validate:"gte=0"`
	Blocks            int     `json:"blocks" validate:"gte=0"`
	Turnovers         int     `json:"turnovers" validate:"gte=0"`
	PersonalFouls     int     `json:"personal_fouls" validate:"gte=0"`
	ReboundsOff       int     `json:"rebounds_off" validate:"gte=0"`
	ReboundsDef       int     `json:"rebounds_def" validate:"gte=0"`
	FieldGoalsMade    int     `json:"field_goals_made" validate:"gte=0,ltefield=FieldGoalsAtt"`
	FieldGoalsAtt     int     `json:"field_goals_att" validate:"gte=0"`
	ThreePointersMade int     `json:"three_pointers_made" validate:"gte=0,ltefield=ThreePointersAtt"`
	ThreePointersAtt  int     `json:"three_pointers_att" validate:"gte=0"`
	FreeThrowsMade    int     `json:"free_throws_made" validate:"gte=0,ltefield=FreeThrowsAtt"`
	FreeThrowsAtt     int     `json:"free_throws_att" validate:"gte=0"`
	PlusMinus         int     `json:"plus_minus"`
}

// Rebounds returns the combined rebound count.
func (s StatLine) Rebounds() int {
	return s.ReboundsOff + s.ReboundsDef
}

// Add accumulates other into s and returns the sum.
func (s StatLine) Add(other StatLine) StatLine {
	s.Minutes += other.Minutes
	s.Points += other.Points
	s.Assists += other.Assists
	s.Steals += other.Steals
	s.Blocks += other.Blocks
	s.Turnovers += other.Turnovers
	s.PersonalFouls += other.PersonalFouls
	s.ReboundsOff += other.ReboundsOff
	s.ReboundsDef += other.ReboundsDef
	s.FieldGoalsMade += other.FieldGoalsMade
	s.FieldGoalsAtt += other.FieldGoalsAtt
	s.ThreePointersMade += other.ThreePointersMade
	s.ThreePointersAtt += other.ThreePointersAtt
	s.FreeThrowsMade += other.FreeThrowsMade
	s.FreeThrowsAtt += other.FreeThrowsAtt
	s.PlusMinus += other.PlusMinus
	return s
}

// PlayerGameStat is one player's box score for one game.
type PlayerGameStat struct {
	GameID       string `json:"game_id" validate:"required"`
	PlayerID     string `json:"player_id" validate:"required"`
	TeamID       string `json:"team_id" validate:"required"`
	PlayerName   string `json:"player_name" validate:"required"`
	Position     string `json:"position,omitempty"`
	Starter      bool   `json:"starter"`
	BusinessDate Date   `json:"business_date" validate:"required"`
	Season       Season `json:"season" validate:"required"`

	StatLine
}

func (p PlayerGameStat) EntityType() EntityType { return EntityPlayerGameStat }
func (p PlayerGameStat) NaturalKey() string     { return p.GameID + "_" + p.PlayerID }

// TeamGameStat is one team's box score totals for one game.
type TeamGameStat struct {
	GameID       string `json:"game_id" validate:"required"`
	TeamID       string `json:"team_id" validate:"required"`
	TeamName     string `json:"team_name" validate:"required"`
	Home         bool   `json:"home"`
	BusinessDate Date   `json:"business_date" validate:"required"`
	Season       Season `json:"season" validate:"required"`

	StatLine
}

func (t TeamGameStat) EntityType() EntityType { return EntityTeamGameStat }
func (t TeamGameStat) NaturalKey() string     { return t.GameID + "_" + t.TeamID }

// RosterEntry pins a player to a team as of a business date. Roster facts
// change slowly and are additionally tracked as versioned history in the
// silver layer. The natural key is the player alone so that a team change
// closes the prior version instead of opening an unrelated member.
type RosterEntry struct {
	TeamID       string `json:"team_id" validate:"required"`
	PlayerID     string `json:"player_id" validate:"required"`
	PlayerName   string `json:"player_name" validate:"required"`
	Position     string `json:"position,omitempty"`
	JerseyNumber string `json:"jersey_number,omitempty"`
	BusinessDate Date   `json:"business_date" validate:"required"`
	Season       Season `json:"season" validate:"required"`
}

func (r RosterEntry) EntityType() EntityType { return EntityRosterEntry }
func (r RosterEntry) NaturalKey() string     { return r.PlayerID }
