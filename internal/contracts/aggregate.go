package contracts

import "time"

// AggregateEntity names the class of thing a gold aggregate describes.
type AggregateEntity string

const (
	AggregatePlayer AggregateEntity = "player"
	AggregateTeam   AggregateEntity = "team"
)

func (a AggregateEntity) String() string {
	return string(a)
}

// MetricSet maps metric names to values. JSON rendering sorts map keys, so
// a metric set marshals deterministically.
type MetricSet map[string]float64

// GoldAggregate is a season-to-date rollup for one player or team as of a
// business date. Aggregates are plain overwrites; they carry no version
// history and are recomputed freely.
type GoldAggregate struct {
	EntityID    string          `json:"entity_id"`
	EntityName  string          `json:"entity_name,omitempty"`
	Entity      AggregateEntity `json:"entity"`
	Season      Season          `json:"season"`
	AsOfDate    Date            `json:"as_of_date"`
	GamesPlayed int             `json:"games_played"`
	Totals      StatLine        `json:"totals"`
	Metrics     MetricSet       `json:"metrics"`
	ComputedAt  time.Time       `json:"computed_at"`
}

// PerGame returns total/games, guarding the empty season.
func (g GoldAggregate) PerGame(total float64) float64 {
	if g.GamesPlayed == 0 {
		return 0
	}
	return total / float64(g.GamesPlayed)
}
