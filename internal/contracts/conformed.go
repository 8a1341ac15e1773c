package contracts

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// ConformedRecord is the silver-layer envelope around one validated entity.
// Records are keyed by (entity type, natural key, business date); writing
// the same fact twice produces byte-identical objects.
type ConformedRecord struct {
	EntityType   EntityType      `json:"entity_type"`
	NaturalKey   string          `json:"natural_key"`
	BusinessDate Date            `json:"business_date"`
	Season       Season          `json:"season"`
	Entity       json.RawMessage `json:"entity"`
	// SourceRecordID is the bronze record the entity was conformed from,
	// after dedup picked the winning fetch.
	SourceRecordID string    `json:"source_record_id"`
	SourceFetchAt  time.Time `json:"source_fetch_at"`
}

// NewConformedRecord wraps a typed entity into its silver envelope.
func NewConformedRecord(e Entity, businessDate Date, sourceRecordID string, fetchedAt time.Time) (ConformedRecord, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return ConformedRecord{}, fmt.Errorf("marshal %s entity: %w", e.EntityType(), err)
	}
	return ConformedRecord{
		EntityType:     e.EntityType(),
		NaturalKey:     e.NaturalKey(),
		BusinessDate:   businessDate,
		Season:         SeasonOf(businessDate),
		Entity:         body,
		SourceRecordID: sourceRecordID,
		SourceFetchAt:  fetchedAt.UTC(),
	}, nil
}

// SCDVersion is one closed or open interval in a slowly changing
// dimension's history. An open version has an empty EffectiveTo.
type SCDVersion struct {
	EntityType    EntityType      `json:"entity_type"`
	NaturalKey    string          `json:"natural_key"`
	EffectiveFrom Date            `json:"effective_from"`
	EffectiveTo   Date            `json:"effective_to,omitempty"`
	Entity        json.RawMessage `json:"entity"`
}

// Current reports whether the version is still open.
func (v SCDVersion) Current() bool {
	return v.EffectiveTo.IsZero()
}

// DailyReadyMarker is the sentinel object that commits a business date.
// Its presence means the silver layer for that date passed completeness
// gating; downstream aggregation keys off marker creation, never off
// individual record writes.
type DailyReadyMarker struct {
	BusinessDate  Date      `json:"business_date"`
	RecordCount   int       `json:"record_count"`
	GameCount     int       `json:"game_count"`
	ExpectedGames int       `json:"expected_games"`
	WrittenAt     time.Time `json:"written_at"`
}
