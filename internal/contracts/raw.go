package contracts

import (
	"time"

	json "github.com/goccy/go-json"
)

// RawResource names a feed endpoint a raw payload was fetched from.
type RawResource string

const (
	ResourceScoreboard RawResource = "scoreboard"
	ResourceBoxScore   RawResource = "boxscore"
	ResourceRoster     RawResource = "roster"
)

// AllRawResources returns the known feed resources.
func AllRawResources() []RawResource {
	return []RawResource{ResourceScoreboard, ResourceBoxScore, ResourceRoster}
}

// IsValidRawResource checks whether r names a known resource.
func IsValidRawResource(r RawResource) bool {
	switch r {
	case ResourceScoreboard, ResourceBoxScore, ResourceRoster:
		return true
	}
	return false
}

func (r RawResource) String() string {
	return string(r)
}

// RawRecord is the immutable envelope written to the bronze layer. The
// payload is stored byte for byte as received; only the envelope fields
// are produced by the ingest path.
type RawRecord struct {
	RecordID      string          `json:"record_id"`
	SourceID      string          `json:"source_id"`
	Resource      RawResource     `json:"resource"`
	FetchedAt     time.Time       `json:"fetch_timestamp"`
	PartitionDate Date            `json:"partition_date"`
	Payload       json.RawMessage `json:"payload"`
}

// QuarantinedPayload wraps a rejected unit together with the reason it was
// set aside. Quarantine objects never block the rest of a batch.
type QuarantinedPayload struct {
	Stage         Stage           `json:"stage"`
	Reason        string          `json:"reason"`
	SourceID      string          `json:"source_id,omitempty"`
	SourceKey     string          `json:"source_key,omitempty"`
	QuarantinedAt time.Time       `json:"quarantined_at"`
	Payload       json.RawMessage `json:"payload"`
}

// QuarantineError marks a unit of work that must be diverted to quarantine
// rather than failing its batch.
type QuarantineError struct {
	Reason string
	Unit   string
}

func (e *QuarantineError) Error() string {
	if e.Unit == "" {
		return "quarantined: " + e.Reason
	}
	return "quarantined " + e.Unit + ": " + e.Reason
}
