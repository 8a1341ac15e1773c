package contracts

import (
	"fmt"
	"time"
)

// ArtifactSchemaVersion is stamped into every served body. Consumers pin
// against it; bump only on breaking shape changes.
const ArtifactSchemaVersion = 1

// MaxArtifactBytes bounds every served body. Rendering degrades by
// dropping optional detail before it ever exceeds this.
const MaxArtifactBytes = 100 * 1024

// ArtifactType names a served artifact family.
type ArtifactType string

const (
	ArtifactPlayerDaily ArtifactType = "player_daily"
	ArtifactTeamDaily   ArtifactType = "team_daily"
	ArtifactGameSummary ArtifactType = "game_summary"
	ArtifactTopLists    ArtifactType = "top_lists"
)

// AllArtifactTypes returns the served artifact families.
func AllArtifactTypes() []ArtifactType {
	return []ArtifactType{ArtifactPlayerDaily, ArtifactTeamDaily, ArtifactGameSummary, ArtifactTopLists}
}

// IsValidArtifactType checks whether t names a known artifact family.
func IsValidArtifactType(t ArtifactType) bool {
	switch t {
	case ArtifactPlayerDaily, ArtifactTeamDaily, ArtifactGameSummary, ArtifactTopLists:
		return true
	}
	return false
}

func (t ArtifactType) String() string {
	return string(t)
}

// ArtifactPath builds the public object key for one served body. The
// layout is consumed by external readers and must not change.
func ArtifactPath(t ArtifactType, date Date, entityID string) string {
	return fmt.Sprintf("served/%s/%s/%s.json", t, date, entityID)
}

// ArtifactDatePrefix lists all artifacts of one family for one date.
func ArtifactDatePrefix(t ArtifactType, date Date) string {
	return fmt.Sprintf("served/%s/%s/", t, date)
}

// IndexPath locates the single pointer object that tells consumers which
// date is complete. It is written last, after every body for the date.
const IndexPath = "served/index/latest.json"

// LatestIndex is the body of the index pointer. The date only moves
// forward; a re-run of an older date never regresses it.
type LatestIndex struct {
	LatestDate  Date      `json:"latest_date"`
	GeneratedAt time.Time `json:"generated_at"`
}
