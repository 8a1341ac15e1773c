package contracts

import "time"

// Stage identifies a pipeline layer.
type Stage string

const (
	// StageBronze holds raw fetch payloads exactly as received.
	StageBronze Stage = "bronze"
	// StageSilver holds conformed, validated, deduplicated records.
	StageSilver Stage = "silver"
	// StageGold holds aggregates and the served artifacts built from them.
	StageGold Stage = "gold"
)

// AllStages returns the stages in pipeline order.
func AllStages() []Stage {
	return []Stage{StageBronze, StageSilver, StageGold}
}

// IsValidStage checks whether s names a known stage.
func IsValidStage(s Stage) bool {
	switch s {
	case StageBronze, StageSilver, StageGold:
		return true
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// StageReport accumulates counters for one stage run over one business date.
// Every stage emits exactly one completion log line built from Fields.
type StageReport struct {
	Stage        Stage
	BusinessDate Date
	StartedAt    time.Time

	RecordsProcessed   int
	RecordsQuarantined int
}

// NewStageReport starts a report clocked from now.
func NewStageReport(stage Stage, businessDate Date) *StageReport {
	return &StageReport{
		Stage:        stage,
		BusinessDate: businessDate,
		StartedAt:    time.Now(),
	}
}

// Fields renders the report as structured log fields. Key names are part of
// the operational contract and must not change.
func (r *StageReport) Fields() map[string]interface{} {
	return map[string]interface{}{
		"stage":               string(r.Stage),
		"business_date":       r.BusinessDate.String(),
		"duration_seconds":    time.Since(r.StartedAt).Seconds(),
		"records_processed":   r.RecordsProcessed,
		"records_quarantined": r.RecordsQuarantined,
	}
}
