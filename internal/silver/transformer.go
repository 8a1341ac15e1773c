// Package silver conforms raw bronze payloads into validated, deduped,
// deterministically keyed records, maintains roster version history,
// and commits a business date with the daily ready marker once enough
// of its games have arrived.
package silver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/internal/refdata"
	"github.com/courtdata/fastbreak/pkg/config"
	"github.com/courtdata/fastbreak/pkg/logger"
	"github.com/courtdata/fastbreak/pkg/metrics"
)

// ConformConfig tunes one conformance run.
type ConformConfig struct {
	// CompletenessThreshold is the share of scheduled games that must be
	// conformed before the date's ready marker is written.
	CompletenessThreshold float64
}

// DefaultConformConfig requires every scheduled game.
func DefaultConformConfig() ConformConfig {
	return ConformConfig{CompletenessThreshold: 1.0}
}

// ConformConfigFrom overlays the loaded configuration onto the defaults.
func ConformConfigFrom(cfg *config.Config) ConformConfig {
	cc := DefaultConformConfig()
	if cfg.Pipeline.CompletenessThreshold > 0 {
		cc.CompletenessThreshold = cfg.Pipeline.CompletenessThreshold
	}
	return cc
}

// ConformanceResult counts what one run wrote and whether any touched
// business date is committed when the run ends.
type ConformanceResult struct {
	Written     int
	Quarantined int
	Ready       bool
}

// Transformer turns one bronze partition into conformed silver records.
type Transformer struct {
	store    blob.Store
	schedule refdata.ScheduleSource
	validate *validator.Validate
	logger   *logger.Logger
	config   ConformConfig
}

// NewTransformer creates a conformance transformer over store.
func NewTransformer(store blob.Store, schedule refdata.ScheduleSource, log *logger.Logger, cc ConformConfig) *Transformer {
	return &Transformer{
		store:    store,
		schedule: schedule,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log,
		config:   cc,
	}
}

// Conform processes every raw record under the partition date: parse to
// typed candidates, validate, dedupe by natural key, write conformed
// objects, fold roster observations into version history, then
// re-evaluate completeness for every business date the partition
// touched. Single-record failures divert to quarantine; the run only
// fails on infrastructure errors.
//
// Records are keyed by the business date inside the payload, which for
// late-finishing games differs from the partition date they were
// fetched under.
func (t *Transformer) Conform(ctx context.Context, partitionDate contracts.Date) (ConformanceResult, error) {
	report := contracts.NewStageReport(contracts.StageSilver, partitionDate)
	var result ConformanceResult

	cands, err := t.collect(ctx, partitionDate, &result)
	if err != nil {
		metrics.RecordStageRun(string(contracts.StageSilver), "error")
		return result, err
	}

	winners := dedupe(cands)
	touched := make(map[contracts.Date]struct{})

	for _, c := range winners {
		ok, err := t.conformOne(ctx, c, &result)
		if err != nil {
			metrics.RecordStageRun(string(contracts.StageSilver), "error")
			return result, err
		}
		if ok {
			touched[c.businessDate] = struct{}{}
		}
	}

	dates := make([]contracts.Date, 0, len(touched))
	for d := range touched {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })

	for _, d := range dates {
		committed, err := t.evaluateCompleteness(ctx, d)
		if err != nil {
			metrics.RecordStageRun(string(contracts.StageSilver), "error")
			return result, err
		}
		if committed {
			result.Ready = true
		}
	}

	report.RecordsProcessed = result.Written
	report.RecordsQuarantined = result.Quarantined
	metrics.AddRecordsProcessed(string(contracts.StageSilver), result.Written)
	metrics.AddRecordsQuarantined(string(contracts.StageSilver), result.Quarantined)
	metrics.RecordStageRun(string(contracts.StageSilver), "ok")
	metrics.ObserveStageDuration(string(contracts.StageSilver), time.Since(report.StartedAt).Seconds())
	t.logger.WithFields(report.Fields()).Info("Stage complete")

	return result, nil
}

// collect reads the bronze partition and expands every parseable record
// into candidates. Unparseable payloads are quarantined and skipped.
func (t *Transformer) collect(ctx context.Context, partitionDate contracts.Date, result *ConformanceResult) ([]candidate, error) {
	infos, err := t.store.List(ctx, contracts.BronzePrefix(partitionDate))
	if err != nil {
		return nil, fmt.Errorf("failed to list bronze partition: %w", err)
	}

	var cands []candidate
	for _, info := range infos {
		obj, err := t.store.Get(ctx, info.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", info.Key, err)
		}

		var record contracts.RawRecord
		if err := json.Unmarshal(obj.Body, &record); err != nil {
			if qerr := t.quarantineParse(ctx, partitionDate, info.Key, record, obj.Body, fmt.Sprintf("raw envelope does not parse: %v", err)); qerr != nil {
				return nil, qerr
			}
			result.Quarantined++
			continue
		}

		more, err := candidatesFrom(info.Key, record)
		if err != nil {
			var qerr *contracts.QuarantineError
			if !errors.As(err, &qerr) {
				return nil, fmt.Errorf("failed to expand %s: %w", info.Key, err)
			}
			if werr := t.quarantineParse(ctx, partitionDate, info.Key, record, record.Payload, qerr.Reason); werr != nil {
				return nil, werr
			}
			result.Quarantined++
			continue
		}
		cands = append(cands, more...)
	}
	return cands, nil
}

// conformOne validates and writes a single winning candidate. The bool
// reports whether the candidate's business date needs re-evaluation.
func (t *Transformer) conformOne(ctx context.Context, c candidate, result *ConformanceResult) (bool, error) {
	if err := t.validate.Struct(c.entity); err != nil {
		if qerr := t.quarantineRecord(ctx, c, validationReason(err)); qerr != nil {
			return false, qerr
		}
		result.Quarantined++
		return false, nil
	}

	if entry, ok := c.entity.(contracts.RosterEntry); ok {
		if _, err := t.applySCD(ctx, entry); err != nil {
			return false, err
		}
		result.Written++
		return true, nil
	}

	rec, err := contracts.NewConformedRecord(c.entity, c.businessDate, c.recordID, c.fetchedAt)
	if err != nil {
		return false, err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to marshal conformed record: %w", err)
	}

	key := contracts.SilverKey(c.businessDate, rec.EntityType, rec.NaturalKey)
	if _, err := t.store.Put(ctx, key, body); err != nil {
		return false, fmt.Errorf("failed to write conformed record: %w", err)
	}
	result.Written++
	return true, nil
}

// evaluateCompleteness checks one business date against the schedule
// and writes the ready marker at most once when the threshold is met.
// The returned bool reports whether the date is committed, by this run
// or an earlier one.
func (t *Transformer) evaluateCompleteness(ctx context.Context, date contracts.Date) (bool, error) {
	expected, err := t.schedule.ExpectedGames(ctx, date)
	if err != nil {
		return false, fmt.Errorf("failed to count scheduled games: %w", err)
	}
	if expected == 0 {
		t.logger.WithFields(map[string]interface{}{
			"business_date": string(date),
		}).Info("No games scheduled for date, holding marker")
		return false, nil
	}

	games, err := t.store.List(ctx, contracts.SilverEntityPrefix(date, contracts.EntityGame))
	if err != nil {
		return false, fmt.Errorf("failed to list conformed games: %w", err)
	}

	need := int(math.Ceil(t.config.CompletenessThreshold * float64(expected)))
	if need < 1 {
		need = 1
	}
	if len(games) < need {
		t.logger.WithFields(map[string]interface{}{
			"business_date": string(date),
			"conformed":     len(games),
			"expected":      expected,
			"need":          need,
		}).Info("Completeness below threshold, holding marker")
		return false, nil
	}

	recordCount := len(games)
	for _, et := range []contracts.EntityType{contracts.EntityTeamGameStat, contracts.EntityPlayerGameStat} {
		infos, err := t.store.List(ctx, contracts.SilverEntityPrefix(date, et))
		if err != nil {
			return false, fmt.Errorf("failed to list conformed records: %w", err)
		}
		recordCount += len(infos)
	}

	marker := contracts.DailyReadyMarker{
		BusinessDate:  date,
		RecordCount:   recordCount,
		GameCount:     len(games),
		ExpectedGames: expected,
		WrittenAt:     time.Now().UTC(),
	}
	body, err := json.Marshal(marker)
	if err != nil {
		return false, fmt.Errorf("failed to marshal marker: %w", err)
	}

	_, err = t.store.PutIfAbsent(ctx, contracts.MarkerKey(date), body)
	if errors.Is(err, blob.ErrPreconditionFailed) {
		// Another run, or an earlier one, already committed the date.
		metrics.RecordMarkerRace()
		t.logger.WithFields(map[string]interface{}{
			"business_date": string(date),
		}).Debug("Ready marker already present")
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to write ready marker: %w", err)
	}

	metrics.RecordMarkerWritten()
	t.logger.WithFields(map[string]interface{}{
		"business_date": string(date),
		"games":         len(games),
		"expected":      expected,
		"records":       recordCount,
	}).Info("Business date committed")
	return true, nil
}

func (t *Transformer) quarantineParse(ctx context.Context, partitionDate contracts.Date, sourceKey string, record contracts.RawRecord, payload []byte, reason string) error {
	recordID := record.RecordID
	if recordID == "" {
		recordID = strings.TrimSuffix(path.Base(sourceKey), ".json")
	}
	resource := record.Resource
	if resource == "" {
		if _, parsed, ok := contracts.ParseBronzeKey(sourceKey); ok {
			resource = parsed
		}
	}

	q := contracts.QuarantinedPayload{
		Stage:         contracts.StageSilver,
		Reason:        reason,
		SourceID:      recordID,
		SourceKey:     sourceKey,
		QuarantinedAt: time.Now().UTC(),
		Payload:       safeRaw(payload),
	}
	body, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quarantine object: %w", err)
	}

	key := contracts.SilverParseQuarantineKey(partitionDate, resource, recordID)
	if _, err := t.store.Put(ctx, key, body); err != nil {
		return fmt.Errorf("failed to write quarantine object: %w", err)
	}

	t.logger.WithFields(map[string]interface{}{
		"key":    key,
		"source": sourceKey,
		"reason": reason,
	}).Warn("Raw record quarantined during conformance")
	return nil
}

func (t *Transformer) quarantineRecord(ctx context.Context, c candidate, reason string) error {
	entityBody, err := json.Marshal(c.entity)
	if err != nil {
		return fmt.Errorf("failed to marshal quarantined entity: %w", err)
	}

	q := contracts.QuarantinedPayload{
		Stage:         contracts.StageSilver,
		Reason:        reason,
		SourceID:      c.recordID,
		SourceKey:     c.sourceKey,
		QuarantinedAt: time.Now().UTC(),
		Payload:       entityBody,
	}
	body, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quarantine object: %w", err)
	}

	key := contracts.SilverQuarantineKey(c.businessDate, c.entity.EntityType(), c.entity.NaturalKey())
	if _, err := t.store.Put(ctx, key, body); err != nil {
		return fmt.Errorf("failed to write quarantine object: %w", err)
	}

	t.logger.WithFields(map[string]interface{}{
		"key":         key,
		"entity_type": string(c.entity.EntityType()),
		"natural_key": c.entity.NaturalKey(),
		"reason":      reason,
	}).Warn("Record quarantined during conformance")
	return nil
}

// safeRaw returns b as-is when it is valid JSON, or quoted as a JSON
// string so quarantine objects stay parseable.
func safeRaw(b []byte) json.RawMessage {
	if json.Valid(b) {
		return b
	}
	quoted, err := json.Marshal(string(b))
	if err != nil {
		return json.RawMessage(`""`)
	}
	return quoted
}
