// Package bronze lands raw feed payloads in the object store exactly as
// received. The layer is append-only: every fetch gets its own key, no
// object is ever overwritten, and payload bytes are stored untouched
// inside a small envelope.
package bronze

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/pkg/logger"
	"github.com/courtdata/fastbreak/pkg/metrics"
)

// Envelope checks are structural only: the payload must be a JSON
// object carrying the resource's identifying field. Business rules
// wait for the silver layer.
var envelopeSchemas = map[contracts.RawResource]*jsonschema.Schema{
	contracts.ResourceScoreboard: jsonschema.MustCompileString("scoreboard.json", `{
		"type": "object",
		"required": ["scoreboard"],
		"properties": {
			"scoreboard": {"type": "object", "required": ["gameDate", "games"]}
		}
	}`),
	contracts.ResourceBoxScore: jsonschema.MustCompileString("boxscore.json", `{
		"type": "object",
		"required": ["game"],
		"properties": {
			"game": {"type": "object", "required": ["gameId"]}
		}
	}`),
	contracts.ResourceRoster: jsonschema.MustCompileString("roster.json", `{
		"type": "object",
		"required": ["teamId", "roster"]
	}`),
}

// RawPayload is one fetched unit on its way into the bronze layer.
type RawPayload struct {
	Resource  contracts.RawResource
	SourceID  string
	Body      []byte
	FetchedAt time.Time
}

// LandResult names the object a payload ended up on.
type LandResult struct {
	Key         string
	RecordID    string
	Quarantined bool
	Reason      string
}

// Writer lands payloads under bronze keys and diverts the ones that
// fail the envelope check to quarantine.
type Writer struct {
	store  blob.Store
	logger *logger.Logger
}

// NewWriter creates a bronze writer on store.
func NewWriter(store blob.Store, log *logger.Logger) *Writer {
	return &Writer{
		store:  store,
		logger: log,
	}
}

// Land validates the payload envelope and writes it under a fresh
// bronze key. An envelope failure diverts the payload to quarantine
// and reports that ref without an error, so one bad unit never stops
// an ingest run.
func (w *Writer) Land(ctx context.Context, payload RawPayload, partitionDate contracts.Date) (LandResult, error) {
	if payload.FetchedAt.IsZero() {
		payload.FetchedAt = time.Now().UTC()
	}

	if reason := checkEnvelope(payload); reason != "" {
		return w.Quarantine(ctx, payload, partitionDate, reason)
	}

	record := contracts.RawRecord{
		RecordID:      uuid.NewString(),
		SourceID:      payload.SourceID,
		Resource:      payload.Resource,
		FetchedAt:     payload.FetchedAt.UTC(),
		PartitionDate: partitionDate,
		Payload:       payload.Body,
	}

	body, err := json.Marshal(record)
	if err != nil {
		return LandResult{}, fmt.Errorf("failed to marshal raw record: %w", err)
	}

	key := contracts.BronzeKey(partitionDate, payload.Resource, payload.SourceID, payload.FetchedAt)
	if _, err := w.store.Put(ctx, key, body); err != nil {
		return LandResult{}, fmt.Errorf("failed to write bronze object: %w", err)
	}

	metrics.AddRecordsProcessed(string(contracts.StageBronze), 1)
	w.logger.WithFields(map[string]interface{}{
		"key":      key,
		"resource": string(payload.Resource),
		"source":   payload.SourceID,
	}).Debug("Raw payload landed")

	return LandResult{Key: key, RecordID: record.RecordID}, nil
}

// Quarantine parks a payload that cannot enter bronze, annotated with
// the reason, and returns the quarantine ref.
func (w *Writer) Quarantine(ctx context.Context, payload RawPayload, partitionDate contracts.Date, reason string) (LandResult, error) {
	if payload.FetchedAt.IsZero() {
		payload.FetchedAt = time.Now().UTC()
	}

	// A body that is not valid JSON is stored as a JSON string so the
	// quarantine object itself stays parseable.
	raw := payload.Body
	if !json.Valid(raw) {
		quoted, err := json.Marshal(string(payload.Body))
		if err != nil {
			return LandResult{}, fmt.Errorf("failed to encode quarantined body: %w", err)
		}
		raw = quoted
	}

	quarantined := contracts.QuarantinedPayload{
		Stage:         contracts.StageBronze,
		Reason:        reason,
		SourceID:      payload.SourceID,
		QuarantinedAt: time.Now().UTC(),
		Payload:       raw,
	}

	body, err := json.Marshal(quarantined)
	if err != nil {
		return LandResult{}, fmt.Errorf("failed to marshal quarantine object: %w", err)
	}

	key := contracts.BronzeQuarantineKey(partitionDate, payload.SourceID, payload.FetchedAt)
	if _, err := w.store.Put(ctx, key, body); err != nil {
		return LandResult{}, fmt.Errorf("failed to write quarantine object: %w", err)
	}

	metrics.AddRecordsQuarantined(string(contracts.StageBronze), 1)
	w.logger.WithFields(map[string]interface{}{
		"key":    key,
		"source": payload.SourceID,
		"reason": reason,
	}).Warn("Raw payload quarantined")

	return LandResult{Key: key, Quarantined: true, Reason: reason}, nil
}

func checkEnvelope(payload RawPayload) string {
	if len(payload.Body) == 0 {
		return "empty payload"
	}

	schema, ok := envelopeSchemas[payload.Resource]
	if !ok {
		return fmt.Sprintf("unknown resource %q", payload.Resource)
	}

	var doc any
	if err := json.Unmarshal(payload.Body, &doc); err != nil {
		return fmt.Sprintf("payload is not valid JSON: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Sprintf("envelope check failed: %v", err)
	}
	return ""
}
