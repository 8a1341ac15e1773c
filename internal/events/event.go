// Package events carries object-creation notifications between pipeline
// stages. Delivery is at-least-once with no ordering promise, so every
// handler must tolerate duplicates and stale events.
package events

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// EventSchemaVersion is stamped into every published event.
const EventSchemaVersion = 1

// TopicObjectCreated fans out to every registered object handler.
const TopicObjectCreated = "objects.created"

// ObjectEvent announces that an object was written. It names the object;
// it never carries the body. Handlers re-read the store, which keeps
// duplicate and out-of-order delivery harmless.
type ObjectEvent struct {
	SchemaVersion int       `json:"schema_version"`
	Bucket        string    `json:"bucket"`
	Key           string    `json:"key"`
	ETag          string    `json:"etag,omitempty"`
	Size          int64     `json:"size"`
	EventTime     time.Time `json:"event_time"`
}

// Validate checks the event can be routed.
func (e ObjectEvent) Validate() error {
	if e.SchemaVersion != EventSchemaVersion {
		return fmt.Errorf("unsupported event schema version %d", e.SchemaVersion)
	}
	if e.Key == "" {
		return fmt.Errorf("event key is empty")
	}
	return nil
}

// Marshal renders the event payload.
func (e ObjectEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalObjectEvent parses an event payload.
func UnmarshalObjectEvent(payload []byte) (ObjectEvent, error) {
	var e ObjectEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return ObjectEvent{}, fmt.Errorf("unmarshal object event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return ObjectEvent{}, err
	}
	return e, nil
}

// Filter selects the object keys a handler cares about. Empty fields
// match everything.
type Filter struct {
	Prefix string
	Suffix string
}

// Matches reports whether key falls inside the filter.
func (f Filter) Matches(key string) bool {
	if f.Prefix != "" && !strings.HasPrefix(key, f.Prefix) {
		return false
	}
	if f.Suffix != "" && !strings.HasSuffix(key, f.Suffix) {
		return false
	}
	return true
}
