package blob

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/courtdata/fastbreak/internal/events"
	"github.com/courtdata/fastbreak/pkg/logger"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.ObjectEvent
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, evt events.ObjectEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *capturePublisher) published() []events.ObjectEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.ObjectEvent(nil), p.events...)
}

func newTestNotifying(pub *capturePublisher) (*NotifyingStore, *MemoryStore) {
	mem := NewMemory()
	log := logger.NewWriter(io.Discard, "error")
	return NewNotifying(mem, pub, "fastbreak", log), mem
}

func TestNotifyingPublishesOnWrites(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	store, _ := newTestNotifying(pub)

	info, err := store.Put(ctx, "bronze/2024-01-15/scoreboard/sb-1.json", []byte("{}"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, err := store.PutIfAbsent(ctx, "silver/markers/2024-01-15.json", []byte("{}")); err != nil {
		t.Fatalf("PutIfAbsent() error = %v", err)
	}

	idx, err := store.Put(ctx, "served/index/latest.json", []byte(`{"latest_date":"2024-01-14"}`))
	if err != nil {
		t.Fatalf("Put(index) error = %v", err)
	}
	if _, err := store.PutIfMatch(ctx, "served/index/latest.json", []byte(`{"latest_date":"2024-01-15"}`), idx.ETag); err != nil {
		t.Fatalf("PutIfMatch() error = %v", err)
	}

	got := pub.published()
	if len(got) != 4 {
		t.Fatalf("published %d events, want 4", len(got))
	}

	first := got[0]
	if first.Key != "bronze/2024-01-15/scoreboard/sb-1.json" {
		t.Errorf("event key = %q", first.Key)
	}
	if first.Bucket != "fastbreak" {
		t.Errorf("event bucket = %q, want fastbreak", first.Bucket)
	}
	if first.ETag != info.ETag {
		t.Errorf("event etag = %q, want %q", first.ETag, info.ETag)
	}
	if first.SchemaVersion != events.EventSchemaVersion {
		t.Errorf("event schema version = %d, want %d", first.SchemaVersion, events.EventSchemaVersion)
	}
	if first.EventTime.IsZero() {
		t.Error("event time is zero")
	}
}

func TestNotifyingSkipsFailedWrites(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	store, _ := newTestNotifying(pub)

	key := "silver/markers/2024-01-15.json"
	if _, err := store.PutIfAbsent(ctx, key, []byte("{}")); err != nil {
		t.Fatalf("PutIfAbsent() error = %v", err)
	}
	if _, err := store.PutIfAbsent(ctx, key, []byte("{}")); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("PutIfAbsent() error = %v, want ErrPreconditionFailed", err)
	}

	if got := pub.published(); len(got) != 1 {
		t.Errorf("published %d events, want 1 (losing write must not announce)", len(got))
	}
}

func TestNotifyingPublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{err: errors.New("bus down")}
	store, mem := newTestNotifying(pub)

	if _, err := store.Put(ctx, "bronze/2024-01-15/roster/r-1.json", []byte("{}")); err != nil {
		t.Fatalf("Put() error = %v, want nil despite publish failure", err)
	}
	if mem.Len() != 1 {
		t.Errorf("object count = %d, want 1", mem.Len())
	}
}

func TestNotifyingReadsPassThrough(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	store, mem := newTestNotifying(pub)

	if _, err := mem.Put(ctx, "gold/season/2023-24/player/201939/2024-01-15.json", []byte("{}")); err != nil {
		t.Fatalf("seed error = %v", err)
	}

	if _, err := store.Get(ctx, "gold/season/2023-24/player/201939/2024-01-15.json"); err != nil {
		t.Errorf("Get() error = %v", err)
	}
	if _, err := store.Head(ctx, "gold/season/2023-24/player/201939/2024-01-15.json"); err != nil {
		t.Errorf("Head() error = %v", err)
	}
	infos, err := store.List(ctx, "gold/")
	if err != nil {
		t.Errorf("List() error = %v", err)
	}
	if len(infos) != 1 {
		t.Errorf("List() returned %d objects, want 1", len(infos))
	}
	if err := store.Delete(ctx, "gold/season/2023-24/player/201939/2024-01-15.json"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}

	if got := pub.published(); len(got) != 0 {
		t.Errorf("reads and deletes published %d events, want 0", len(got))
	}
}
