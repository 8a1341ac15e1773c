package jobs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/bronze"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/internal/external/nbastats"
	"github.com/courtdata/fastbreak/internal/silver"
	"github.com/courtdata/fastbreak/pkg/logger"
)

func discardLogger() *logger.Logger {
	return logger.NewWriter(io.Discard, "error")
}

type fixedSchedule struct{ games int }

func (s fixedSchedule) ExpectedGames(ctx context.Context, date contracts.Date) (int, error) {
	return s.games, nil
}

func putMarker(t *testing.T, store blob.Store, date contracts.Date) {
	t.Helper()
	body, err := json.Marshal(contracts.DailyReadyMarker{
		BusinessDate: date,
		WrittenAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to marshal marker: %v", err)
	}
	if _, err := store.Put(context.Background(), contracts.MarkerKey(date), body); err != nil {
		t.Fatalf("failed to seed marker: %v", err)
	}
}

func TestSweepSkipsCommittedDates(t *testing.T) {
	store := blob.NewMemory()
	yesterday := contracts.Today().AddDays(-1)
	putMarker(t, store, yesterday)

	tr := silver.NewTransformer(store, fixedSchedule{}, discardLogger(), silver.DefaultConformConfig())
	job := NewSweepJob(store, tr, 3, "0 30 6 * * *", discardLogger())

	if got := job.Name(); got != "conformance_sweep" {
		t.Errorf("Name() = %q", got)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Sweeping empty partitions must not commit the uncommitted dates.
	infos, err := store.List(context.Background(), contracts.MarkerPrefix)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 1 {
		t.Errorf("markers = %d, want only the pre-committed date", len(infos))
	}
}

// listFailsStore makes every List fail so conformance breaks while the
// sweep's own marker checks keep working against the clean store.
type listFailsStore struct {
	blob.Store
}

func (s listFailsStore) List(ctx context.Context, prefix string) ([]blob.ObjectInfo, error) {
	return nil, errors.New("listing is down")
}

func TestSweepReportsFailedDates(t *testing.T) {
	store := blob.NewMemory()
	tr := silver.NewTransformer(listFailsStore{store}, fixedSchedule{}, discardLogger(), silver.DefaultConformConfig())
	job := NewSweepJob(store, tr, 2, "0 30 6 * * *", discardLogger())

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("Run() succeeded with conformance failing")
	}
	if !strings.Contains(err.Error(), "2 of 2") {
		t.Errorf("error = %v, want both dates reported", err)
	}
}

func TestSweepClampsWindow(t *testing.T) {
	store := blob.NewMemory()
	tr := silver.NewTransformer(store, fixedSchedule{}, discardLogger(), silver.DefaultConformConfig())

	job := NewSweepJob(store, tr, 0, "0 30 6 * * *", discardLogger())
	if job.days != 1 {
		t.Errorf("days = %d, want a minimum window of 1", job.days)
	}
}

// stubFeed publishes an empty scoreboard and nothing else.
type stubFeed struct{}

func (stubFeed) Scoreboard(ctx context.Context, date contracts.Date) (*nbastats.Scoreboard, error) {
	body := []byte(`{"scoreboard": {"gameDate": "` + string(date) + `", "games": []}}`)
	return &nbastats.Scoreboard{Date: date, Body: body}, nil
}

func (stubFeed) BoxScore(ctx context.Context, gameID string) (json.RawMessage, error) {
	return nil, errors.New("unexpected box score fetch")
}

func (stubFeed) TeamRoster(ctx context.Context, teamID string) (json.RawMessage, error) {
	return nil, errors.New("unexpected roster fetch")
}

func TestIngestJobLandsPreviousDay(t *testing.T) {
	store := blob.NewMemory()
	writer := bronze.NewWriter(store, discardLogger())
	ing := bronze.NewIngestor(stubFeed{}, writer, discardLogger(), bronze.DefaultIngestConfig())
	job := NewIngestJob(ing, "0 0 6 * * *", discardLogger())

	if got := job.Name(); got != "nightly_ingest" {
		t.Errorf("Name() = %q", got)
	}
	if got := job.Schedule(); got != "0 0 6 * * *" {
		t.Errorf("Schedule() = %q", got)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	yesterday := contracts.Today().AddDays(-1)
	infos, err := store.List(context.Background(), contracts.BronzeResourcePrefix(yesterday, contracts.ResourceScoreboard))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("scoreboard objects = %d, want 1 under the previous day", len(infos))
	}
}
