package bronze

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/pkg/logger"
)

const validBoxScore = `{"game":{"gameId":"0022400561","homeTeam":{},"awayTeam":{}}}`

func newTestWriter() (*Writer, *blob.MemoryStore) {
	store := blob.NewMemory()
	return NewWriter(store, logger.NewWriter(io.Discard, "error")), store
}

func TestLandWritesEnvelope(t *testing.T) {
	t.Parallel()

	writer, store := newTestWriter()
	ctx := context.Background()
	date := contracts.Date("2024-01-15")
	fetched := time.Date(2024, 1, 16, 6, 0, 0, 0, time.UTC)

	res, err := writer.Land(ctx, RawPayload{
		Resource:  contracts.ResourceBoxScore,
		SourceID:  "0022400561",
		Body:      []byte(validBoxScore),
		FetchedAt: fetched,
	}, date)
	if err != nil {
		t.Fatalf("Land() error = %v", err)
	}
	if res.Quarantined {
		t.Fatalf("Land() quarantined valid payload: %s", res.Reason)
	}
	if res.RecordID == "" {
		t.Error("Land() returned empty record id")
	}

	gotDate, gotResource, ok := contracts.ParseBronzeKey(res.Key)
	if !ok {
		t.Fatalf("Land() key %q does not parse as a bronze key", res.Key)
	}
	if gotDate != date || gotResource != contracts.ResourceBoxScore {
		t.Errorf("key parsed to (%s, %s), want (%s, boxscore)", gotDate, gotResource, date)
	}

	obj, err := store.Get(ctx, res.Key)
	if err != nil {
		t.Fatalf("Get(%q) error = %v", res.Key, err)
	}
	var record contracts.RawRecord
	if err := json.Unmarshal(obj.Body, &record); err != nil {
		t.Fatalf("stored object is not a raw record: %v", err)
	}
	if record.SourceID != "0022400561" || record.Resource != contracts.ResourceBoxScore {
		t.Errorf("envelope = %q %q", record.SourceID, record.Resource)
	}
	if record.PartitionDate != date {
		t.Errorf("PartitionDate = %s, want %s", record.PartitionDate, date)
	}
	if string(record.Payload) != validBoxScore {
		t.Error("payload bytes were not preserved exactly")
	}
	if !record.FetchedAt.Equal(fetched) {
		t.Errorf("FetchedAt = %v, want %v", record.FetchedAt, fetched)
	}
}

func TestLandIsAppendOnly(t *testing.T) {
	t.Parallel()

	writer, store := newTestWriter()
	ctx := context.Background()
	date := contracts.Date("2024-01-15")
	base := time.Date(2024, 1, 16, 6, 0, 0, 0, time.UTC)

	for n := 0; n < 3; n++ {
		_, err := writer.Land(ctx, RawPayload{
			Resource:  contracts.ResourceBoxScore,
			SourceID:  "0022400561",
			Body:      []byte(validBoxScore),
			FetchedAt: base.Add(time.Duration(n) * time.Second),
		}, date)
		if err != nil {
			t.Fatalf("Land() #%d error = %v", n, err)
		}
	}

	infos, err := store.List(ctx, contracts.BronzeResourcePrefix(date, contracts.ResourceBoxScore))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 3 {
		t.Errorf("re-fetches stored %d objects, want 3 distinct keys", len(infos))
	}
}

func TestLandQuarantinesBadEnvelopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		resource contracts.RawResource
		body     string
	}{
		{"empty body", contracts.ResourceBoxScore, ""},
		{"not json", contracts.ResourceBoxScore, "<html>502 bad gateway</html>"},
		{"missing game object", contracts.ResourceBoxScore, `{"meta":{"code":200}}`},
		{"game without id", contracts.ResourceBoxScore, `{"game":{"homeTeam":{}}}`},
		{"scoreboard without games", contracts.ResourceScoreboard, `{"scoreboard":{"gameDate":"2024-01-15"}}`},
		{"roster without team", contracts.ResourceRoster, `{"roster":[]}`},
		{"unknown resource", contracts.RawResource("standings"), `{"ok":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer, store := newTestWriter()
			ctx := context.Background()
			date := contracts.Date("2024-01-15")

			res, err := writer.Land(ctx, RawPayload{
				Resource:  tt.resource,
				SourceID:  "src-1",
				Body:      []byte(tt.body),
				FetchedAt: time.Date(2024, 1, 16, 6, 0, 0, 0, time.UTC),
			}, date)
			if err != nil {
				t.Fatalf("Land() error = %v, want quarantine instead", err)
			}
			if !res.Quarantined {
				t.Fatal("Land() accepted a bad envelope")
			}
			if res.Reason == "" {
				t.Error("quarantine result has no reason")
			}
			if !strings.HasPrefix(res.Key, "quarantine/bronze/") {
				t.Errorf("quarantine key = %q", res.Key)
			}

			obj, err := store.Get(ctx, res.Key)
			if err != nil {
				t.Fatalf("Get(%q) error = %v", res.Key, err)
			}
			var q contracts.QuarantinedPayload
			if err := json.Unmarshal(obj.Body, &q); err != nil {
				t.Fatalf("quarantine object is not parseable JSON: %v", err)
			}
			if q.Stage != contracts.StageBronze {
				t.Errorf("Stage = %q, want bronze", q.Stage)
			}
			if q.Reason == "" || q.SourceID != "src-1" {
				t.Errorf("annotation = %q %q", q.Reason, q.SourceID)
			}

			// Nothing bad may leak into the bronze prefix.
			infos, err := store.List(ctx, contracts.BronzePrefix(date))
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(infos) != 0 {
				t.Errorf("bronze prefix holds %d objects, want 0", len(infos))
			}
		})
	}
}

func TestQuarantinePreservesRawBytes(t *testing.T) {
	t.Parallel()

	writer, store := newTestWriter()
	ctx := context.Background()
	raw := "<html>not json at all</html>"

	res, err := writer.Quarantine(ctx, RawPayload{
		Resource:  contracts.ResourceScoreboard,
		SourceID:  "2024-01-15",
		Body:      []byte(raw),
		FetchedAt: time.Date(2024, 1, 16, 6, 0, 0, 0, time.UTC),
	}, contracts.Date("2024-01-15"), "response is not valid JSON")
	if err != nil {
		t.Fatalf("Quarantine() error = %v", err)
	}

	obj, err := store.Get(ctx, res.Key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var q contracts.QuarantinedPayload
	if err := json.Unmarshal(obj.Body, &q); err != nil {
		t.Fatalf("quarantine object is not parseable JSON: %v", err)
	}

	var recovered string
	if err := json.Unmarshal(q.Payload, &recovered); err != nil {
		t.Fatalf("quarantined body did not round-trip: %v", err)
	}
	if recovered != raw {
		t.Errorf("recovered body = %q, want original bytes", recovered)
	}
}
