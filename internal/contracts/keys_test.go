package contracts

import (
	"strings"
	"testing"
	"time"
)

func TestBronzeKeyRoundTrip(t *testing.T) {
	fetched := time.Date(2024, 1, 15, 23, 30, 0, 123456789, time.UTC)
	key := BronzeKey("2024-01-15", ResourceBoxScore, "0022400561", fetched)

	want := "bronze/2024-01-15/boxscore/0022400561-1705361400123456789.json"
	if key != want {
		t.Fatalf("BronzeKey() = %q, want %q", key, want)
	}

	date, resource, ok := ParseBronzeKey(key)
	if !ok {
		t.Fatalf("ParseBronzeKey(%q) not ok", key)
	}
	if date != Date("2024-01-15") || resource != ResourceBoxScore {
		t.Errorf("ParseBronzeKey(%q) = (%s, %s)", key, date, resource)
	}
}

func TestParseBronzeKeyRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"wrong layer", "silver/2024-01-15/game/001.json"},
		{"missing resource", "bronze/2024-01-15/001.json"},
		{"bad date", "bronze/not-a-date/boxscore/001.json"},
		{"unknown resource", "bronze/2024-01-15/standings/001.json"},
		{"extra segment", "bronze/2024-01-15/boxscore/x/001.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, ok := ParseBronzeKey(tt.key); ok {
				t.Errorf("ParseBronzeKey(%q) accepted, want reject", tt.key)
			}
		})
	}
}

func TestMarkerKeyRoundTrip(t *testing.T) {
	key := MarkerKey("2024-01-15")
	if key != "silver/markers/2024-01-15.json" {
		t.Fatalf("MarkerKey() = %q", key)
	}

	date, ok := ParseMarkerKey(key)
	if !ok || date != Date("2024-01-15") {
		t.Errorf("ParseMarkerKey(%q) = (%s, %v)", key, date, ok)
	}
}

func TestParseMarkerKeyRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"silver record", "silver/2024-01-15/game/001.json"},
		{"nested under markers", "silver/markers/2024/01-15.json"},
		{"no suffix", "silver/markers/2024-01-15"},
		{"bad date", "silver/markers/yesterday.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ParseMarkerKey(tt.key); ok {
				t.Errorf("ParseMarkerKey(%q) accepted, want reject", tt.key)
			}
		})
	}
}

func TestKeysAreDeterministic(t *testing.T) {
	fetched := time.Unix(1705361400, 0)

	a := BronzeKey("2024-01-15", ResourceScoreboard, "sb-2024-01-15", fetched)
	b := BronzeKey("2024-01-15", ResourceScoreboard, "sb-2024-01-15", fetched)
	if a != b {
		t.Errorf("same inputs produced different bronze keys: %q vs %q", a, b)
	}

	if SilverKey("2024-01-15", EntityGame, "0022400561") != SilverKey("2024-01-15", EntityGame, "0022400561") {
		t.Error("same inputs produced different silver keys")
	}
}

func TestSilverPrefixesNest(t *testing.T) {
	key := SilverKey("2024-01-15", EntityPlayerGameStat, "0022400561_201939")
	datePrefix := SilverPrefix("2024-01-15")
	entityPrefix := SilverEntityPrefix("2024-01-15", EntityPlayerGameStat)

	if len(key) <= len(entityPrefix) || key[:len(entityPrefix)] != entityPrefix {
		t.Errorf("key %q not under entity prefix %q", key, entityPrefix)
	}
	if key[:len(datePrefix)] != datePrefix {
		t.Errorf("key %q not under date prefix %q", key, datePrefix)
	}
	// Markers and history live beside date partitions, never inside them.
	if MarkerKey("2024-01-15")[:len(datePrefix)] == datePrefix {
		t.Error("marker key must not collide with the date partition prefix")
	}
}

func TestQuarantineKeysStayOutsideLayerPrefixes(t *testing.T) {
	fetched := time.Unix(1705361400, 0)

	tests := []struct {
		name string
		key  string
		want string
	}{
		{
			"bronze envelope failure",
			BronzeQuarantineKey("2024-01-15", "0022400561", fetched),
			"quarantine/bronze/2024-01-15/0022400561-1705361400000000000.json",
		},
		{
			"silver validation failure",
			SilverQuarantineKey("2024-01-15", EntityPlayerGameStat, "0022400561_201939"),
			"quarantine/silver/2024-01-15/player_game_stat/0022400561_201939.json",
		},
		{
			"silver parse failure",
			SilverParseQuarantineKey("2024-01-15", ResourceBoxScore, "rec-01"),
			"quarantine/silver/2024-01-15/boxscore/rec-01.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key != tt.want {
				t.Errorf("key = %q, want %q", tt.key, tt.want)
			}
			for _, layer := range []string{"bronze/", "silver/", "gold/", "served/"} {
				if strings.HasPrefix(tt.key, layer) {
					t.Errorf("quarantine key %q sits inside the %s layer", tt.key, layer)
				}
			}
		})
	}
}

func TestSCDKeysShareMemberPrefix(t *testing.T) {
	prefix := SCDPrefix(EntityRosterEntry, "201939")
	current := SCDCurrentKey(EntityRosterEntry, "201939")
	closed := SCDVersionKey(EntityRosterEntry, "201939", "2024-01-15")

	if !strings.HasPrefix(current, prefix) {
		t.Errorf("current key %q not under %q", current, prefix)
	}
	if !strings.HasPrefix(closed, prefix) {
		t.Errorf("version key %q not under %q", closed, prefix)
	}
	if current == closed {
		t.Error("current pointer and closed version share a key")
	}
	// History must stay clear of the date partitions the completeness
	// gate lists.
	if strings.HasPrefix(current, SilverPrefix("2024-01-15")) {
		t.Errorf("scd key %q collides with a date partition", current)
	}
}

func TestSeasonSnapshotKeysSortByDate(t *testing.T) {
	prefix := SeasonSnapshotPrefix("2023-24", AggregatePlayer, "201939")
	jan := SeasonSnapshotKey("2023-24", AggregatePlayer, "201939", "2024-01-15")
	feb := SeasonSnapshotKey("2023-24", AggregatePlayer, "201939", "2024-02-01")

	if !strings.HasPrefix(jan, prefix) || !strings.HasPrefix(feb, prefix) {
		t.Errorf("snapshot keys %q, %q not under %q", jan, feb, prefix)
	}
	if jan >= feb {
		t.Errorf("snapshot keys do not sort chronologically: %q >= %q", jan, feb)
	}
}

func TestArtifactPath(t *testing.T) {
	got := ArtifactPath(ArtifactPlayerDaily, "2024-01-15", "201939")
	want := "served/player_daily/2024-01-15/201939.json"
	if got != want {
		t.Errorf("ArtifactPath() = %q, want %q", got, want)
	}

	if IndexPath != "served/index/latest.json" {
		t.Errorf("IndexPath = %q", IndexPath)
	}
}
