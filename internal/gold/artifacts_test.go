package gold

import (
	"fmt"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/contracts"
)

func fullPlayerArtifact() *playerDailyArtifact {
	line := statLine(30)
	return &playerDailyArtifact{
		SchemaVersion: contracts.ArtifactSchemaVersion,
		ArtifactType:  contracts.ArtifactPlayerDaily,
		Date:          buildDate,
		PlayerID:      "201939",
		PlayerName:    "Stephen Curry",
		Position:      "G",
		TeamID:        "1610612744",
		GameIDs:       []string{"0022400561"},
		Starter:       true,
		Line:          statBlockFrom(line),
		Shooting:      shootingFrom(line),
		Season: &seasonBlock{
			GamesPlayed: 1,
			Totals:      statBlockFrom(line),
			Metrics:     deriveMetrics(contracts.GoldAggregate{GamesPlayed: 1, Totals: line}),
		},
		Lineage: &lineageBlock{SourceRecordID: "rec-1", SourceFetchAt: seedFetchAt, GeneratedAt: seedFetchAt},
	}
}

func TestPlayerArtifactDropOrder(t *testing.T) {
	art := fullPlayerArtifact()

	if !art.dropNext() {
		t.Fatal("first drop refused")
	}
	if art.Lineage != nil {
		t.Error("lineage survives the first drop")
	}
	if art.Shooting == nil {
		t.Error("shooting dropped before lineage alone was tried")
	}

	if !art.dropNext() {
		t.Fatal("second drop refused")
	}
	if art.Shooting != nil {
		t.Error("shooting survives the second drop")
	}
	if art.Season == nil || art.Season.Metrics == nil {
		t.Error("season metrics dropped before shooting alone was tried")
	}

	if !art.dropNext() {
		t.Fatal("third drop refused")
	}
	if len(art.Season.Metrics) != 0 {
		t.Error("season metrics survive the third drop")
	}

	if art.dropNext() {
		t.Error("drop continued past the required core")
	}
	if art.PlayerID == "" || art.Line.Points != 30 {
		t.Error("required core was mutated by dropping")
	}
}

func TestRenderBoundedDegradesOversizeMetrics(t *testing.T) {
	art := fullPlayerArtifact()
	huge := make(contracts.MetricSet, 6000)
	for i := 0; i < 6000; i++ {
		huge[fmt.Sprintf("synthetic_metric_%04d", i)] = float64(i) + 0.5
	}
	art.Season.Metrics = huge

	body, degraded, err := renderBounded(art)
	if err != nil {
		t.Fatalf("renderBounded() error = %v", err)
	}
	if !degraded {
		t.Error("degraded = false, want true")
	}
	if len(body) > contracts.MaxArtifactBytes {
		t.Errorf("body = %d bytes, exceeds %d", len(body), contracts.MaxArtifactBytes)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("degraded body does not parse: %v", err)
	}
	if _, ok := out["lineage"]; ok {
		t.Error("lineage still present after degrade")
	}
	if _, ok := out["shooting"]; ok {
		t.Error("shooting still present after degrade")
	}
	season, ok := out["season"].(map[string]interface{})
	if !ok {
		t.Fatal("season block missing from degraded body")
	}
	if _, ok := season["metrics"]; ok {
		t.Error("season metrics still present after degrade")
	}
	if _, ok := out["line"]; !ok {
		t.Error("core line missing from degraded body")
	}
}

func TestRenderBoundedFailsOversizeCore(t *testing.T) {
	art := fullPlayerArtifact()
	art.PlayerName = strings.Repeat("x", 2*contracts.MaxArtifactBytes)

	if _, _, err := renderBounded(art); err == nil {
		t.Fatal("renderBounded() accepted a core beyond the size bound")
	}
}

func TestBuildTopListOrdersAndTruncates(t *testing.T) {
	players := []contracts.PlayerGameStat{
		{GameID: "g1", PlayerID: "300", PlayerName: "Third", TeamID: "t1", StatLine: contracts.StatLine{Points: 20}},
		{GameID: "g1", PlayerID: "200", PlayerName: "Second", TeamID: "t2", StatLine: contracts.StatLine{Points: 30}},
		{GameID: "g2", PlayerID: "100", PlayerName: "First", TeamID: "t3", StatLine: contracts.StatLine{Points: 30}},
	}
	value := func(p contracts.PlayerGameStat) float64 { return float64(p.Points) }

	art := buildTopList(buildDate, "points", value, players, 2)
	if art.Metric != "points" {
		t.Errorf("Metric = %q, want points", art.Metric)
	}
	if len(art.Entries) != 2 {
		t.Fatalf("entries = %d, want truncation to 2", len(art.Entries))
	}
	// Equal values fall back to entity id ascending.
	if art.Entries[0].EntityID != "100" || art.Entries[1].EntityID != "200" {
		t.Errorf("order = %s, %s; want 100, 200", art.Entries[0].EntityID, art.Entries[1].EntityID)
	}
	if art.Entries[0].Rank != 1 || art.Entries[1].Rank != 2 {
		t.Errorf("ranks = %d, %d; want 1, 2", art.Entries[0].Rank, art.Entries[1].Rank)
	}
	if art.Entries[0].Value != 30 {
		t.Errorf("top value = %v, want 30", art.Entries[0].Value)
	}
}

func TestGroupPlayersSumsTheDay(t *testing.T) {
	recs := []playerRecord{
		{stat: testPlayerStat("g1", "201939", "1610612744", "Stephen Curry", 20, buildDate), source: sourceRef{recordID: "rec-1"}},
		{stat: testPlayerStat("g2", "201939", "1610612744", "Stephen Curry", 15, buildDate), source: sourceRef{recordID: "rec-2"}},
		{stat: testPlayerStat("g1", "2544", "1610612747", "LeBron James", 9, buildDate), source: sourceRef{recordID: "rec-3"}},
	}

	days := groupPlayers(recs)
	if len(days) != 2 {
		t.Fatalf("days = %d, want 2", len(days))
	}
	curry := days[0]
	if curry.stat.PlayerID != "201939" {
		t.Fatalf("first day is %s, want first-seen order", curry.stat.PlayerID)
	}
	if curry.line.Points != 35 {
		t.Errorf("summed points = %d, want 35", curry.line.Points)
	}
	if len(curry.games) != 2 || curry.games[0] != "g1" || curry.games[1] != "g2" {
		t.Errorf("games = %v, want [g1 g2]", curry.games)
	}
	if curry.source.recordID != "rec-1" {
		t.Errorf("source = %q, want the first line's provenance", curry.source.recordID)
	}
}

func TestSnapshotDate(t *testing.T) {
	tests := []struct {
		key  string
		want contracts.Date
		ok   bool
	}{
		{"gold/season/2023-24/player/201939/2024-01-16.json", contracts.Date("2024-01-16"), true},
		{"gold/season/2023-24/player/201939/current.json", "", false},
		{"gold/season/2023-24/player/201939/not-a-date.json", "", false},
	}

	for _, tt := range tests {
		got, ok := snapshotDate(tt.key)
		if ok != tt.ok || got != tt.want {
			t.Errorf("snapshotDate(%q) = %q, %v; want %q, %v", tt.key, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDeriveMetrics(t *testing.T) {
	agg := contracts.GoldAggregate{
		GamesPlayed: 2,
		Totals: contracts.StatLine{
			Points:         70,
			ReboundsOff:    4,
			ReboundsDef:    16,
			Assists:        14,
			FieldGoalsMade: 25,
			FieldGoalsAtt:  50,
		},
	}

	m := deriveMetrics(agg)
	if m["points_per_game"] != 35 {
		t.Errorf("points_per_game = %v, want 35", m["points_per_game"])
	}
	if m["rebounds_per_game"] != 10 {
		t.Errorf("rebounds_per_game = %v, want 10", m["rebounds_per_game"])
	}
	if m["assists_per_game"] != 7 {
		t.Errorf("assists_per_game = %v, want 7", m["assists_per_game"])
	}
	if m["field_goal_pct"] != 0.5 {
		t.Errorf("field_goal_pct = %v, want 0.5", m["field_goal_pct"])
	}
	if m["three_point_pct"] != 0 {
		t.Errorf("three_point_pct = %v, want 0 when unattempted", m["three_point_pct"])
	}

	empty := deriveMetrics(contracts.GoldAggregate{})
	if empty["points_per_game"] != 0 {
		t.Errorf("empty season points_per_game = %v, want 0", empty["points_per_game"])
	}
}
