package gold

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/courtdata/fastbreak/internal/blob"
	"github.com/courtdata/fastbreak/internal/contracts"
	"github.com/courtdata/fastbreak/pkg/config"
	"github.com/courtdata/fastbreak/pkg/logger"
)

const (
	buildDate = contracts.Date("2024-01-16")
	nextDate  = contracts.Date("2024-01-20")
)

var seedFetchAt = time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC)

func newTestBuilder(store blob.Store, bc BuildConfig) *Builder {
	return NewBuilder(store, logger.NewWriter(io.Discard, "error"), bc)
}

func statLine(points int) contracts.StatLine {
	return contracts.StatLine{
		Minutes:           36.5,
		Points:            points,
		Assists:           8,
		Steals:            2,
		Blocks:            1,
		Turnovers:         3,
		PersonalFouls:     2,
		ReboundsOff:       1,
		ReboundsDef:       5,
		FieldGoalsMade:    12,
		FieldGoalsAtt:     22,
		ThreePointersMade: 4,
		ThreePointersAtt:  10,
		FreeThrowsMade:    6,
		FreeThrowsAtt:     7,
		PlusMinus:         10,
	}
}

func testGame(gameID string, date contracts.Date, homeScore, awayScore int) contracts.Game {
	return contracts.Game{
		GameID:       gameID,
		BusinessDate: date,
		Season:       contracts.SeasonOf(date),
		Status:       contracts.GameFinal,
		HomeTeamID:   "1610612744",
		AwayTeamID:   "1610612747",
		HomeScore:    homeScore,
		AwayScore:    awayScore,
		Period:       4,
		Arena:        "Chase Center",
		Attendance:   18064,
	}
}

func testTeamStat(gameID, teamID, name string, points int, home bool, date contracts.Date) contracts.TeamGameStat {
	return contracts.TeamGameStat{
		GameID:       gameID,
		TeamID:       teamID,
		TeamName:     name,
		Home:         home,
		BusinessDate: date,
		Season:       contracts.SeasonOf(date),
		StatLine:     statLine(points),
	}
}

func testPlayerStat(gameID, playerID, teamID, name string, points int, date contracts.Date) contracts.PlayerGameStat {
	return contracts.PlayerGameStat{
		GameID:       gameID,
		PlayerID:     playerID,
		TeamID:       teamID,
		PlayerName:   name,
		Position:     "G",
		Starter:      true,
		BusinessDate: date,
		Season:       contracts.SeasonOf(date),
		StatLine:     statLine(points),
	}
}

func putConformed(t *testing.T, store blob.Store, date contracts.Date, e contracts.Entity) {
	t.Helper()
	rec, err := contracts.NewConformedRecord(e, date, "rec-"+e.NaturalKey(), seedFetchAt)
	if err != nil {
		t.Fatalf("NewConformedRecord() error = %v", err)
	}
	body, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("failed to marshal conformed record: %v", err)
	}
	key := contracts.SilverKey(date, e.EntityType(), e.NaturalKey())
	if _, err := store.Put(context.Background(), key, body); err != nil {
		t.Fatalf("failed to seed %s: %v", key, err)
	}
}

func putMarker(t *testing.T, store blob.Store, date contracts.Date, gameCount int) {
	t.Helper()
	body, err := json.Marshal(contracts.DailyReadyMarker{
		BusinessDate:  date,
		RecordCount:   gameCount * 5,
		GameCount:     gameCount,
		ExpectedGames: gameCount,
		WrittenAt:     seedFetchAt,
	})
	if err != nil {
		t.Fatalf("failed to marshal marker: %v", err)
	}
	if _, err := store.Put(context.Background(), contracts.MarkerKey(date), body); err != nil {
		t.Fatalf("failed to seed marker: %v", err)
	}
}

// seedCommittedDay lands one final game with both team lines and two
// player lines, then commits the date with a ready marker.
func seedCommittedDay(t *testing.T, store blob.Store, date contracts.Date, gameID string, curryPoints, lebronPoints int) {
	t.Helper()
	putConformed(t, store, date, testGame(gameID, date, 110, 104))
	putConformed(t, store, date, testTeamStat(gameID, "1610612744", "Golden State Warriors", 110, true, date))
	putConformed(t, store, date, testTeamStat(gameID, "1610612747", "Los Angeles Lakers", 104, false, date))
	putConformed(t, store, date, testPlayerStat(gameID, "201939", "1610612744", "Stephen Curry", curryPoints, date))
	putConformed(t, store, date, testPlayerStat(gameID, "2544", "1610612747", "LeBron James", lebronPoints, date))
	putMarker(t, store, date, 1)
}

func getJSON(t *testing.T, store blob.Store, key string, v interface{}) {
	t.Helper()
	obj, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("failed to get %s: %v", key, err)
	}
	if err := json.Unmarshal(obj.Body, v); err != nil {
		t.Fatalf("failed to unmarshal %s: %v", key, err)
	}
}

func countUnder(t *testing.T, store blob.Store, prefix string) int {
	t.Helper()
	infos, err := store.List(context.Background(), prefix)
	if err != nil {
		t.Fatalf("failed to list %s: %v", prefix, err)
	}
	return len(infos)
}

func TestBuildRendersArtifacts(t *testing.T) {
	store := blob.NewMemory()
	seedCommittedDay(t, store, buildDate, "0022400561", 34, 28)
	b := newTestBuilder(store, DefaultBuildConfig())

	res, err := b.Build(context.Background(), buildDate)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// Two players, two teams, one game, six leaderboards.
	if res.ArtifactsWritten != 11 {
		t.Errorf("ArtifactsWritten = %d, want 11", res.ArtifactsWritten)
	}
	if res.Skipped != 0 || res.Degraded != 0 {
		t.Errorf("Skipped = %d, Degraded = %d; want none", res.Skipped, res.Degraded)
	}
	if !res.IndexAdvanced {
		t.Error("IndexAdvanced = false, want true")
	}

	var player playerDailyArtifact
	getJSON(t, store, contracts.ArtifactPath(contracts.ArtifactPlayerDaily, buildDate, "201939"), &player)
	if player.SchemaVersion != contracts.ArtifactSchemaVersion {
		t.Errorf("schema_version = %d, want %d", player.SchemaVersion, contracts.ArtifactSchemaVersion)
	}
	if player.PlayerName != "Stephen Curry" || player.TeamID != "1610612744" {
		t.Errorf("player identity = %s/%s, want Stephen Curry/1610612744", player.PlayerName, player.TeamID)
	}
	if player.Line.Points != 34 || player.Line.Rebounds != 6 {
		t.Errorf("line = %d pts %d reb, want 34 pts 6 reb", player.Line.Points, player.Line.Rebounds)
	}
	if player.Shooting == nil || player.Shooting.FieldGoalPct != 0.5455 {
		t.Errorf("shooting = %+v, want field goal pct 0.5455", player.Shooting)
	}
	if player.Season == nil || player.Season.GamesPlayed != 1 {
		t.Fatalf("season block = %+v, want one game played", player.Season)
	}
	if got := player.Season.Metrics["points_per_game"]; got != 34 {
		t.Errorf("points_per_game = %v, want 34", got)
	}
	if player.Lineage == nil || player.Lineage.SourceRecordID != "rec-0022400561_201939" {
		t.Errorf("lineage = %+v, want the conformed record id", player.Lineage)
	}
	if len(player.GameIDs) != 1 || player.GameIDs[0] != "0022400561" {
		t.Errorf("game_ids = %v, want the single game", player.GameIDs)
	}

	var team teamDailyArtifact
	getJSON(t, store, contracts.ArtifactPath(contracts.ArtifactTeamDaily, buildDate, "1610612744"), &team)
	if team.TeamName != "Golden State Warriors" || !team.Home {
		t.Errorf("team = %q home=%v, want Golden State Warriors at home", team.TeamName, team.Home)
	}
	if team.Line.Points != 110 {
		t.Errorf("team points = %d, want 110", team.Line.Points)
	}

	var game gameSummaryArtifact
	getJSON(t, store, contracts.ArtifactPath(contracts.ArtifactGameSummary, buildDate, "0022400561"), &game)
	if game.Status != contracts.GameFinal || game.Period != 4 {
		t.Errorf("game status = %s period %d, want final period 4", game.Status, game.Period)
	}
	if game.Home.Score != 110 || game.Away.Score != 104 {
		t.Errorf("score = %d-%d, want 110-104", game.Home.Score, game.Away.Score)
	}
	if game.Home.TeamName != "Golden State Warriors" || game.Home.Line.Points != 110 {
		t.Errorf("home side missing its joined team line: %+v", game.Home)
	}
	if game.Arena != "Chase Center" || game.Attendance != 18064 {
		t.Errorf("venue = %q/%d, want Chase Center/18064", game.Arena, game.Attendance)
	}

	var top topListsArtifact
	getJSON(t, store, contracts.ArtifactPath(contracts.ArtifactTopLists, buildDate, "points"), &top)
	if len(top.Entries) != 2 {
		t.Fatalf("points entries = %d, want 2", len(top.Entries))
	}
	if top.Entries[0].EntityID != "201939" || top.Entries[0].Value != 34 || top.Entries[0].Rank != 1 {
		t.Errorf("leader = %+v, want Curry at 34", top.Entries[0])
	}
	if top.Entries[1].EntityID != "2544" || top.Entries[1].Value != 28 {
		t.Errorf("runner-up = %+v, want James at 28", top.Entries[1])
	}

	var idx contracts.LatestIndex
	getJSON(t, store, contracts.IndexPath, &idx)
	if idx.LatestDate != buildDate {
		t.Errorf("index = %s, want %s", idx.LatestDate, buildDate)
	}

	var snap contracts.GoldAggregate
	getJSON(t, store, contracts.SeasonSnapshotKey(contracts.SeasonOf(buildDate), contracts.AggregatePlayer, "201939", buildDate), &snap)
	if snap.GamesPlayed != 1 || snap.Totals.Points != 34 {
		t.Errorf("snapshot = %d games %d pts, want 1 game 34 pts", snap.GamesPlayed, snap.Totals.Points)
	}
	if snap.EntityName != "Stephen Curry" {
		t.Errorf("snapshot name = %q, want Stephen Curry", snap.EntityName)
	}
}

func TestBuildRequiresMarker(t *testing.T) {
	store := blob.NewMemory()
	putConformed(t, store, buildDate, testGame("0022400561", buildDate, 110, 104))
	b := newTestBuilder(store, DefaultBuildConfig())

	_, err := b.Build(context.Background(), buildDate)
	if !errors.Is(err, ErrDateNotCommitted) {
		t.Fatalf("Build() error = %v, want ErrDateNotCommitted", err)
	}
	if n := countUnder(t, store, "served/"); n != 0 {
		t.Errorf("served objects = %d, want none for an uncommitted date", n)
	}
}

func TestBuildSeasonToDateAccumulates(t *testing.T) {
	store := blob.NewMemory()
	seedCommittedDay(t, store, buildDate, "0022400561", 30, 20)
	seedCommittedDay(t, store, nextDate, "0022400601", 40, 30)
	b := newTestBuilder(store, DefaultBuildConfig())
	ctx := context.Background()

	if _, err := b.Build(ctx, buildDate); err != nil {
		t.Fatalf("Build(day one) error = %v", err)
	}
	if _, err := b.Build(ctx, nextDate); err != nil {
		t.Fatalf("Build(day two) error = %v", err)
	}

	playerKey := contracts.ArtifactPath(contracts.ArtifactPlayerDaily, nextDate, "201939")
	var player playerDailyArtifact
	getJSON(t, store, playerKey, &player)
	if player.Season.GamesPlayed != 2 || player.Season.Totals.Points != 70 {
		t.Errorf("season = %d games %d pts, want 2 games 70 pts", player.Season.GamesPlayed, player.Season.Totals.Points)
	}
	if got := player.Season.Metrics["points_per_game"]; got != 35 {
		t.Errorf("points_per_game = %v, want 35", got)
	}

	var team teamDailyArtifact
	getJSON(t, store, contracts.ArtifactPath(contracts.ArtifactTeamDaily, nextDate, "1610612744"), &team)
	if team.Season.GamesPlayed != 2 || team.Season.Totals.Points != 220 {
		t.Errorf("team season = %d games %d pts, want 2 games 220 pts", team.Season.GamesPlayed, team.Season.Totals.Points)
	}

	// Re-running the newest date must not double count its own snapshot.
	if _, err := b.Build(ctx, nextDate); err != nil {
		t.Fatalf("Build(day two again) error = %v", err)
	}
	var again playerDailyArtifact
	getJSON(t, store, playerKey, &again)
	if again.Season.GamesPlayed != 2 || again.Season.Totals.Points != 70 {
		t.Errorf("season after rerun = %d games %d pts, want unchanged 2 games 70 pts",
			again.Season.GamesPlayed, again.Season.Totals.Points)
	}

	var snap contracts.GoldAggregate
	getJSON(t, store, contracts.SeasonSnapshotKey(contracts.SeasonOf(buildDate), contracts.AggregatePlayer, "201939", buildDate), &snap)
	if snap.GamesPlayed != 1 || snap.Totals.Points != 30 {
		t.Errorf("day-one snapshot = %d games %d pts, rewriting a later date must not touch it", snap.GamesPlayed, snap.Totals.Points)
	}
}

func TestBuildRerunDoesNotReadvanceIndex(t *testing.T) {
	store := blob.NewMemory()
	seedCommittedDay(t, store, buildDate, "0022400561", 34, 28)
	b := newTestBuilder(store, DefaultBuildConfig())
	ctx := context.Background()

	first, err := b.Build(ctx, buildDate)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !first.IndexAdvanced {
		t.Fatal("first build did not advance the index")
	}

	second, err := b.Build(ctx, buildDate)
	if err != nil {
		t.Fatalf("Build() rerun error = %v", err)
	}
	if second.IndexAdvanced {
		t.Error("rerun advanced the index for the same date")
	}
	if second.ArtifactsWritten != 11 {
		t.Errorf("rerun ArtifactsWritten = %d, want 11", second.ArtifactsWritten)
	}

	var idx contracts.LatestIndex
	getJSON(t, store, contracts.IndexPath, &idx)
	if idx.LatestDate != buildDate {
		t.Errorf("index = %s, want %s", idx.LatestDate, buildDate)
	}
}

func TestBuildIndexNeverRegresses(t *testing.T) {
	store := blob.NewMemory()
	seedCommittedDay(t, store, buildDate, "0022400561", 30, 20)
	seedCommittedDay(t, store, nextDate, "0022400601", 40, 30)
	b := newTestBuilder(store, DefaultBuildConfig())
	ctx := context.Background()

	if _, err := b.Build(ctx, nextDate); err != nil {
		t.Fatalf("Build(newer) error = %v", err)
	}
	res, err := b.Build(ctx, buildDate)
	if err != nil {
		t.Fatalf("Build(older) error = %v", err)
	}
	if res.IndexAdvanced {
		t.Error("backfilling an older date advanced the index")
	}
	if res.ArtifactsWritten != 11 {
		t.Errorf("backfill ArtifactsWritten = %d, want 11", res.ArtifactsWritten)
	}

	var idx contracts.LatestIndex
	getJSON(t, store, contracts.IndexPath, &idx)
	if idx.LatestDate != nextDate {
		t.Errorf("index = %s, want %s after backfill", idx.LatestDate, nextDate)
	}
}

func TestBuildSkipsOversizeCore(t *testing.T) {
	store := blob.NewMemory()
	seedCommittedDay(t, store, buildDate, "0022400561", 34, 28)
	walkOn := testPlayerStat("0022400561", "9999", "1610612744", "Walk On", 2, buildDate)
	walkOn.Position = strings.Repeat("x", 2*contracts.MaxArtifactBytes)
	putConformed(t, store, buildDate, walkOn)
	b := newTestBuilder(store, DefaultBuildConfig())

	// Twelve tasks, one unrenderable: 11/12 coverage clears the default gate.
	res, err := b.Build(context.Background(), buildDate)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
	if res.ArtifactsWritten != 11 {
		t.Errorf("ArtifactsWritten = %d, want 11", res.ArtifactsWritten)
	}
	if !res.IndexAdvanced {
		t.Error("IndexAdvanced = false, want true at 11/12 coverage")
	}

	key := contracts.ArtifactPath(contracts.ArtifactPlayerDaily, buildDate, "9999")
	if _, err := store.Head(context.Background(), key); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("Head(%s) error = %v, want ErrNotFound for the skipped entity", key, err)
	}
}

func TestBuildCoverageGateHoldsIndex(t *testing.T) {
	store := blob.NewMemory()
	seedCommittedDay(t, store, buildDate, "0022400561", 34, 28)
	walkOn := testPlayerStat("0022400561", "9999", "1610612744", "Walk On", 2, buildDate)
	walkOn.Position = strings.Repeat("x", 2*contracts.MaxArtifactBytes)
	putConformed(t, store, buildDate, walkOn)

	bc := DefaultBuildConfig()
	bc.MinCoverage = 0.95
	b := newTestBuilder(store, bc)

	res, err := b.Build(context.Background(), buildDate)
	if err == nil {
		t.Fatal("Build() succeeded below the coverage minimum")
	}
	if !strings.Contains(err.Error(), "coverage") {
		t.Errorf("error = %v, want a coverage failure", err)
	}
	if res.ArtifactsWritten != 11 || res.Skipped != 1 {
		t.Errorf("written = %d skipped = %d, want 11 and 1", res.ArtifactsWritten, res.Skipped)
	}
	if res.IndexAdvanced {
		t.Error("IndexAdvanced = true despite the failed gate")
	}
	if _, err := store.Head(context.Background(), contracts.IndexPath); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("index Head error = %v, want ErrNotFound when the gate holds", err)
	}
}

// replantOnGet serves the real index once, then writes body underneath
// so the caller's conditional swap loses to a concurrent build.
type replantOnGet struct {
	blob.Store
	key  string
	body []byte

	mu    sync.Mutex
	fired bool
}

func (s *replantOnGet) Get(ctx context.Context, key string) (blob.Object, error) {
	obj, err := s.Store.Get(ctx, key)
	if err != nil || key != s.key {
		return obj, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fired {
		s.fired = true
		if _, perr := s.Store.Put(ctx, key, s.body); perr != nil {
			return blob.Object{}, perr
		}
	}
	return obj, err
}

func TestAdvanceIndexLostSwapReevaluates(t *testing.T) {
	mem := blob.NewMemory()
	ctx := context.Background()

	seed, err := json.Marshal(contracts.LatestIndex{LatestDate: buildDate, GeneratedAt: seedFetchAt})
	if err != nil {
		t.Fatalf("failed to marshal seed index: %v", err)
	}
	if _, err := mem.Put(ctx, contracts.IndexPath, seed); err != nil {
		t.Fatalf("failed to seed index: %v", err)
	}
	planted, err := json.Marshal(contracts.LatestIndex{LatestDate: contracts.Date("2024-01-25"), GeneratedAt: seedFetchAt})
	if err != nil {
		t.Fatalf("failed to marshal planted index: %v", err)
	}

	store := &replantOnGet{Store: mem, key: contracts.IndexPath, body: planted}
	b := newTestBuilder(store, DefaultBuildConfig())

	// The stale read loses its swap, and the reread finds the index already
	// past the build date.
	advanced, err := b.advanceIndex(ctx, nextDate)
	if err != nil {
		t.Fatalf("advanceIndex() error = %v", err)
	}
	if advanced {
		t.Error("advanced = true after losing to a newer index")
	}

	var idx contracts.LatestIndex
	getJSON(t, mem, contracts.IndexPath, &idx)
	if idx.LatestDate != contracts.Date("2024-01-25") {
		t.Errorf("index = %s, want the concurrent winner 2024-01-25", idx.LatestDate)
	}
}

func TestBuildConfigFrom(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.RenderWorkers = 8
	cfg.Pipeline.ArtifactCoverage = 0.8
	cfg.Pipeline.TopListSize = 5

	bc := BuildConfigFrom(cfg)
	if bc.Workers != 8 || bc.MinCoverage != 0.8 || bc.TopListSize != 5 {
		t.Errorf("BuildConfigFrom() = %+v, want overrides applied", bc)
	}

	def := BuildConfigFrom(&config.Config{})
	if def != DefaultBuildConfig() {
		t.Errorf("zero config = %+v, want defaults", def)
	}
}
