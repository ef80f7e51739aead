package app_test

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/ladder-battle-crawler/internal/app"
	"github.com/JakeFAU/ladder-battle-crawler/internal/config"
	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
	"github.com/JakeFAU/ladder-battle-crawler/internal/store"
)

const deck = `[{"id":1},{"id":2},{"id":3},{"id":4},{"id":5},{"id":6},{"id":7},{"id":8}]`

func ladderBattle(ts, self, opp string) string {
	return fmt.Sprintf(`{"battleTime":%q,"gameMode":{"id":72000006},`+
		`"team":[{"tag":"#%s","startingTrophies":7000,"trophyChange":30,"crowns":3,"cards":%s}],`+
		`"opponent":[{"tag":"#%s","startingTrophies":6990,"trophyChange":-30,"crowns":0,"cards":%s}]}`,
		ts, self, deck, opp, deck)
}

// upstream serves a three-player ladder: AAA has played BBB and CCC, BBB
// reports the same match against AAA and CCC has an empty log.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"reason":"accessDenied"}`))
			return
		}
		uri := r.RequestURI
		switch {
		case strings.HasSuffix(uri, "/v1/cards"):
			_, _ = w.Write([]byte(`{"items":[]}`))
		case strings.Contains(uri, "AAA"):
			_, _ = w.Write([]byte("[" +
				ladderBattle("20240501T120000.000Z", "AAA", "BBB") + "," +
				ladderBattle("20240501T110000.000Z", "AAA", "CCC") + "]"))
		case strings.Contains(uri, "BBB"):
			_, _ = w.Write([]byte("[" + ladderBattle("20240501T120000.000Z", "BBB", "AAA") + "]"))
		default:
			_, _ = w.Write([]byte("[]"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		API: config.APIConfig{
			Token:     "test-token",
			BaseURL:   baseURL,
			ProxyURL:  crawler.ProxyBaseURL,
			UserAgent: "test",
			Timeout:   5 * time.Second,
		},
		Crawler: config.CrawlerConfig{
			Seeds:           []string{"#aaa"},
			Concurrency:     2,
			RankedTarget:    crawler.DefaultTarget,
			LadderTarget:    crawler.DefaultTarget,
			LowRatingCutoff: crawler.DefaultLowRatingCutoff,
		},
		Output: config.OutputConfig{
			Dir:             filepath.Join(dir, "db-hour"),
			Compress:        true,
			Prefix:          "battles",
			LocalArchiveDir: filepath.Join(dir, "archive"),
		},
		SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "battles.db")},
	}
}

func TestAppRunEndToEnd(t *testing.T) {
	srv := upstream(t)
	cfg := testConfig(t, srv.URL)

	a, err := app.New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := a.Run(context.Background())
	a.Close()
	require.NoError(t, err)

	assert.Equal(t, crawler.ReasonExhausted, res.Reason)
	assert.Equal(t, 2, res.PlayersProcessed, "CCC's empty log is not counted")
	assert.Equal(t, 2, res.BattlesWritten, "the AAA/BBB match is written once")
	assert.Equal(t, 2, res.Stored["sqlite"])
	assert.True(t, strings.HasSuffix(res.File, ".csv.gz"))
	assert.True(t, strings.HasPrefix(res.ArchiveURI, "file://"))

	archived := strings.TrimPrefix(res.ArchiveURI, "file://")
	_, err = os.Stat(archived)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Output.LocalArchiveDir, "battles", filepath.Base(res.File)), archived)

	run, err := a.Runs().GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, run.Status)
	assert.Equal(t, res.ArchiveURI, run.ArchiveURI)

	db, err := sql.Open("sqlite", cfg.SQLite.Path)
	require.NoError(t, err)
	defer db.Close()
	var p1 string
	require.NoError(t, db.QueryRow(
		"SELECT p1_tag FROM battles WHERE battle_time = ?", "2024-05-01T12:00:00Z").Scan(&p1))
	assert.Equal(t, "BBB", p1, "stored battles are canonical")

	assert.Equal(t, crawler.StateClosed, a.Engine().Stats().State)

	sinks := a.Sinks()
	assert.Equal(t, 2, sinks.Notifications, "no topic configured, notifications stay in memory")
	assert.Zero(t, sinks.Battles, "sqlite is configured")
	assert.Empty(t, sinks.Archives, "a local archive dir is configured")
}

func TestAppRunFallsBackToMemorySinks(t *testing.T) {
	srv := upstream(t)
	cfg := testConfig(t, srv.URL)
	cfg.SQLite.Path = ""
	cfg.Output.LocalArchiveDir = ""

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stored["memory"])
	key := "battles/" + filepath.Base(res.File)
	assert.Equal(t, "memory://"+key, res.ArchiveURI)

	sinks := a.Sinks()
	assert.Equal(t, 2, sinks.Battles)
	assert.Equal(t, []string{key}, sinks.Archives)
	assert.Equal(t, 2, sinks.Notifications)
	require.Len(t, sinks.Recent, 2)
}

func TestAppRunHealthCheckFails(t *testing.T) {
	srv := upstream(t)
	cfg := testConfig(t, srv.URL)
	cfg.API.Token = "wrong"

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrHealthCheck)
	assert.Equal(t, crawler.ReasonHealthCheck, a.Engine().Stats().Reason)
}

func TestAppRunStopsStatusServer(t *testing.T) {
	srv := upstream(t)
	cfg := testConfig(t, srv.URL)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.Server.Port = l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	done := make(chan error, 1)
	go func() {
		_, err := a.Run(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after the crawl finished")
	}
}

func TestNewFailsOnBadDSN(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.DB.DSN = "postgres://%zz"

	_, err := app.New(context.Background(), cfg, nil)
	require.Error(t, err)
}
