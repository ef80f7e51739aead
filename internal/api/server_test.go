package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
	"github.com/JakeFAU/ladder-battle-crawler/internal/store"
)

type fixedStats struct {
	stats crawler.Stats
}

func (f fixedStats) Stats() crawler.Stats { return f.stats }

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, zap.NewNop()), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state crawler.State
		code  int
	}{
		{crawler.StateIdle, http.StatusServiceUnavailable},
		{crawler.StateRunning, http.StatusOK},
		{crawler.StateDraining, http.StatusOK},
		{crawler.StateClosed, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.state.String(), func(t *testing.T) {
			t.Parallel()
			src := fixedStats{crawler.Stats{State: tc.state, StateName: tc.state.String()}}
			rec := serve(t, NewServer(src, nil, nil), "/readyz")
			require.Equal(t, tc.code, rec.Code)
			require.Contains(t, rec.Body.String(), tc.state.String())
		})
	}

	rec := serve(t, NewServer(nil, nil, nil), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_CrawlStats(t *testing.T) {
	t.Parallel()

	src := fixedStats{crawler.Stats{
		State:            crawler.StateDraining,
		StateName:        "draining",
		Reason:           crawler.ReasonMaintenance,
		PlayersProcessed: 7,
		BattlesEmitted:   140,
		Inflight:         2,
	}}
	rec := serve(t, NewServer(src, nil, nil), "/v1/crawl/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "draining", body["state"])
	require.Equal(t, "maintenance", body["reason"])
	require.EqualValues(t, 7, body["players_processed"])
	require.EqualValues(t, 140, body["battles_emitted"])
	require.EqualValues(t, 2, body["inflight"])

	rec = serve(t, NewServer(nil, nil, nil), "/v1/crawl/stats")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fixedSinks SinkReport

func (f fixedSinks) SinkReport() SinkReport { return SinkReport(f) }

func TestServer_CrawlSinks(t *testing.T) {
	t.Parallel()

	src := fixedSinks{
		Battles:       12,
		Notifications: 3,
		ByTopic:       map[string]int{"": 3},
		Archives:      []string{"battles/20240501T091500.csv.gz"},
	}
	rec := serve(t, NewServer(nil, nil, nil, WithSinks(src)), "/v1/crawl/sinks")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 12, body["battles"])
	require.EqualValues(t, 3, body["notifications"])
	require.Equal(t, []any{"battles/20240501T091500.csv.gz"}, body["archives"])

	rec = serve(t, NewServer(nil, nil, nil), "/v1/crawl/sinks")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil)
	_ = serve(t, s, "/healthz")
	rec := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# HELP")
}

func TestServer_GetRun(t *testing.T) {
	t.Parallel()

	runID := uuid.Must(uuid.NewV7())
	finished := time.Unix(1700000600, 0).UTC()
	runs := &store.MockRunRepository{}
	runs.On("GetRun", mock.Anything, runID).Return(store.Run{
		ID:               runID,
		StartedAt:        time.Unix(1700000000, 0).UTC(),
		FinishedAt:       &finished,
		Status:           store.RunSuccess,
		Reason:           crawler.ReasonBattleLimit,
		PlayersProcessed: 12,
		BattlesStored:    300,
	}, nil)

	rec := serve(t, NewServer(nil, runs, nil), "/v1/runs/"+runID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Run runDTO `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, runID.String(), body.Run.ID)
	require.Equal(t, "success", body.Run.Status)
	require.Equal(t, 300, body.Run.BattlesStored)
	runs.AssertExpectations(t)
}

func TestServer_GetRunErrors(t *testing.T) {
	t.Parallel()

	missing := uuid.Must(uuid.NewV7())
	broken := uuid.Must(uuid.NewV7())
	runs := &store.MockRunRepository{}
	runs.On("GetRun", mock.Anything, missing).Return(store.Run{}, store.ErrNotFound)
	runs.On("GetRun", mock.Anything, broken).Return(store.Run{}, errors.New("db down"))
	s := NewServer(nil, runs, nil)

	require.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/runs/not-a-uuid").Code)
	require.Equal(t, http.StatusNotFound, serve(t, s, "/v1/runs/"+missing.String()).Code)
	require.Equal(t, http.StatusInternalServerError, serve(t, s, "/v1/runs/"+broken.String()).Code)
	require.Equal(t, http.StatusServiceUnavailable, serve(t, NewServer(nil, nil, nil), "/v1/runs/"+missing.String()).Code)
}

func TestServer_ListenAndServeShutsDown(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- NewServer(nil, nil, nil).ListenAndServe(ctx, port) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
