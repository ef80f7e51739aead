package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if battlelogRequestsTotal == nil || playersProcessedTotal == nil ||
		battlesEmittedTotal == nil || frontierSize == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveBattlelog(t *testing.T) {
	Init()
	before := testutil.ToFloat64(battlelogRequestsTotal.WithLabelValues("throttled"))

	ObserveBattlelog("throttled", 20*time.Millisecond)
	ObserveBattlelog("throttled", 0)

	if got := testutil.ToFloat64(battlelogRequestsTotal.WithLabelValues("throttled")); got != before+2 {
		t.Errorf("expected %v throttled requests, got %v", before+2, got)
	}
}

func TestObserveBatch(t *testing.T) {
	Init()
	players := testutil.ToFloat64(playersProcessedTotal)
	battles := testutil.ToFloat64(battlesEmittedTotal)

	ObserveBatch(25)

	if got := testutil.ToFloat64(playersProcessedTotal); got != players+1 {
		t.Errorf("players processed = %v, want %v", got, players+1)
	}
	if got := testutil.ToFloat64(battlesEmittedTotal); got != battles+25 {
		t.Errorf("battles emitted = %v, want %v", got, battles+25)
	}
}

func TestGauges(t *testing.T) {
	SetInflight(7)
	SetFrontierSize(1234)

	if got := testutil.ToFloat64(inflightFetches); got != 7 {
		t.Errorf("inflight = %v, want 7", got)
	}
	if got := testutil.ToFloat64(frontierSize); got != 1234 {
		t.Errorf("frontier = %v, want 1234", got)
	}
}

func TestObserveStoredIgnoresZero(t *testing.T) {
	Init()
	ObserveStored("csv", 3)
	ObserveStored("csv", 0)

	if got := testutil.ToFloat64(battlesStoredTotal.WithLabelValues("csv")); got < 3 {
		t.Errorf("stored = %v, want >= 3", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveSkippedRecord()
	ObserveMaintenance()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"crawler_records_skipped_total", "crawler_maintenance_events_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}
