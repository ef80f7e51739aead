// Package metrics exposes Prometheus collectors for the battle crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	battlelogRequestsTotal    *prometheus.CounterVec
	battlelogDurationSeconds  *prometheus.HistogramVec
	playersProcessedTotal     prometheus.Counter
	battlesEmittedTotal       prometheus.Counter
	battlesStoredTotal        *prometheus.CounterVec
	recordsSkippedTotal       prometheus.Counter
	maintenanceEventsTotal    prometheus.Counter
	inflightFetches           prometheus.Gauge
	frontierSize              prometheus.Gauge
	rateLimitDelaySeconds     prometheus.Histogram
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		battlelogRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_battlelog_requests_total",
				Help: "Battlelog requests completed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		battlelogDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_battlelog_duration_seconds",
				Help:    "Battlelog request latency, labeled by outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"outcome"},
		)

		playersProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawler_players_processed_total",
			Help: "Players whose battlelog yielded at least one battle.",
		})

		battlesEmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawler_battles_emitted_total",
			Help: "Battles handed to the consumer, before deduplication.",
		})

		battlesStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_battles_stored_total",
				Help: "Deduplicated battles written, labeled by store.",
			},
			[]string{"store"},
		)

		recordsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawler_records_skipped_total",
			Help: "Battlelog records rejected by the normalizer.",
		})

		maintenanceEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawler_maintenance_events_total",
			Help: "Responses signalling upstream maintenance.",
		})

		inflightFetches = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_inflight_fetches",
			Help: "Battlelog requests currently in flight.",
		})

		frontierSize = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_frontier_size",
			Help: "Players waiting in the frontier.",
		})

		rateLimitDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the client-side request limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		})

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveBattlelog records one completed battlelog request.
func ObserveBattlelog(outcome string, duration time.Duration) {
	Init()
	battlelogRequestsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		battlelogDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// ObserveBatch records a batch yielded to the consumer.
func ObserveBatch(battles int) {
	Init()
	playersProcessedTotal.Inc()
	battlesEmittedTotal.Add(float64(battles))
}

// ObserveStored records battles persisted by a store.
func ObserveStored(store string, n int) {
	Init()
	if n > 0 {
		battlesStoredTotal.WithLabelValues(store).Add(float64(n))
	}
}

// ObserveSkippedRecord increments the rejected record counter.
func ObserveSkippedRecord() {
	Init()
	recordsSkippedTotal.Inc()
}

// ObserveMaintenance increments the maintenance counter.
func ObserveMaintenance() {
	Init()
	maintenanceEventsTotal.Inc()
}

// SetInflight sets the in-flight gauge.
func SetInflight(n int) {
	Init()
	inflightFetches.Set(float64(n))
}

// SetFrontierSize sets the frontier gauge.
func SetFrontierSize(n int) {
	Init()
	frontierSize.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a limiter wait.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecond.WithLabelValues(method, route).Observe(duration.Seconds())
}
