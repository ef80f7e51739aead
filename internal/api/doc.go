// Package api hosts the crawl status server. Routes:
//   - GET /healthz and /readyz for probes; ready while a session is running
//     or draining.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/crawl/stats for the live engine snapshot.
//   - GET /v1/crawl/sinks for what the in-process fallback sinks hold.
//   - GET /v1/runs/{run_id} for a recorded run.
package api
