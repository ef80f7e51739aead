package crawler

import (
	"context"
	"net/http"
	"time"
)

// Fetcher performs a single HTTP GET and returns the raw response.
// Non-2xx statuses are returned as responses, not errors; an error means the
// request never produced a response.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// FetchRequest captures everything needed to issue one upstream request.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// RateLimiter paces outgoing requests.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// RetryPolicy decides whether a failed request is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// BattlelogClient is the engine's view of the upstream API.
type BattlelogClient interface {
	CheckHealth(ctx context.Context) error
	Battlelog(ctx context.Context, tag PlayerTag) BattlelogResult
}

// Outcome classifies a battlelog request.
type Outcome int

// Battlelog request outcomes.
const (
	// OutcomeOK carries a decoded battlelog, possibly empty.
	OutcomeOK Outcome = iota
	// OutcomeThrottled means the upstream asked us to slow down; the player
	// stays eligible for a later fetch.
	OutcomeThrottled
	// OutcomeMaintenance means the upstream is unavailable for everyone.
	OutcomeMaintenance
	// OutcomeFailed covers unexpected statuses, transport errors and bodies
	// that do not decode.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeMaintenance:
		return "maintenance"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BattlelogResult is what a BattlelogClient reports for one player.
type BattlelogResult struct {
	Outcome    Outcome
	Records    []RawBattle
	StatusCode int
	Duration   time.Duration
	Err        error
}
