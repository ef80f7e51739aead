package crawler

import (
	"errors"
	"fmt"
	"time"
)

// Upstream endpoints.
const (
	DirectBaseURL = "https://api.clashroyale.com"
	ProxyBaseURL  = "https://proxy.royaleapi.dev"
)

// Defaults applied by the config layer.
const (
	DefaultTarget          = 10_000
	DefaultLowRatingCutoff = 31
	DefaultConcurrency     = 10
	DefaultThrottleBackoff = 5 * time.Second
)

// DefaultSeeds are known top-ladder players used when no seeds are configured.
var DefaultSeeds = []PlayerTag{"G9YV9GR8R", "Y9R22RQ2", "R90PRV0PY", "RVCQ2CQGJ"}

// Config holds the settings for one crawl session. Limits of zero mean
// unbounded.
type Config struct {
	Seeds           []PlayerTag
	RankedTarget    int
	LadderTarget    int
	LowRatingCutoff int
	MaxBattlelogs   int
	MaxBattles      int
	Concurrency     int
}

// Validate checks for obviously bad values.
func (c Config) Validate() error {
	if len(c.Seeds) == 0 {
		return errors.New("at least one seed player is required")
	}
	for _, s := range c.Seeds {
		if s == "" {
			return errors.New("seed player tags must not be empty")
		}
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0, got %d", c.Concurrency)
	}
	if c.MaxBattlelogs < 0 || c.MaxBattles < 0 {
		return errors.New("limits must be >= 0")
	}
	if c.RankedTarget < 0 || c.LadderTarget < 0 || c.LowRatingCutoff < 0 {
		return errors.New("targets and low rating cutoff must be >= 0")
	}
	return nil
}

// APIConfig configures the upstream API client.
type APIConfig struct {
	Token           string
	BaseURL         string
	ThrottleBackoff time.Duration
}

// Validate checks the API settings.
func (c APIConfig) Validate() error {
	if c.Token == "" {
		return errors.New("api token is required")
	}
	if c.BaseURL == "" {
		return errors.New("api base url is required")
	}
	if c.ThrottleBackoff < 0 {
		return errors.New("throttle backoff must be >= 0")
	}
	return nil
}

// BaseURLFor picks the direct or proxied endpoint.
func BaseURLFor(proxy bool) string {
	if proxy {
		return ProxyBaseURL
	}
	return DirectBaseURL
}
