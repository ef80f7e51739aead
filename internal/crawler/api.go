package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// ErrHealthCheck is returned when the startup probe fails. It is the only
// fatal error in a crawl session.
var ErrHealthCheck = errors.New("api health check failed")

const (
	healthPath        = "/v1/cards"
	battlelogPathTmpl = "/v1/players/%%23%s/battlelog"
)

// APIClient implements BattlelogClient over a Fetcher.
type APIClient struct {
	cfg     APIConfig
	fetcher Fetcher
	limiter RateLimiter
	retry   RetryPolicy
	logger  *zap.Logger
}

// NewAPIClient builds an APIClient. limiter and retry are optional.
func NewAPIClient(
	cfg APIConfig,
	fetcher Fetcher,
	limiter RateLimiter,
	retry RetryPolicy,
	logger *zap.Logger,
) (*APIClient, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("api config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIClient{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: limiter,
		retry:   retry,
		logger:  logger,
	}, nil
}

// CheckHealth issues the authenticated startup probe.
func (c *APIClient) CheckHealth(ctx context.Context) error {
	resp, err := c.get(ctx, healthPath)
	if err != nil {
		c.logger.Error("api health check unreachable", zap.String("base_url", c.cfg.BaseURL), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrHealthCheck, err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp.Body)
		c.logger.Error("api health check rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("reason", apiErr.Reason),
			zap.String("message", apiErr.Message),
		)
		return fmt.Errorf("%w: status %d: %s", ErrHealthCheck, resp.StatusCode, apiErr)
	}
	c.logger.Info("api health check passed", zap.String("base_url", c.cfg.BaseURL))
	return nil
}

// Battlelog fetches and classifies the battlelog for tag.
func (c *APIClient) Battlelog(ctx context.Context, tag PlayerTag) BattlelogResult {
	path := fmt.Sprintf(battlelogPathTmpl, url.PathEscape(tag.String()))
	resp, err := c.get(ctx, path)
	if err != nil {
		c.logger.Error("battlelog request failed", zap.Stringer("tag", tag), zap.Error(err))
		return BattlelogResult{Outcome: OutcomeFailed, Err: err}
	}

	result := BattlelogResult{StatusCode: resp.StatusCode, Duration: resp.Duration}
	switch resp.StatusCode {
	case http.StatusOK:
		records, err := DecodeBattlelog(resp.Body)
		if err != nil {
			c.logger.Error("battlelog body rejected", zap.Stringer("tag", tag), zap.Error(err))
			result.Outcome = OutcomeFailed
			result.Err = err
			return result
		}
		result.Outcome = OutcomeOK
		result.Records = records
	case http.StatusTooManyRequests:
		apiErr := decodeAPIError(resp.Body)
		c.logger.Error("battlelog request throttled",
			zap.Stringer("tag", tag),
			zap.String("reason", apiErr.Reason),
			zap.String("message", apiErr.Message),
			zap.Duration("backoff", c.cfg.ThrottleBackoff),
		)
		result.Outcome = OutcomeThrottled
		if err := sleepContext(ctx, c.cfg.ThrottleBackoff); err != nil {
			result.Err = err
		}
	case http.StatusServiceUnavailable:
		apiErr := decodeAPIError(resp.Body)
		c.logger.Error("upstream in maintenance",
			zap.Stringer("tag", tag),
			zap.String("severity", "critical"),
			zap.String("reason", apiErr.Reason),
			zap.String("message", apiErr.Message),
		)
		result.Outcome = OutcomeMaintenance
	default:
		apiErr := decodeAPIError(resp.Body)
		c.logger.Error("battlelog request rejected",
			zap.Stringer("tag", tag),
			zap.Int("status", resp.StatusCode),
			zap.String("reason", apiErr.Reason),
			zap.String("message", apiErr.Message),
		)
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, apiErr)
	}
	return result
}

func (c *APIClient) get(ctx context.Context, path string) (FetchResponse, error) {
	req := FetchRequest{
		URL: c.cfg.BaseURL + path,
		Headers: http.Header{
			"Authorization": []string{"Bearer " + c.cfg.Token},
			"Accept":        []string{"application/json"},
		},
	}
	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return FetchResponse{}, err
			}
		}
		resp, err := c.fetcher.Fetch(ctx, req)
		if err == nil {
			return resp, nil
		}
		if c.retry == nil || !c.retry.ShouldRetry(err, attempt) {
			return FetchResponse{}, fmt.Errorf("get %s: %w", path, err)
		}
		backoff := c.retry.Backoff(attempt)
		c.logger.Warn("retrying request after transport error",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := sleepContext(ctx, backoff); err != nil {
			return FetchResponse{}, fmt.Errorf("get %s: %w", path, err)
		}
	}
}

type apiError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e apiError) String() string {
	switch {
	case e.Reason == "" && e.Message == "":
		return "no details"
	case e.Message == "":
		return e.Reason
	default:
		return e.Reason + " - " + e.Message
	}
}

func decodeAPIError(body []byte) apiError {
	var e apiError
	if len(body) == 0 {
		return e
	}
	_ = json.Unmarshal(body, &e) //nolint:errcheck // error bodies are informational
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
