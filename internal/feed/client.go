// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/permitwatch/permitwatch/internal/config"
	"github.com/permitwatch/permitwatch/internal/logging"
	"github.com/permitwatch/permitwatch/internal/metrics"
)

// Fetcher retrieves a feed body. Implementations must return a body the
// caller is responsible for closing.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// Client fetches feed CSV over HTTP with circuit breaker protection.
// Municipal open-data portals fall over regularly; the breaker keeps a dead
// portal from stalling every scheduled run at full timeout.
type Client struct {
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[*http.Response]
	userAgent  string
}

// NewClient creates a feed HTTP client.
//
// Circuit breaker configuration:
// - Opens after 60% failure rate with minimum 5 requests
// - 5 minute measurement window
// - 2 minute timeout before attempting recovery
func NewClient(cfg *config.FeedsConfig) *Client {
	cbName := "permit-feed"
	metrics.FeedBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 2,
		Interval:    5 * time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", breakerStateString(from)).
				Str("to", breakerStateString(to)).
				Msg("Feed circuit breaker state transition")
			metrics.FeedBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		cb:         cb,
		userAgent:  cfg.UserAgent,
	}
}

// Fetch retrieves the feed body. All failures are wrapped in ErrFetchFailed
// so callers can classify without inspecting transport details.
func (c *Client) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := c.cb.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "text/csv, text/plain, */*")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Str("url", url).Msg("Feed fetch rejected by open circuit breaker")
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, url, err)
	}
	return resp.Body, nil
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
