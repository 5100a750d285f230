// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/permitwatch/permitwatch/internal/logging"
)

// Manager wraps a channel with bounded retry, backoff and a send rate limit.
// Mail providers throttle aggressively; the limiter spaces dispatches out so
// one digest run cannot trip provider rate limits.
type Manager struct {
	channel    Channel
	logger     zerolog.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	limiter    *rate.Limiter
}

// ManagerConfig configures the delivery manager.
type ManagerConfig struct {
	// MaxRetries is the retry budget for transient errors. The default of 1
	// keeps a flaky transport from turning a digest run into a send storm.
	MaxRetries int

	// BaseDelay is the initial retry delay; doubled per attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// DispatchPerSecond caps the sustained dispatch rate.
	DispatchPerSecond float64
}

// DefaultManagerConfig returns the default manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxRetries:        1,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		DispatchPerSecond: 1,
	}
}

// NewManager creates a delivery manager around the given channel.
func NewManager(channel Channel, cfg ManagerConfig) *Manager {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.DispatchPerSecond <= 0 {
		cfg.DispatchPerSecond = 1
	}

	return &Manager{
		channel:    channel,
		logger:     logging.With().Str("component", "digest-delivery").Logger(),
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		limiter:    rate.NewLimiter(rate.Limit(cfg.DispatchPerSecond), 1),
	}
}

// ChannelName returns the wrapped channel's identifier.
func (m *Manager) ChannelName() string {
	return m.channel.Name()
}

// Dispatch sends one cohort digest, retrying transient failures.
// The returned result reflects the final attempt.
func (m *Manager) Dispatch(ctx context.Context, params *SendParams) DeliveryResult {
	var lastResult *DeliveryResult

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := m.backoff(attempt)
			m.logger.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Strs("recipients", params.Recipients).
				Msg("Retrying dispatch after delay")

			select {
			case <-ctx.Done():
				return DeliveryResult{
					Recipients:   params.Recipients,
					ErrorMessage: "dispatch canceled",
					ErrorCode:    ErrorCodeTimeout,
					RetryCount:   attempt,
				}
			case <-time.After(delay):
			}
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return DeliveryResult{
				Recipients:   params.Recipients,
				ErrorMessage: "dispatch canceled while rate limited",
				ErrorCode:    ErrorCodeTimeout,
				RetryCount:   attempt,
			}
		}

		result, err := m.channel.Send(ctx, params)
		if err != nil {
			m.logger.Error().Err(err).
				Str("channel", m.channel.Name()).
				Int("attempt", attempt).
				Msg("Channel send error")
			lastResult = &DeliveryResult{
				Recipients:   params.Recipients,
				ErrorMessage: err.Error(),
				ErrorCode:    ErrorCodeUnknown,
				IsTransient:  true,
			}
			continue
		}
		lastResult = result
		lastResult.RetryCount = attempt

		if result.Success {
			return *result
		}
		if !result.IsTransient {
			m.logger.Warn().
				Str("channel", m.channel.Name()).
				Str("error_code", result.ErrorCode).
				Str("error", result.ErrorMessage).
				Msg("Permanent delivery error, not retrying")
			return *result
		}

		m.logger.Debug().
			Str("channel", m.channel.Name()).
			Str("error", result.ErrorMessage).
			Int("attempt", attempt).
			Msg("Transient delivery error")
	}

	if lastResult != nil {
		return *lastResult
	}
	return DeliveryResult{
		Recipients:   params.Recipients,
		ErrorMessage: "dispatch failed after retries",
		ErrorCode:    ErrorCodeUnknown,
		RetryCount:   m.maxRetries,
	}
}

// backoff returns the exponential delay for the given attempt.
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.baseDelay << (attempt - 1)
	if delay > m.maxDelay || delay <= 0 {
		return m.maxDelay
	}
	return delay
}
