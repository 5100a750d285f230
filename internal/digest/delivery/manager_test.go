// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package delivery

import (
	"context"
	"testing"
	"time"
)

// scriptedChannel returns canned results in sequence.
type scriptedChannel struct {
	results []DeliveryResult
	calls   int
}

func (c *scriptedChannel) Name() string { return "scripted" }

func (c *scriptedChannel) Send(_ context.Context, params *SendParams) (*DeliveryResult, error) {
	idx := c.calls
	c.calls++
	if idx >= len(c.results) {
		idx = len(c.results) - 1
	}
	result := c.results[idx]
	result.Recipients = params.Recipients
	return &result, nil
}

func fastManagerConfig(retries int) ManagerConfig {
	return ManagerConfig{
		MaxRetries:        retries,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		DispatchPerSecond: 10000,
	}
}

func TestDispatchSuccess(t *testing.T) {
	ch := &scriptedChannel{results: []DeliveryResult{{Success: true}}}
	m := NewManager(ch, fastManagerConfig(1))

	result := m.Dispatch(context.Background(), &SendParams{Recipients: []string{"a@example.com"}})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if ch.calls != 1 {
		t.Errorf("calls = %d, want 1", ch.calls)
	}
}

func TestDispatchRetriesTransient(t *testing.T) {
	ch := &scriptedChannel{results: []DeliveryResult{
		{Success: false, ErrorCode: ErrorCodeConnectionFailed, IsTransient: true},
		{Success: true},
	}}
	m := NewManager(ch, fastManagerConfig(1))

	result := m.Dispatch(context.Background(), &SendParams{Recipients: []string{"a@example.com"}})
	if !result.Success {
		t.Fatalf("expected success after retry, got %+v", result)
	}
	if ch.calls != 2 {
		t.Errorf("calls = %d, want 2", ch.calls)
	}
	if result.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", result.RetryCount)
	}
}

func TestDispatchStopsOnPermanentError(t *testing.T) {
	ch := &scriptedChannel{results: []DeliveryResult{
		{Success: false, ErrorCode: ErrorCodeInvalidRecipient, IsTransient: false},
	}}
	m := NewManager(ch, fastManagerConfig(3))

	result := m.Dispatch(context.Background(), &SendParams{Recipients: []string{"bad"}})
	if result.Success {
		t.Fatal("expected failure")
	}
	if ch.calls != 1 {
		t.Errorf("permanent error must not be retried, calls = %d", ch.calls)
	}
}

func TestDispatchExhaustsRetryBudget(t *testing.T) {
	ch := &scriptedChannel{results: []DeliveryResult{
		{Success: false, ErrorCode: ErrorCodeTimeout, IsTransient: true},
	}}
	m := NewManager(ch, fastManagerConfig(2))

	result := m.Dispatch(context.Background(), &SendParams{Recipients: []string{"a@example.com"}})
	if result.Success {
		t.Fatal("expected failure")
	}
	if ch.calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", ch.calls)
	}
}

func TestDispatchCanceledContext(t *testing.T) {
	ch := &scriptedChannel{results: []DeliveryResult{
		{Success: false, ErrorCode: ErrorCodeTimeout, IsTransient: true},
	}}
	m := NewManager(ch, ManagerConfig{
		MaxRetries:        5,
		BaseDelay:         time.Hour, // retry delay never elapses
		MaxDelay:          time.Hour,
		DispatchPerSecond: 10000,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := m.Dispatch(ctx, &SendParams{Recipients: []string{"a@example.com"}})
	if result.Success {
		t.Fatal("expected failure on canceled context")
	}
	if ch.calls != 1 {
		t.Errorf("calls = %d, want 1", ch.calls)
	}
}

func TestBackoffCapped(t *testing.T) {
	m := NewManager(&scriptedChannel{results: []DeliveryResult{{}}}, ManagerConfig{
		MaxRetries:        10,
		BaseDelay:         time.Second,
		MaxDelay:          4 * time.Second,
		DispatchPerSecond: 1,
	})

	if got := m.backoff(1); got != time.Second {
		t.Errorf("backoff(1) = %v", got)
	}
	if got := m.backoff(2); got != 2*time.Second {
		t.Errorf("backoff(2) = %v", got)
	}
	if got := m.backoff(3); got != 4*time.Second {
		t.Errorf("backoff(3) = %v", got)
	}
	if got := m.backoff(10); got != 4*time.Second {
		t.Errorf("backoff(10) = %v, want cap", got)
	}
}
