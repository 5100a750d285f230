// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// WebhookChannel posts cohort digests as JSON to a fixed HTTP endpoint.
// Useful for piping digests into chat bridges or downstream automations
// without an SMTP server.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a webhook digest channel targeting url.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the channel identifier.
func (c *WebhookChannel) Name() string {
	return "webhook"
}

// WebhookPayload is the JSON body posted per cohort dispatch.
type WebhookPayload struct {
	Event      string    `json:"event"`
	Timestamp  time.Time `json:"timestamp"`
	Subject    string    `json:"subject"`
	BodyText   string    `json:"body_text,omitempty"`
	BodyHTML   string    `json:"body_html,omitempty"`
	Recipients []string  `json:"recipients"`
}

// Send posts the digest payload.
func (c *WebhookChannel) Send(ctx context.Context, params *SendParams) (*DeliveryResult, error) {
	result := &DeliveryResult{Recipients: params.Recipients}

	if err := ValidateWebhookURL(c.url); err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = ErrorCodeInvalidConfig
		return result, nil
	}

	payload := WebhookPayload{
		Event:      "permit_digest",
		Timestamp:  time.Now().UTC(),
		Subject:    params.Subject,
		BodyText:   params.BodyText,
		BodyHTML:   params.BodyHTML,
		Recipients: params.Recipients,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PermitWatch-Webhook/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = classifyTransportError(err)
		result.IsTransient = isTransientCode(result.ErrorCode)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		now := time.Now()
		result.Success = true
		result.DeliveredAt = &now
	case resp.StatusCode == http.StatusTooManyRequests:
		result.ErrorMessage = "webhook rate limited"
		result.ErrorCode = ErrorCodeRateLimited
		result.IsTransient = true
	case resp.StatusCode >= 500:
		result.ErrorMessage = fmt.Sprintf("webhook server error: %d", resp.StatusCode)
		result.ErrorCode = ErrorCodeServerError
		result.IsTransient = true
	default:
		result.ErrorMessage = fmt.Sprintf("webhook rejected request: %d", resp.StatusCode)
		result.ErrorCode = ErrorCodeInvalidConfig
	}
	return result, nil
}
