// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

// Package delivery provides digest delivery channel implementations.
//
// A dispatch is per cohort, not per subscriber: one rendered digest goes out
// once with every cohort member as a recipient. Channels report failure
// through DeliveryResult with transient/permanent classification; the manager
// retries transient failures a bounded number of times.
package delivery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Channel is a transport capable of delivering one cohort digest.
type Channel interface {
	// Name returns the channel identifier, e.g. "email".
	Name() string

	// Send delivers the digest to all recipients in one transport operation.
	// Transport failures are reported in the result, not the error; a non-nil
	// error means the channel itself misbehaved.
	Send(ctx context.Context, params *SendParams) (*DeliveryResult, error)
}

// SendParams carries one cohort dispatch.
type SendParams struct {
	// Recipients are the cohort member addresses, one message to all.
	Recipients []string

	// Subject is the digest subject line.
	Subject string

	// BodyHTML is the HTML digest content.
	BodyHTML string

	// BodyText is the plaintext digest content.
	BodyText string
}

// DeliveryResult is the outcome of one dispatch attempt.
type DeliveryResult struct {
	Success bool

	// Recipients echoes the addresses the attempt targeted.
	Recipients []string

	DeliveredAt *time.Time

	ErrorMessage string
	ErrorCode    string

	// IsTransient marks errors worth retrying (connection, timeout, rate
	// limit). Permanent errors (bad config, rejected recipient) are not.
	IsTransient bool

	RetryCount int
}

// Error codes for delivery failures.
const (
	ErrorCodeInvalidConfig    = "INVALID_CONFIG"
	ErrorCodeInvalidRecipient = "INVALID_RECIPIENT"
	ErrorCodeConnectionFailed = "CONNECTION_FAILED"
	ErrorCodeAuthFailed       = "AUTH_FAILED"
	ErrorCodeRateLimited      = "RATE_LIMITED"
	ErrorCodeTimeout          = "TIMEOUT"
	ErrorCodeServerError      = "SERVER_ERROR"
	ErrorCodeUnknown          = "UNKNOWN"
)

// ValidateEmail checks basic email address shape.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email address is required")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	if !strings.Contains(parts[1], ".") {
		return fmt.Errorf("invalid email domain: %s", parts[1])
	}
	return nil
}

// ValidateWebhookURL checks a webhook target URL.
func ValidateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("webhook URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}
	return nil
}

// isTransientCode returns true when the error code is worth a retry.
func isTransientCode(code string) bool {
	switch code {
	case ErrorCodeConnectionFailed, ErrorCodeTimeout, ErrorCodeRateLimited, ErrorCodeServerError:
		return true
	default:
		return false
	}
}

// classifyTransportError maps an error message to an error code.
func classifyTransportError(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "auth"):
		return ErrorCodeAuthFailed
	case strings.Contains(errStr, "connect"), strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "refused"), strings.Contains(errStr, "reset"):
		return ErrorCodeConnectionFailed
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline"):
		return ErrorCodeTimeout
	case strings.Contains(errStr, "recipient"), strings.Contains(errStr, "mailbox"):
		return ErrorCodeInvalidRecipient
	case strings.Contains(errStr, "rate"), strings.Contains(errStr, "limit"):
		return ErrorCodeRateLimited
	default:
		return ErrorCodeUnknown
	}
}
