// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package delivery

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/permitwatch/permitwatch/internal/config"
)

// EmailChannel delivers digests over SMTP. One cohort dispatch is one SMTP
// message with every cohort member as an RCPT recipient; success means the
// server accepted the message for all of them.
type EmailChannel struct {
	cfg            *config.SMTPConfig
	defaultTimeout time.Duration
}

// NewEmailChannel creates an SMTP digest channel.
func NewEmailChannel(cfg *config.SMTPConfig) *EmailChannel {
	return &EmailChannel{
		cfg:            cfg,
		defaultTimeout: 30 * time.Second,
	}
}

// Name returns the channel identifier.
func (c *EmailChannel) Name() string {
	return "email"
}

// Validate checks the SMTP configuration.
func (c *EmailChannel) Validate() error {
	if c.cfg == nil || c.cfg.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.cfg.Port <= 0 || c.cfg.Port > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", c.cfg.Port)
	}
	if err := ValidateEmail(c.cfg.From); err != nil {
		return fmt.Errorf("invalid SMTP from address: %w", err)
	}
	return nil
}

// Send delivers the digest to every recipient in one SMTP transaction.
func (c *EmailChannel) Send(ctx context.Context, params *SendParams) (*DeliveryResult, error) {
	result := &DeliveryResult{Recipients: params.Recipients}

	if len(params.Recipients) == 0 {
		result.ErrorMessage = "no recipients"
		result.ErrorCode = ErrorCodeInvalidRecipient
		return result, nil
	}
	for _, rcpt := range params.Recipients {
		if err := ValidateEmail(rcpt); err != nil {
			result.ErrorMessage = err.Error()
			result.ErrorCode = ErrorCodeInvalidRecipient
			return result, nil
		}
	}
	if err := c.Validate(); err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = ErrorCodeInvalidConfig
		return result, nil
	}

	msg := c.buildMessage(params)
	if err := c.sendSMTP(ctx, params.Recipients, msg); err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = classifyTransportError(err)
		result.IsTransient = isTransientCode(result.ErrorCode)
		return result, nil
	}

	now := time.Now()
	result.Success = true
	result.DeliveredAt = &now
	return result, nil
}

// buildMessage constructs the MIME message. Recipients go into a single To
// header; all of them see the cohort's shared digest.
func (c *EmailChannel) buildMessage(params *SendParams) string {
	var msg strings.Builder

	fromName := c.cfg.FromName
	if fromName == "" {
		fromName = "PermitWatch"
	}

	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", fromName, c.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(params.Recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", params.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	hasHTML := params.BodyHTML != ""
	hasText := params.BodyText != ""

	switch {
	case hasHTML && hasText:
		boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary))

		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		msg.WriteString(params.BodyText)
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		msg.WriteString(params.BodyHTML)
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	case hasHTML:
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		msg.WriteString(params.BodyHTML)
	default:
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		msg.WriteString(params.BodyText)
	}

	return msg.String()
}

// sendSMTP performs the SMTP transaction for all recipients.
func (c *EmailChannel) sendSMTP(ctx context.Context, recipients []string, msg string) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	dialer := &net.Dialer{Timeout: c.defaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if c.cfg.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: c.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if c.cfg.Username != "" && c.cfg.Password != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(c.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	// A rejected recipient fails the whole cohort dispatch; last_sent then
	// stays untouched for every member.
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// Message is accepted at this point; a failed QUIT is not a failure.
	_ = client.Quit()
	return nil
}
