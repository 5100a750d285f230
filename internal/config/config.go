// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

// Package config provides layered configuration loading for PermitWatch.
//
// Configuration is loaded via Koanf v2 with the following precedence
// (highest wins):
//
//	environment variables > config file (config.yaml) > built-in defaults
//
// Schedule configuration (cron expressions, feed list) is read once at
// process start; there is no hot reload.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the PermitWatch server.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	API       APIConfig       `koanf:"api"`
	Feeds     FeedsConfig     `koanf:"feeds"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Digest    DigestConfig    `koanf:"digest"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	// Path is the DuckDB database file path.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage, e.g. "1GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs/RateLimitWindow bound per-IP request rates.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// APIConfig holds pagination limits for list endpoints.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// FeedConfig describes one city's open-data permit feed.
type FeedConfig struct {
	// City is the canonical city label stored on every permit from this
	// feed, e.g. "Austin, TX".
	City string `koanf:"city"`

	// URL is the CSV feed endpoint.
	URL string `koanf:"url"`
}

// FeedsConfig configures feed ingestion.
type FeedsConfig struct {
	// Sources lists the configured city feeds. Ingestion runs fetch each
	// source independently; one city's failure never blocks the others.
	Sources []FeedConfig `koanf:"sources"`

	// FetchTimeout bounds a single feed HTTP request.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// UserAgent is sent with feed requests. Some municipal portals reject
	// requests without one.
	UserAgent string `koanf:"user_agent"`
}

// SchedulerConfig configures the two daily triggers.
type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`

	// IngestCron and DigestCron are standard 5-field cron expressions.
	// The default schedule runs the digest strictly after ingestion.
	IngestCron string `koanf:"ingest_cron"`
	DigestCron string `koanf:"digest_cron"`

	// Timezone interprets the cron expressions; empty means UTC.
	Timezone string `koanf:"timezone"`

	// CheckInterval is how often the scheduler evaluates due jobs.
	CheckInterval time.Duration `koanf:"check_interval"`
}

// DigestConfig configures digest computation and dispatch.
type DigestConfig struct {
	// Channel selects the dispatch transport: "email" or "webhook".
	Channel string `koanf:"channel"`

	// WebhookURL is the target endpoint when Channel is "webhook".
	WebhookURL string `koanf:"webhook_url"`

	// Window is the trailing recency window of permits eligible for a
	// digest run. Permits ingested earlier than now-Window are excluded.
	Window time.Duration `koanf:"window"`

	// MaxConcurrentDispatches bounds cohort dispatch parallelism.
	MaxConcurrentDispatches int `koanf:"max_concurrent_dispatches"`

	// DispatchTimeout bounds a single cohort dispatch.
	DispatchTimeout time.Duration `koanf:"dispatch_timeout"`

	// DispatchRetries is the bounded retry count for transient transport
	// errors before a cohort is marked failed for this run.
	DispatchRetries int `koanf:"dispatch_retries"`

	// DispatchPerSecond rate-limits sends to the mail transport.
	DispatchPerSecond float64 `koanf:"dispatch_per_second"`
}

// SMTPConfig configures the email transport for digests.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	FromName string `koanf:"from_name"`
	UseTLS   bool   `koanf:"use_tls"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load loads configuration from all layered sources and validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// Validate checks the configuration for values that would make the process
// misbehave at runtime rather than fail fast at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.API.DefaultPageSize <= 0 || c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("invalid API page sizes: default=%d max=%d",
			c.API.DefaultPageSize, c.API.MaxPageSize)
	}

	seen := make(map[string]struct{}, len(c.Feeds.Sources))
	for i, feed := range c.Feeds.Sources {
		if feed.City == "" {
			return fmt.Errorf("feed %d: city is required", i)
		}
		if _, dup := seen[feed.City]; dup {
			return fmt.Errorf("feed %d: duplicate city %q", i, feed.City)
		}
		seen[feed.City] = struct{}{}

		parsed, err := url.Parse(feed.URL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("feed %q: invalid URL %q", feed.City, feed.URL)
		}
	}

	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err)
		}
	}
	if c.Digest.Window <= 0 {
		return fmt.Errorf("digest window must be positive, got %s", c.Digest.Window)
	}
	switch c.Digest.Channel {
	case "email":
	case "webhook":
		if c.Digest.WebhookURL == "" {
			return fmt.Errorf("digest webhook channel requires a webhook_url")
		}
	default:
		return fmt.Errorf("unknown digest channel %q", c.Digest.Channel)
	}
	return nil
}

// FeedFor returns the feed configuration for a city, if configured.
func (c *Config) FeedFor(city string) (FeedConfig, bool) {
	for _, feed := range c.Feeds.Sources {
		if feed.City == city {
			return feed, true
		}
	}
	return FeedConfig{}, false
}
