// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

// Package main is the entry point for the PermitWatch server.
//
// PermitWatch ingests municipal construction permit CSV feeds on a schedule,
// stores permits in an embedded DuckDB database keyed by (permit_id, city),
// and emails filtered digests of newly ingested permits to subscriber
// cohorts. A REST API exposes querying, CSV export, on-demand ingestion and
// subscription management.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables and config.yaml via Koanf v2
//  2. Database: embedded DuckDB with the permits and subscriptions schema
//  3. Feed pipeline: HTTP fetcher behind a circuit breaker plus the ingestor
//  4. Digest pipeline: cohort grouping, rendering and SMTP delivery
//  5. Scheduler: cron-driven ingest and digest jobs
//  6. HTTP server: REST API plus Prometheus metrics
//
// The scheduler and the HTTP server run as separate layers of a suture
// supervisor tree, so a crashing pipeline restarts without taking the query
// API down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config.yaml, built-in defaults.
// Common settings:
//
//	export DUCKDB_PATH=data/permitwatch.duckdb
//	export HTTP_PORT=8420
//	export SCHEDULER_INGEST_CRON="0 6 * * *"
//	export SCHEDULER_DIGEST_CRON="0 7 * * *"
//	export SMTP_HOST=smtp.example.com
//	export SMTP_FROM=digests@example.com
//	./permitwatch
//
// Feed sources (city label + CSV URL pairs) are file-only configuration; see
// config.yaml.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the supervisor tree stops
// its services, the HTTP server drains in-flight requests with a bounded
// timeout, and the database closes last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/permitwatch/permitwatch/internal/api"
	"github.com/permitwatch/permitwatch/internal/config"
	"github.com/permitwatch/permitwatch/internal/database"
	"github.com/permitwatch/permitwatch/internal/digest"
	"github.com/permitwatch/permitwatch/internal/digest/delivery"
	"github.com/permitwatch/permitwatch/internal/feed"
	"github.com/permitwatch/permitwatch/internal/logging"
	"github.com/permitwatch/permitwatch/internal/scheduler"
	"github.com/permitwatch/permitwatch/internal/supervisor"
	"github.com/permitwatch/permitwatch/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger: the configured one is not available yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Int("feeds", len(cfg.Feeds.Sources)).
		Str("ingest_cron", cfg.Scheduler.IngestCron).
		Str("digest_cron", cfg.Scheduler.DigestCron).
		Msg("Starting PermitWatch")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	// Feed pipeline: HTTP client with circuit breaker feeding the ingestor.
	fetcher := feed.NewClient(&cfg.Feeds)
	ingestor := feed.NewIngestor(&cfg.Feeds, fetcher, db)

	// Digest pipeline: cohort grouping and dispatch behind the retrying
	// delivery manager.
	var channel delivery.Channel
	if cfg.Digest.Channel == "webhook" {
		channel = delivery.NewWebhookChannel(cfg.Digest.WebhookURL)
	} else {
		channel = delivery.NewEmailChannel(&cfg.SMTP)
	}
	manager := delivery.NewManager(channel, delivery.ManagerConfig{
		MaxRetries:        cfg.Digest.DispatchRetries,
		DispatchPerSecond: cfg.Digest.DispatchPerSecond,
	})
	digestService := digest.NewService(&cfg.Digest, db, manager)

	jobs := []scheduler.Job{
		{
			Name: "ingest",
			Spec: cfg.Scheduler.IngestCron,
			Run: func(ctx context.Context) error {
				_, err := ingestor.IngestAll(ctx)
				return err
			},
		},
		{
			Name: "digest",
			Spec: cfg.Scheduler.DigestCron,
			Run: func(ctx context.Context) error {
				_, err := digestService.Run(ctx)
				return err
			},
		},
	}
	sched, err := scheduler.New(&cfg.Scheduler, jobs)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	handler := api.NewHandler(cfg, db, db, ingestor, db)
	router := api.NewRouter(&cfg.Server, handler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddPipelineService(sched)
	tree.AddAPIService(services.NewHTTPService(httpServer, treeCfg.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := tree.ServeBackground(ctx)
	logging.Info().
		Str("addr", httpServer.Addr).
		Msg("PermitWatch running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		// Give the tree a bounded window to stop its services.
		select {
		case <-errCh:
		case <-time.After(treeCfg.ShutdownTimeout + 5*time.Second):
			if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
				for _, svc := range report {
					logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
				}
			}
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree terminated")
			os.Exit(1)
		}
	}

	logging.Info().Msg("Shutdown complete")
}
