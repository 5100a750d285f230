// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/permitwatch/permitwatch/internal/config"
	"github.com/permitwatch/permitwatch/internal/logging"
	"github.com/permitwatch/permitwatch/internal/metrics"
	"github.com/permitwatch/permitwatch/internal/models"
)

// PermitStore is the subset of the database the ingestor writes through.
type PermitStore interface {
	InsertPermit(ctx context.Context, permit *models.Permit) (bool, error)
}

// Ingestor runs feed ingestion for configured city sources.
//
// Rows are decoded and persisted in feed order, one at a time; the feed can
// be arbitrarily large and is never buffered whole. A row is either accepted
// (new natural key), a duplicate (key already stored, benign no-op), or
// rejected (no permit id). The same feed ingested twice leaves the store
// unchanged on the second run.
type Ingestor struct {
	cfg     *config.FeedsConfig
	fetcher Fetcher
	store   PermitStore
	log     zerolog.Logger

	// sampleSize bounds the accepted-permit sample returned to on-demand
	// callers so a full backfill does not balloon the API response.
	sampleSize int
}

// NewIngestor creates a feed ingestor.
func NewIngestor(cfg *config.FeedsConfig, fetcher Fetcher, store PermitStore) *Ingestor {
	return &Ingestor{
		cfg:        cfg,
		fetcher:    fetcher,
		store:      store,
		log:        logging.With().Str("component", "feed-ingestor").Logger(),
		sampleSize: 10,
	}
}

// IngestCity fetches and ingests one city's feed.
//
// Returns ErrUnknownCity for unconfigured cities and ErrFetchFailed when the
// feed cannot be retrieved; in both cases nothing is written. A mid-stream
// decode failure returns the rows persisted so far along with ErrFeedCorrupt.
func (ing *Ingestor) IngestCity(ctx context.Context, city string) (*models.IngestResult, error) {
	var source *config.FeedConfig
	for i := range ing.cfg.Sources {
		if ing.cfg.Sources[i].City == city {
			source = &ing.cfg.Sources[i]
			break
		}
	}
	if source == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCity, city)
	}
	return ing.ingestSource(ctx, *source)
}

// IngestAll ingests every configured source sequentially. One city's failure
// is logged and counted but never blocks the remaining cities. The returned
// error is non-nil only if every source failed.
func (ing *Ingestor) IngestAll(ctx context.Context) ([]models.IngestResult, error) {
	results := make([]models.IngestResult, 0, len(ing.cfg.Sources))
	var failures int
	var lastErr error

	for _, source := range ing.cfg.Sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := ing.ingestSource(ctx, source)
		if err != nil && result == nil {
			failures++
			lastErr = err
			ing.log.Error().Err(err).Str("city", source.City).Msg("Feed ingestion failed")
			continue
		}
		if err != nil {
			// Partial result: feed went corrupt mid-stream.
			ing.log.Warn().Err(err).Str("city", source.City).
				Int("accepted", result.AcceptedCount()).
				Msg("Feed ingestion completed partially")
		}
		results = append(results, *result)
	}

	if failures == len(ing.cfg.Sources) && failures > 0 {
		return results, fmt.Errorf("all %d feed sources failed, last error: %w", failures, lastErr)
	}
	return results, nil
}

// ingestSource runs one fetch-decode-persist pass for a single source.
func (ing *Ingestor) ingestSource(ctx context.Context, source config.FeedConfig) (*models.IngestResult, error) {
	start := time.Now()
	ing.log.Info().Str("city", source.City).Str("url", source.URL).Msg("Starting feed ingestion")

	body, err := ing.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		metrics.RecordIngestRun(source.City, "fetch_failed", time.Since(start), 0, 0, 0)
		return nil, err
	}
	defer body.Close()

	result, err := ing.decodeAndPersist(ctx, source.City, body)
	status := "success"
	switch {
	case err != nil && result == nil:
		status = "corrupt"
		metrics.RecordIngestRun(source.City, status, time.Since(start), 0, 0, 0)
		return nil, err
	case err != nil:
		status = "corrupt"
	}

	metrics.RecordIngestRun(source.City, status, time.Since(start),
		result.AcceptedCount(), result.Rejected, result.Duplicates)

	ing.log.Info().
		Str("city", source.City).
		Int("accepted", result.AcceptedCount()).
		Int("rejected", result.Rejected).
		Int("duplicates", result.Duplicates).
		Dur("duration", time.Since(start)).
		Msg("Feed ingestion finished")
	return result, err
}

// decodeAndPersist streams CSV rows from the body into the store.
//
// The header row defines column names for the whole stream; a stream whose
// header cannot be read is corrupt. Row-level CSV errors (ragged rows) are
// skipped; a hard reader error after the header aborts with the rows
// persisted so far and ErrFeedCorrupt.
func (ing *Ingestor) decodeAndPersist(ctx context.Context, city string, body io.Reader) (*models.IngestResult, error) {
	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read header: %v", ErrFeedCorrupt, err)
	}

	result := &models.IngestResult{
		City:     city,
		Accepted: make([]models.Permit, 0),
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// One bad row does not corrupt the feed.
			ing.log.Debug().Str("city", city).Err(err).Msg("Skipping malformed CSV row")
			continue
		}
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrFeedCorrupt, err)
		}

		raw := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				raw[col] = record[i]
			}
		}

		permit, ok := MapRow(raw, city)
		if !ok {
			result.Rejected++
			continue
		}

		inserted, err := ing.store.InsertPermit(ctx, &permit)
		if err != nil {
			return result, fmt.Errorf("failed to persist permit %s: %w", permit.PermitID, err)
		}
		if !inserted {
			result.Duplicates++
			continue
		}
		result.Accepted = append(result.Accepted, permit)
	}
}

// Sample returns up to the configured sample size of accepted permits for
// API responses.
func (ing *Ingestor) Sample(result *models.IngestResult) []models.Permit {
	if result == nil || len(result.Accepted) == 0 {
		return []models.Permit{}
	}
	if len(result.Accepted) <= ing.sampleSize {
		return result.Accepted
	}
	return result.Accepted[:ing.sampleSize]
}
