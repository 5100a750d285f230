// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/permitwatch/permitwatch/internal/models"
)

const permitColumns = `permit_id, city, permit_type, work_class, zip_code,
	district, square_footage, location, contractor, valuation_amount,
	issued_date, applied_date, ingested_at`

// InsertPermit persists a permit, assigning IngestedAt. Returns false when a
// permit with the same (permit_id, city) natural key already exists; the
// conflicting row is left untouched.
func (db *DB) InsertPermit(ctx context.Context, permit *models.Permit) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	permit.IngestedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO permits (`+permitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (permit_id, city) DO NOTHING`,
		permit.PermitID, permit.City, permit.PermitType, permit.WorkClass,
		permit.ZipCode, permit.District, permit.SquareFootage, permit.Location,
		permit.Contractor, permit.ValuationAmount,
		nullableDate(permit.IssuedDate), nullableDate(permit.AppliedDate),
		permit.IngestedAt)
	if err != nil {
		// ON CONFLICT absorbs ordinary duplicates; a constraint error can
		// still surface when two inserts race. Same benign outcome.
		if errors.Is(mapWriteError(err), ErrDuplicateKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert permit %s/%s: %w",
			permit.City, permit.PermitID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return rows > 0, nil
}

// PermitExists reports whether a permit with the given natural key is stored.
func (db *DB) PermitExists(ctx context.Context, permitID, city string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permits WHERE permit_id = ? AND city = ?`,
		permitID, city).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check permit existence: %w", err)
	}
	return count > 0, nil
}

// QueryPermits returns permits matching the filter, newest ingested first.
func (db *DB) QueryPermits(ctx context.Context, filter PermitFilter) ([]models.Permit, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	where, args := buildConditions(filter)
	query := fmt.Sprintf(`
		SELECT %s FROM permits %s
		ORDER BY ingested_at DESC, permit_id`,
		permitColumns, where)

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permits: %w", err)
	}
	defer rows.Close()

	permits := make([]models.Permit, 0)
	for rows.Next() {
		permit, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		permits = append(permits, permit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permits: %w", err)
	}
	return permits, nil
}

// CountPermits returns the number of permits matching the filter, ignoring
// pagination.
func (db *DB) CountPermits(ctx context.Context, filter PermitFilter) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	where, args := buildConditions(filter)
	var count int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM permits "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count permits: %w", err)
	}
	return count, nil
}

// GetStats aggregates the store for the stats endpoint: total rows, per-city
// tallies, and the ten most common work classes.
func (db *DB) GetStats(ctx context.Context) (*models.PermitStats, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	stats := &models.PermitStats{
		Cities:         make([]models.CityCount, 0),
		TopWorkClasses: make([]models.WorkClassCount, 0),
	}

	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permits`).Scan(&stats.TotalPermits)
	if err != nil {
		return nil, fmt.Errorf("failed to count permits: %w", err)
	}

	cityRows, err := db.conn.QueryContext(ctx, `
		SELECT city, COUNT(*) AS n FROM permits
		GROUP BY city ORDER BY n DESC, city`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cities: %w", err)
	}
	defer cityRows.Close()
	for cityRows.Next() {
		var c models.CityCount
		if err := cityRows.Scan(&c.City, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan city count: %w", err)
		}
		stats.Cities = append(stats.Cities, c)
	}
	if err := cityRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate city counts: %w", err)
	}

	classRows, err := db.conn.QueryContext(ctx, `
		SELECT work_class, COUNT(*) AS n FROM permits
		WHERE work_class <> ''
		GROUP BY work_class ORDER BY n DESC, work_class
		LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate work classes: %w", err)
	}
	defer classRows.Close()
	for classRows.Next() {
		var w models.WorkClassCount
		if err := classRows.Scan(&w.WorkClass, &w.Count); err != nil {
			return nil, fmt.Errorf("failed to scan work class count: %w", err)
		}
		stats.TopWorkClasses = append(stats.TopWorkClasses, w)
	}
	if err := classRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate work class counts: %w", err)
	}

	return stats, nil
}

// scanPermit reads one permit row from a query over permitColumns.
func scanPermit(rows *sql.Rows) (models.Permit, error) {
	var p models.Permit
	var issued, applied sql.NullTime
	err := rows.Scan(
		&p.PermitID, &p.City, &p.PermitType, &p.WorkClass, &p.ZipCode,
		&p.District, &p.SquareFootage, &p.Location, &p.Contractor,
		&p.ValuationAmount, &issued, &applied, &p.IngestedAt)
	if err != nil {
		return models.Permit{}, fmt.Errorf("failed to scan permit: %w", err)
	}
	if issued.Valid {
		t := issued.Time
		p.IssuedDate = &t
	}
	if applied.Valid {
		t := applied.Time
		p.AppliedDate = &t
	}
	return p, nil
}

// nullableDate converts an optional date to a driver-friendly value.
func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// mapWriteError classifies engine write failures, surfacing unique-constraint
// violations as ErrDuplicateKey. The driver reports them as plain errors with
// a "Constraint Error: Duplicate key ..." message.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint") &&
		(strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}
