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
	"time"

	"github.com/google/uuid"

	"github.com/permitwatch/permitwatch/internal/models"
)

const subscriptionColumns = `id, email, display_name, city_filter,
	work_class_filter, frequency, active, created_at, last_sent`

// CreateSubscription persists a new subscription, assigning ID and CreatedAt.
func (db *DB) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	sub.ID = uuid.New().String()
	sub.CreatedAt = time.Now().UTC()
	sub.LastSent = nil

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		sub.ID, sub.Email, sub.DisplayName, sub.CityFilter,
		sub.WorkClassFilter, string(sub.Frequency), sub.Active, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetSubscription returns a subscription by id, or ErrNotFound.
func (db *DB) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s: %w", id, err)
	}
	return sub, nil
}

// ListSubscriptions returns all subscriptions, newest first.
func (db *DB) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	return db.listSubscriptions(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		ORDER BY created_at DESC, id`)
}

// ListActiveSubscriptions returns active subscriptions only. The digest
// pipeline derives its cohorts from this snapshot.
func (db *DB) ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	return db.listSubscriptions(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE active ORDER BY created_at, id`)
}

func (db *DB) listSubscriptions(ctx context.Context, query string) ([]models.Subscription, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]models.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return subs, nil
}

// UpdateSubscription rewrites the mutable fields of an existing subscription.
// ID, CreatedAt and LastSent are not touched.
func (db *DB) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx, `
		UPDATE subscriptions
		SET email = ?, display_name = ?, city_filter = ?,
		    work_class_filter = ?, frequency = ?, active = ?
		WHERE id = ?`,
		sub.Email, sub.DisplayName, sub.CityFilter, sub.WorkClassFilter,
		string(sub.Frequency), sub.Active, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to update subscription %s: %w", sub.ID, err)
	}
	return requireRowAffected(result)
}

// DeleteSubscription removes a subscription by id, or returns ErrNotFound.
func (db *DB) DeleteSubscription(ctx context.Context, id string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", id, err)
	}
	return requireRowAffected(result)
}

// TouchLastSent records a successful dispatch for every given subscription.
// Called once per cohort after the transport confirms acceptance; a failed
// dispatch leaves last_sent untouched.
func (db *DB) TouchLastSent(ctx context.Context, ids []string, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	for _, id := range ids {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE subscriptions SET last_sent = ? WHERE id = ?`, sentAt, id)
		if err != nil {
			return fmt.Errorf("failed to update last_sent for %s: %w", id, err)
		}
	}
	return nil
}

// requireRowAffected maps a zero-row write to ErrNotFound.
func requireRowAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read write result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var frequency string
	var lastSent sql.NullTime
	err := row.Scan(&sub.ID, &sub.Email, &sub.DisplayName, &sub.CityFilter,
		&sub.WorkClassFilter, &frequency, &sub.Active, &sub.CreatedAt, &lastSent)
	if err != nil {
		return nil, err
	}
	sub.Frequency = models.Frequency(frequency)
	if lastSent.Valid {
		t := lastSent.Time
		sub.LastSent = &t
	}
	return &sub, nil
}
