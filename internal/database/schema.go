// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package database

import (
	"context"
	"fmt"
)

// schemaStatements creates the tables and indexes. Statements are idempotent
// so startup can run them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS permits (
		permit_id        VARCHAR NOT NULL,
		city             VARCHAR NOT NULL,
		permit_type      VARCHAR DEFAULT '',
		work_class       VARCHAR DEFAULT '',
		zip_code         VARCHAR DEFAULT '',
		district         VARCHAR DEFAULT '',
		square_footage   VARCHAR DEFAULT '',
		location         VARCHAR DEFAULT '',
		contractor       VARCHAR DEFAULT '',
		valuation_amount VARCHAR DEFAULT '',
		issued_date      DATE,
		applied_date     DATE,
		ingested_at      TIMESTAMP NOT NULL,
		UNIQUE (permit_id, city)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_permits_city ON permits(city)`,
	`CREATE INDEX IF NOT EXISTS idx_permits_work_class ON permits(work_class)`,
	`CREATE INDEX IF NOT EXISTS idx_permits_ingested_at ON permits(ingested_at)`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		id                VARCHAR PRIMARY KEY,
		email             VARCHAR NOT NULL,
		display_name      VARCHAR DEFAULT '',
		city_filter       VARCHAR NOT NULL,
		work_class_filter VARCHAR NOT NULL,
		frequency         VARCHAR NOT NULL DEFAULT 'daily',
		active            BOOLEAN NOT NULL DEFAULT true,
		created_at        TIMESTAMP NOT NULL,
		last_sent         TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_subscriptions_active ON subscriptions(active)`,
}

// initSchema applies all schema statements.
func (db *DB) initSchema(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
