// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	// Some drivers refuse multi-statement Exec, so run them one at a time.
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Portable across PostgreSQL and SQLite: no NOW(), no JSONB.
const schema = `
-- Candidates
CREATE TABLE IF NOT EXISTS candidate (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    image_url TEXT NOT NULL DEFAULT '',
    votes BIGINT NOT NULL DEFAULT 0 CHECK (votes >= 0),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_candidate_category ON candidate(category);

-- Payment requests, one row per idempotency key
CREATE TABLE IF NOT EXISTS payment_request (
    idempotency_key TEXT PRIMARY KEY,
    amount NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
    candidate_id TEXT NOT NULL,
    channel_code INTEGER NOT NULL,
    phone_number TEXT NOT NULL,
    payment_method TEXT NOT NULL,
    first_name TEXT NOT NULL DEFAULT '',
    second_name TEXT NOT NULL DEFAULT '',
    show_names BOOLEAN NOT NULL DEFAULT FALSE,
    show_number BOOLEAN NOT NULL DEFAULT TRUE,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
    message TEXT NOT NULL DEFAULT '',
    transaction_id TEXT UNIQUE,
    checkout_url TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_payment_request_status ON payment_request(status);
CREATE INDEX IF NOT EXISTS idx_payment_request_candidate ON payment_request(candidate_id);

-- Applied vote credits, one per payment
CREATE TABLE IF NOT EXISTS vote_credit (
    payment_key TEXT PRIMARY KEY,
    candidate_id TEXT NOT NULL,
    votes BIGINT NOT NULL CHECK (votes > 0),
    credited_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_vote_credit_candidate ON vote_credit(candidate_id);
`
