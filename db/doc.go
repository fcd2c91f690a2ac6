// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the database and creates the schema.

# Connecting

Open supports PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite):

	conn, err := db.Open(ctx, "postgres", "postgres://...")
	conn, err := db.Open(ctx, "sqlite", "file:votes.db")

SQLite is limited to a single open connection. Code holding a transaction
must not issue queries on the bare *sql.DB or it will wait forever.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
The DDL and every query in the module stick to SQL both engines accept:
$N placeholders, ON CONFLICT upserts and RETURNING.

# Tables

  - candidate: Vote recipients and their running totals
  - payment_request: One row per idempotency key
  - vote_credit: One row per credited payment

# Timestamps

SQLite returns timestamps as text. Scan them through Time:

	var created time.Time
	row.Scan(db.Time{T: &created})
*/
package db
