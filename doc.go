// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Quickly Vote API server.

Quickly Vote sells votes: a voter pays a mobile-money or card gateway and
the chosen candidate is credited one vote per PRICE_PER_VOTE paid. Every
payment carries an idempotency key so retries never charge or credit
twice.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=votes.db GATEWAY_URL=https://... ADMIN_KEY=... go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..." -g "https://..."

# Configuration

Required settings:

  - DATABASE_URL (-d): PostgreSQL connection string or SQLite file
  - GATEWAY_URL (-g): Payment gateway charge endpoint
  - ADMIN_KEY (--admin-key): Secret for admin endpoints

See package cliparse for the optional settings.

# Architecture

  - handlers: HTTP request handlers (payments, callbacks, candidates, admin)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, panic recovery, rate limiting, JSON helpers
  - payment: Orchestrates validation, gateway charge, persistence, crediting
  - gateway: HTTP client for the payment gateway with a circuit breaker
  - store: Payment records keyed by idempotency key
  - ledger: Vote crediting, in-process queue or Kafka
  - ratelimit: Fixed-window limiter with burst allowance
  - cache: Short-lived rate limit decisions, in memory or Redis
  - phone: Kenyan MSISDN normalization and masking
  - models: Request/response types
  - auth: Admin key and callback signature checks
  - db: Connection and schema creation
  - cliparse: Configuration parsing

On SIGINT or SIGTERM the server stops accepting requests, waits for
in-flight ones, then drains pending vote credits before closing the
database.

See package documentation for each component.
*/
package main
