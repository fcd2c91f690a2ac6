// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

A .env file in the working directory is loaded first (godotenv). Variables
already present in the environment are not overwritten.

# CLI Flags

	-p          Server port
	-d          Database URL
	-t          Database type (sqlite or postgres)
	-g          Payment gateway URL
	--admin-key Admin key (prefer env)
	--env-file  Extra .env file to load

CLI flags take precedence over environment variables.

# Environment Variables

Required:

	DATABASE_URL  → -d
	GATEWAY_URL   → -g
	ADMIN_KEY     → --admin-key

Optional (defaults in parentheses):

	PORT (3318), DATABASE_TYPE (sqlite)
	CALLBACK_SECRET (unset, callbacks unsigned)
	GATEWAY_TIMEOUT (30s), STORE_TIMEOUT (5s)
	PRICE_PER_VOTE (10), MIN_AMOUNT (1)
	API_RATE_LIMIT (100), API_RATE_WINDOW (1m), API_BURST_LIMIT (20), API_BURST_EXTENSION (10s)
	VOTE_RATE_LIMIT (300), VOTE_RATE_WINDOW (1m), VOTE_BURST_LIMIT (100), VOTE_BURST_EXTENSION (10s)
	DECISION_TTL (500ms)
	REDIS_ADDR (unset, in-process decision cache)
	KAFKA_BROKERS (unset, in-process credit queue)
	CREDIT_WORKERS (4)
	APP_ENV (development enables panic details in responses)
	LOG_LEVEL (info), LOG_FORMAT (text or json)

# Validation

ParseFlags returns an error if a required value is missing or an optional
one does not parse. Durations use time.ParseDuration syntax and must be
positive; money values must be positive decimals.
*/
package cliparse
