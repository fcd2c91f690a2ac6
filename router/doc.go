// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Quickly Vote API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg, router.Deps{
		Processor:   orchestrator,
		Payments:    payments,
		Credits:     queue,
		APILimiter:  apiLimiter,
		VoteLimiter: voteLimiter,
		Decisions:   decisionCache,
	})

# Endpoints

Health:

	GET /health

Payments (vote limiter):

	POST /api/payments       - Pay for votes
	GET  /api/payments/{key} - Poll a payment by idempotency key (API limiter)

Gateway callbacks (no limiter, optional HMAC signature):

	POST /api/payments/callback

Candidates (public, API limiter):

	GET /api/candidates      - Standings, most votes first
	GET /api/candidates/{id} - One candidate

Admin (requires X-Admin-Key, API limiter):

	POST /api/admin/candidates - Create candidate
	GET  /api/admin/tallies    - Standings and payment counts

# Rate Limiting

Two limiters guard the API. The vote limiter is more generous because a
single voter commonly pays several times in a row. Rejections are cached in
Decisions for a short TTL so a flood from one client short-circuits before
reaching the limiter.
*/
package router
