// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start (request_id, method, path, remote) and completion
(status, duration_ms). An incoming X-Request-ID is reused, otherwise one is
generated and echoed in the response.

# Rate Limiting

RateLimit puts a ratelimit.Limiter in front of a handler, keyed by the
hashed client IP:

	vote := middleware.RateLimit(voteLimiter, decisions, 500*time.Millisecond, salt)
	mux.HandleFunc("POST /api/payments", middleware.WithLogging(vote(h.ProcessPayment)))

Rejected requests get 429, a Retry-After header and a PaymentResult body.
Rejections are memoized in a cache.Store until the earlier of the TTL and
the window reset; admissions always go through the limiter.

# Panic Recovery

	handler = middleware.Recover(cfg.DevMode)(handler)

A panic becomes a 500 ErrorResponse. The panic value is only included when
detail is true.

# CORS Middleware

Enable cross-origin requests for frontend access:

	server := http.Server{
		Handler: middleware.CORS(mux),
	}

Allows methods GET, POST, PUT, DELETE, OPTIONS with headers
Content-Type, Authorization, X-Admin-Key, Idempotency-Key, X-Gateway-Signature.

# JSON Helpers

Write JSON responses:

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

Parse JSON request bodies (capped at 1 MiB):

	var req models.PaymentRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# Client IP Extraction

Get the original client IP (handles X-Forwarded-For, X-Real-IP):

	ip := middleware.GetClientIP(r)

Used for rate limiter keys.
*/
package middleware
