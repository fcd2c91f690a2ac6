// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides credential checks and hashing utilities.

# Admin Keys

Admin endpoints require the X-Admin-Key header to match the configured
ADMIN_KEY. The comparison is constant time:

	err := auth.ValidateAdminKey(r.Header.Get("X-Admin-Key"), cfg.AdminKey)

An empty configured key rejects every request.

# Callback Signatures

When CALLBACK_SECRET is set, the gateway signs each callback body with
HMAC-SHA256 and sends the hex digest in X-Gateway-Signature:

	sig := auth.SignCallback(body, secret)
	err := auth.VerifyCallback(body, r.Header.Get("X-Gateway-Signature"), secret)

A "sha256=" prefix on the header value is accepted.

# ID Generation

Random hex IDs, used for request IDs:

	id, err := auth.GenerateID(8)  // 16 hex characters

# IP Hashing

Rate limiter keys are built from hashed client IPs so raw addresses never
reach the limiter map or a shared cache:

	hash := auth.HashIP(ipAddress, salt)

Returns first 8 bytes (16 hex chars) of HMAC-SHA256.
*/
package auth
