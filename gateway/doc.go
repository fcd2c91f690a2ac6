// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package gateway is the HTTP client for the upstream payment gateway.

Client.Charge posts a ChargeRequest as JSON with a bearer token and the
payment's idempotency key, and classifies failures:

  - *DeclinedError (errors.Is ErrDeclined): the gateway answered and said no
  - *UnreachableError (errors.Is ErrUnreachable): transport failure, timeout,
    malformed response, or the circuit breaker is open

Only unreachable failures count against the circuit breaker. After five
requests with at least 60% failing it opens for 30 seconds and charges fail
fast without touching the network.
*/
package gateway
