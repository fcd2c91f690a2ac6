// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ratelimit implements a fixed-window limiter with a burst allowance.

Each key may make Limit requests per Window. Once those are used up, a
further BurstLimit requests are admitted and the window is extended by
BurstExtension. Anything past that is rejected until the window resets,
and nothing carries over into the next window.

	l := ratelimit.New(ratelimit.Config{Name: "vote", Limit: 300, Window: time.Minute,
		BurstLimit: 100, BurstExtension: 10 * time.Second, SweepInterval: time.Minute})
	defer l.Close()

	if d := l.Check(key); !d.Allowed {
		retry := d.RetryAfter(time.Now())
	}

Counters live in process memory. Expired windows are removed by Sweep,
which runs periodically when SweepInterval is positive.
*/
package ratelimit
