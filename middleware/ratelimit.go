// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/danielhkuo/quickly-vote/auth"
	"github.com/danielhkuo/quickly-vote/cache"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/ratelimit"
)

const rateLimitedMessage = "Too many requests. Please try again later."

// RateLimit admits requests through limiter, keyed by hashed client IP.
// Rejections are memoized in decisions for at most ttl (never past the
// window reset) so a hot client stops reaching the limiter; admissions are
// never cached. decisions may be nil.
func RateLimit(limiter *ratelimit.Limiter, decisions cache.Store, ttl time.Duration, salt string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := limiter.Name() + ":" + auth.HashIP(GetClientIP(r), salt)
			cacheKey := "ratelimit:" + key
			now := time.Now()

			if decisions != nil {
				if raw, ok := decisions.Get(r.Context(), cacheKey); ok {
					var d ratelimit.Decision
					if err := json.Unmarshal(raw, &d); err == nil && !d.Allowed && d.ResetAt.After(now) {
						reject(w, d, now)
						return
					}
				}
			}

			d := limiter.Check(key)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				slog.Warn("rate limit exceeded", "limiter", limiter.Name(), "key", key, "reset_at", d.ResetAt)
				if decisions != nil {
					remember(r, decisions, cacheKey, d, ttl, now)
				}
				reject(w, d, now)
				return
			}

			next(w, r)
		}
	}
}

func remember(r *http.Request, decisions cache.Store, key string, d ratelimit.Decision, ttl time.Duration, now time.Time) {
	if untilReset := d.ResetAt.Sub(now); untilReset < ttl {
		ttl = untilReset
	}
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	decisions.Set(r.Context(), key, raw, ttl)
}

func reject(w http.ResponseWriter, d ratelimit.Decision, now time.Time) {
	retry := int(math.Ceil(d.RetryAfter(now).Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("X-RateLimit-Remaining", "0")
	JSONResponse(w, http.StatusTooManyRequests, models.PaymentResult{
		Status:  false,
		Message: rateLimitedMessage,
	})
}
