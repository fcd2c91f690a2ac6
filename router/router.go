// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/quickly-vote/cache"
	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/handlers"
	"github.com/danielhkuo/quickly-vote/middleware"
	"github.com/danielhkuo/quickly-vote/payment"
	"github.com/danielhkuo/quickly-vote/ratelimit"
	"github.com/danielhkuo/quickly-vote/store"
)

// Deps are the long-lived services shared by the handlers.
type Deps struct {
	Processor   handlers.PaymentProcessor
	Payments    *store.Payments
	Credits     payment.CreditDispatcher
	APILimiter  *ratelimit.Limiter
	VoteLimiter *ratelimit.Limiter
	Decisions   cache.Store
}

func NewRouter(db *sql.DB, cfg cliparse.Config, deps Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(deps.Processor, deps.Payments, cfg)
	callbackHandler := handlers.NewCallbackHandler(deps.Payments, deps.Credits, cfg)
	candidateHandler := handlers.NewCandidateHandler(db, cfg)
	adminHandler := handlers.NewAdminHandler(db, deps.Payments, cfg)

	// Client IPs are hashed with the admin key so limiter keys are not reversible
	api := middleware.RateLimit(deps.APILimiter, deps.Decisions, cfg.DecisionTTL, cfg.AdminKey)
	vote := middleware.RateLimit(deps.VoteLimiter, deps.Decisions, cfg.DecisionTTL, cfg.AdminKey)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Payments
	mux.HandleFunc("POST /api/payments", middleware.WithLogging(vote(paymentHandler.ProcessPayment)))
	mux.HandleFunc("GET /api/payments/{key}", middleware.WithLogging(api(paymentHandler.GetPayment)))

	// Gateway callbacks (server to server, not rate limited)
	mux.HandleFunc("POST /api/payments/callback", middleware.WithLogging(callbackHandler.Callback))

	// Candidates (public)
	mux.HandleFunc("GET /api/candidates", middleware.WithLogging(api(candidateHandler.ListCandidates)))
	mux.HandleFunc("GET /api/candidates/{id}", middleware.WithLogging(api(candidateHandler.GetCandidate)))

	// Admin (requires X-Admin-Key)
	mux.HandleFunc("POST /api/admin/candidates", middleware.WithLogging(api(adminHandler.CreateCandidate)))
	mux.HandleFunc("GET /api/admin/tallies", middleware.WithLogging(api(adminHandler.Tallies)))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("quickly-vote API v1"))
	})

	return mux
}
