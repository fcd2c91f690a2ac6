// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/quickly-vote/auth"
	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/middleware"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/danielhkuo/quickly-vote/store"
	"github.com/google/uuid"
)

type AdminHandler struct {
	db       *sql.DB
	payments *store.Payments
	cfg      cliparse.Config
}

func NewAdminHandler(db *sql.DB, payments *store.Payments, cfg cliparse.Config) *AdminHandler {
	return &AdminHandler{db: db, payments: payments, cfg: cfg}
}

func (h *AdminHandler) authorized(w http.ResponseWriter, r *http.Request) bool {
	if err := auth.ValidateAdminKey(r.Header.Get("X-Admin-Key"), h.cfg.AdminKey); err != nil {
		slog.Warn("admin request rejected", "path", r.URL.Path, "remote", middleware.GetClientIP(r))
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return false
	}
	return true
}

// CreateCandidate handles POST /api/admin/candidates
func (h *AdminHandler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	var req models.CreateCandidateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}

	candidateID := uuid.NewString()

	_, err := h.db.ExecContext(r.Context(), `
		INSERT INTO candidate (id, name, category, description, image_url, votes, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
	`, candidateID, req.Name, strings.TrimSpace(req.Category), req.Description, req.ImageURL, time.Now().UTC())
	if err != nil {
		slog.Error("failed to insert candidate", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create candidate")
		return
	}

	slog.Info("candidate created", "candidate_id", candidateID, "name", req.Name)

	middleware.JSONResponse(w, http.StatusCreated, models.CreateCandidateResponse{
		CandidateID: candidateID,
	})
}

// Tallies handles GET /api/admin/tallies
func (h *AdminHandler) Tallies(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}

	candidates, err := listCandidates(r.Context(), h.db, r.URL.Query().Get("category"))
	if err != nil {
		slog.Error("failed to list candidates", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	byStatus, err := h.payments.CountByStatus(r.Context())
	if err != nil {
		slog.Error("failed to count payments", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var total int64
	for _, c := range candidates {
		total += c.Votes
	}

	middleware.JSONResponse(w, http.StatusOK, models.TalliesResponse{
		Candidates:       candidates,
		TotalVotes:       total,
		PaymentsByStatus: byStatus,
	})
}
