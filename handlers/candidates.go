// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/db"
	"github.com/danielhkuo/quickly-vote/middleware"
	"github.com/danielhkuo/quickly-vote/models"
	"github.com/dustin/go-humanize"
)

type CandidateHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewCandidateHandler(db *sql.DB, cfg cliparse.Config) *CandidateHandler {
	return &CandidateHandler{db: db, cfg: cfg}
}

// ListCandidates handles GET /api/candidates
// Optional ?category= filter.
func (h *CandidateHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	tallies, err := listCandidates(r.Context(), h.db, r.URL.Query().Get("category"))
	if err != nil {
		slog.Error("failed to list candidates", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, tallies)
}

// GetCandidate handles GET /api/candidates/{id}
func (h *CandidateHandler) GetCandidate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "candidate id is required")
		return
	}

	var c models.Candidate
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, name, category, description, image_url, votes, created_at
		FROM candidate
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Category, &c.Description, &c.ImageURL, &c.Votes, db.Time{T: &c.CreatedAt})
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Candidate not found")
		return
	}
	if err != nil {
		slog.Error("failed to query candidate", "error", err, "candidate_id", id)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, tally(c))
}

// listCandidates returns candidates ordered by votes, most first.
func listCandidates(ctx context.Context, conn *sql.DB, category string) ([]models.CandidateTally, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT id, name, category, description, image_url, votes, created_at
		FROM candidate
		WHERE $1 = '' OR category = $1
		ORDER BY votes DESC, name ASC
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tallies := []models.CandidateTally{}
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Category, &c.Description, &c.ImageURL, &c.Votes, db.Time{T: &c.CreatedAt}); err != nil {
			return nil, err
		}
		tallies = append(tallies, tally(c))
	}
	return tallies, rows.Err()
}

func tally(c models.Candidate) models.CandidateTally {
	return models.CandidateTally{
		Candidate:    c,
		VotesDisplay: humanize.Comma(c.Votes),
	}
}
