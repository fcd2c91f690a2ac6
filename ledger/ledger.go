// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("candidate not found")
	ErrAlreadyCredited = errors.New("payment already credited")
	ErrInvalidCount    = errors.New("vote count must be positive")
)

// Credit is one payment's worth of votes for a candidate.
type Credit struct {
	PaymentKey  string `json:"payment_key"`
	CandidateID string `json:"candidate_id"`
	Votes       int64  `json:"votes"`
}

// VotesFor converts a paid amount to votes: max(1, floor(amount/price)).
func VotesFor(amount, pricePerVote decimal.Decimal) int64 {
	if !pricePerVote.IsPositive() {
		return 1
	}
	n := amount.Div(pricePerVote).Floor().IntPart()
	if n < 1 {
		return 1
	}
	return n
}

// Ledger applies vote increments to candidate counters.
type Ledger struct {
	conn *sql.DB
	now  func() time.Time
}

func New(conn *sql.DB) *Ledger {
	return &Ledger{conn: conn, now: time.Now}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Increment adds count votes to a candidate in a single UPDATE.
func (l *Ledger) Increment(ctx context.Context, candidateID string, count int64) error {
	return increment(ctx, l.conn, candidateID, count)
}

func increment(ctx context.Context, ex execer, candidateID string, count int64) error {
	if count < 1 {
		return ErrInvalidCount
	}

	res, err := ex.ExecContext(ctx, `
		UPDATE candidate SET votes = votes + $1 WHERE id = $2
	`, count, candidateID)
	if err != nil {
		return fmt.Errorf("failed to increment votes: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to increment votes: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, candidateID)
	}
	return nil
}

// Credit applies c at most once per payment key. A repeat delivery returns
// ErrAlreadyCredited without touching the counter.
func (l *Ledger) Credit(ctx context.Context, c Credit) error {
	if c.PaymentKey == "" {
		return errors.New("credit has no payment key")
	}
	if c.Votes < 1 {
		return ErrInvalidCount
	}

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO vote_credit (payment_key, candidate_id, votes, credited_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_key) DO NOTHING
	`, c.PaymentKey, c.CandidateID, c.Votes, l.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record vote credit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record vote credit: %w", err)
	}
	if n == 0 {
		return ErrAlreadyCredited
	}

	if err := increment(ctx, tx, c.CandidateID, c.Votes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vote credit: %w", err)
	}
	return nil
}

// Votes returns a candidate's current counter.
func (l *Ledger) Votes(ctx context.Context, candidateID string) (int64, error) {
	var votes int64
	err := l.conn.QueryRowContext(ctx, `
		SELECT votes FROM candidate WHERE id = $1
	`, candidateID).Scan(&votes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, candidateID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query votes: %w", err)
	}
	return votes, nil
}
