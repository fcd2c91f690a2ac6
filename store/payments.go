// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/quickly-vote/db"
	"github.com/danielhkuo/quickly-vote/models"
)

var (
	ErrNotFound      = errors.New("payment request not found")
	ErrInvalidStatus = errors.New("invalid payment status")
)

// Payments persists PaymentRecords keyed by idempotency key.
type Payments struct {
	conn *sql.DB
	now  func() time.Time
}

func NewPayments(conn *sql.DB) *Payments {
	return &Payments{conn: conn, now: time.Now}
}

const paymentColumns = `
	idempotency_key, amount, candidate_id, channel_code, phone_number,
	payment_method, first_name, second_name, show_names, show_number,
	status, message, transaction_id, checkout_url, created_at, updated_at`

// Upsert creates the record for rec.IdempotencyKey or updates it in place.
// Status and message change only when the status moves forward
// (pending, processing, then completed or failed), and a transaction id or
// checkout URL that is already set is never overwritten. Returns the stored row.
func (p *Payments) Upsert(ctx context.Context, rec models.PaymentRecord) (models.PaymentRecord, error) {
	if !validStatus(rec.Status) {
		return models.PaymentRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status)
	}

	now := p.now().UTC()
	row := p.conn.QueryRowContext(ctx, `
		INSERT INTO payment_request (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			status = CASE
				WHEN `+statusRank("excluded.status")+` > `+statusRank("payment_request.status")+` THEN excluded.status
				ELSE payment_request.status
			END,
			message = CASE
				WHEN `+statusRank("excluded.status")+` > `+statusRank("payment_request.status")+` THEN excluded.message
				ELSE payment_request.message
			END,
			transaction_id = COALESCE(payment_request.transaction_id, excluded.transaction_id),
			checkout_url = COALESCE(payment_request.checkout_url, excluded.checkout_url),
			updated_at = excluded.updated_at
		RETURNING `+paymentColumns,
		rec.IdempotencyKey, rec.Amount, rec.CandidateID, rec.ChannelCode, rec.PhoneNumber,
		rec.PaymentMethod, rec.FirstName, rec.SecondName, rec.ShowNames, rec.ShowNumber,
		rec.Status, rec.Message, nullable(rec.TransactionID), nullable(rec.CheckoutURL), now, now,
	)

	stored, err := scanPayment(row)
	if err != nil {
		return models.PaymentRecord{}, fmt.Errorf("failed to upsert payment request: %w", err)
	}
	return stored, nil
}

// FindByKey looks a record up by idempotency key.
func (p *Payments) FindByKey(ctx context.Context, key string) (models.PaymentRecord, error) {
	row := p.conn.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_request
		WHERE idempotency_key = $1
	`, key)
	return p.found(scanPayment(row))
}

// FindByTransactionID looks a record up by the gateway's transaction id.
func (p *Payments) FindByTransactionID(ctx context.Context, txID string) (models.PaymentRecord, error) {
	row := p.conn.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_request
		WHERE transaction_id = $1
	`, txID)
	return p.found(scanPayment(row))
}

// Reconcile applies an out-of-band status update from the gateway. The
// record is located by transaction id first, then by idempotency key.
// Updates to a record already in a terminal state are ignored; the current
// row is returned either way.
func (p *Payments) Reconcile(ctx context.Context, key, txID, status, message string) (models.PaymentRecord, error) {
	if status != models.StatusCompleted && status != models.StatusFailed && status != models.StatusProcessing {
		return models.PaymentRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	if txID == "" && key == "" {
		return models.PaymentRecord{}, ErrNotFound
	}

	var (
		rec models.PaymentRecord
		err error
	)
	if txID != "" {
		rec, err = p.FindByTransactionID(ctx, txID)
	}
	if (txID == "" || errors.Is(err, ErrNotFound)) && key != "" {
		rec, err = p.FindByKey(ctx, key)
	}
	if err != nil {
		return models.PaymentRecord{}, err
	}

	if models.IsTerminal(rec.Status) {
		return rec, nil
	}

	var tx *string
	if txID != "" {
		tx = &txID
	}

	row := p.conn.QueryRowContext(ctx, `
		UPDATE payment_request
		SET status = $1,
		    message = $2,
		    transaction_id = COALESCE(transaction_id, $3),
		    updated_at = $4
		WHERE idempotency_key = $5
		  AND status NOT IN ('completed', 'failed')
		RETURNING `+paymentColumns,
		status, message, nullable(tx), p.now().UTC(), rec.IdempotencyKey,
	)
	updated, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Settled concurrently; report what is stored now.
		return p.FindByKey(ctx, rec.IdempotencyKey)
	}
	if err != nil {
		return models.PaymentRecord{}, fmt.Errorf("failed to reconcile payment request: %w", err)
	}
	return updated, nil
}

// CountByStatus returns the number of payment requests per status.
func (p *Payments) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := p.conn.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM payment_request
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count payment requests: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusCompleted:  0,
		models.StatusFailed:     0,
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan payment count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (p *Payments) found(rec models.PaymentRecord, err error) (models.PaymentRecord, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return models.PaymentRecord{}, ErrNotFound
	}
	if err != nil {
		return models.PaymentRecord{}, fmt.Errorf("failed to query payment request: %w", err)
	}
	return rec, nil
}

func scanPayment(row *sql.Row) (models.PaymentRecord, error) {
	var (
		rec      models.PaymentRecord
		txID     sql.NullString
		checkout sql.NullString
	)
	err := row.Scan(
		&rec.IdempotencyKey, &rec.Amount, &rec.CandidateID, &rec.ChannelCode, &rec.PhoneNumber,
		&rec.PaymentMethod, &rec.FirstName, &rec.SecondName, &rec.ShowNames, &rec.ShowNumber,
		&rec.Status, &rec.Message, &txID, &checkout, db.Time{T: &rec.CreatedAt}, db.Time{T: &rec.UpdatedAt},
	)
	if err != nil {
		return models.PaymentRecord{}, err
	}
	if txID.Valid {
		rec.TransactionID = &txID.String
	}
	if checkout.Valid {
		rec.CheckoutURL = &checkout.String
	}
	return rec, nil
}

func nullable(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// statusRank renders models.StatusRank as SQL over col.
func statusRank(col string) string {
	return fmt.Sprintf(`(CASE %s WHEN '%s' THEN %d WHEN '%s' THEN %d ELSE %d END)`,
		col,
		models.StatusPending, models.StatusRank(models.StatusPending),
		models.StatusProcessing, models.StatusRank(models.StatusProcessing),
		models.StatusRank(models.StatusCompleted))
}

func validStatus(s string) bool {
	switch s {
	case models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed:
		return true
	}
	return false
}
