package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
)

const eventColumns = `id, type, booking_id, session_id, payment_ref, account_id, account_status, amount, payload,
	received_at, processed_at, outcome, attempts, last_error`

type PaymentEventRepository struct {
	DB *sql.DB
}

func NewPaymentEventRepository(db *sql.DB) *PaymentEventRepository {
	return &PaymentEventRepository{DB: db}
}

func (r *PaymentEventRepository) RecordEvent(ctx context.Context, e *db.PaymentEvent) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO payment_events (id, type, booking_id, session_id, payment_ref, account_id, account_status, amount, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Type, e.BookingID, e.SessionID, e.PaymentRef, e.AccountID, e.AccountStatus, e.Amount, e.Payload, e.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("error recording payment event %s: %w", e.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PaymentEventRepository) GetEvent(ctx context.Context, id string) (*db.PaymentEvent, error) {
	e, err := scanEvent(r.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM payment_events WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get payment event %s: %w", id, notFound(err, apperrors.ErrNotFound))
	}
	return e, nil
}

func (r *PaymentEventRepository) MarkEventProcessed(ctx context.Context, id, outcome string, now time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE payment_events SET processed_at = $2, outcome = $3, attempts = attempts + 1, last_error = ''
		WHERE id = $1 AND processed_at IS NULL`, id, now, outcome)
	if err != nil {
		return fmt.Errorf("error marking payment event %s processed: %w", id, err)
	}
	return nil
}

func (r *PaymentEventRepository) MarkEventFailed(ctx context.Context, id, errMsg string, terminal bool, now time.Time) error {
	query := `UPDATE payment_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1 AND processed_at IS NULL`
	args := []interface{}{id, errMsg}
	if terminal {
		query = `UPDATE payment_events SET attempts = attempts + 1, last_error = $2, processed_at = $3, outcome = 'rejected'
			WHERE id = $1 AND processed_at IS NULL`
		args = append(args, now)
	}
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error marking payment event %s failed: %w", id, err)
	}
	return nil
}

func (r *PaymentEventRepository) ListPendingEvents(ctx context.Context, maxAttempts, limit int) ([]db.PaymentEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM payment_events
		WHERE processed_at IS NULL AND attempts < $1
		ORDER BY received_at
		LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying pending payment events: %w", err)
	}
	defer rows.Close()

	var events []db.PaymentEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning payment event: %w", err)
		}
		events = append(events, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating payment event rows: %w", err)
	}
	return events, nil
}

func (r *PaymentEventRepository) CreateCompensation(ctx context.Context, c *db.Compensation) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO compensations (id, booking_id, payment_ref, event_id, amount, reason, refund_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', $7, $8, $8)
		ON CONFLICT (booking_id, payment_ref) DO NOTHING`,
		c.ID, c.BookingID, c.PaymentRef, c.EventID, c.Amount, c.Reason, c.Status, c.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("error creating compensation for booking %s: %w", c.BookingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PaymentEventRepository) UpdateCompensation(ctx context.Context, id string, status db.CompensationStatus, refundID string, now time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE compensations SET status = $2, refund_id = $3, updated_at = $4 WHERE id = $1`,
		id, status, refundID, now)
	if err != nil {
		return fmt.Errorf("error updating compensation %s: %w", id, err)
	}
	return nil
}

func scanEvent(row rowScanner) (*db.PaymentEvent, error) {
	var e db.PaymentEvent
	var processedAt sql.NullTime
	err := row.Scan(&e.ID, &e.Type, &e.BookingID, &e.SessionID, &e.PaymentRef, &e.AccountID, &e.AccountStatus, &e.Amount, &e.Payload,
		&e.ReceivedAt, &processedAt, &e.Outcome, &e.Attempts, &e.LastError)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		e.ProcessedAt = &processedAt.Time
	}
	return &e, nil
}
