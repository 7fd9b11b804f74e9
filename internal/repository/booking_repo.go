package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
)

const maxTxAttempts = 3

const bookingColumns = `id, organization_id, service_id, start_time, end_time, duration_minutes, price, currency,
	buffer_before_minutes, buffer_after_minutes, customer_name, customer_email, customer_phone, customer_language,
	status, created_at, expires_at, updated_at, payment_session_id, payment_url, payment_ref`

type BookingRepository struct {
	DB *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{DB: db}
}

func (r *BookingRepository) ListBlockingBookings(ctx context.Context, serviceID string, from, to, now time.Time) ([]db.Booking, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE service_id = $1
			AND (status = 'confirmed' OR (status = 'held' AND expires_at > $4))
			AND occupied_start < $3 AND occupied_end > $2
		ORDER BY start_time`, serviceID, from, to, now)
	if err != nil {
		return nil, fmt.Errorf("error querying blocking bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

// InsertHold is the only place a slot becomes taken. Inside one SERIALIZABLE
// transaction it lazily releases expired holds in the way, checks for a live
// overlap and inserts. The bookings_no_overlap exclusion constraint backs the
// check; both outcomes surface as ErrSlotConflict. Serialization failures are
// retried so the loser of a race re-reads the winner's row.
func (r *BookingRepository) InsertHold(ctx context.Context, b *db.Booking) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = withSerializableTx(ctx, r.DB, func(tx *sql.Tx) error {
			return insertHoldTx(ctx, tx, b)
		})
		if err == nil || !isRetryable(err) {
			break
		}
	}
	switch {
	case err == nil:
		return nil
	case pqCode(err) == pqExclusionViolation, isRetryable(err):
		return fmt.Errorf("insert hold for %s: %w", b.StartTime.Format(time.RFC3339), apperrors.ErrSlotConflict)
	}
	return err
}

func insertHoldTx(ctx context.Context, tx *sql.Tx, b *db.Booking) error {
	occStart, occEnd := b.OccupiedStart(), b.OccupiedEnd()
	now := b.CreatedAt

	_, err := tx.ExecContext(ctx, `
		UPDATE bookings SET status = 'released', updated_at = $2
		WHERE service_id = $1 AND status = 'held' AND expires_at <= $2
			AND occupied_start < $4 AND occupied_end > $3`,
		b.ServiceID, now, occStart, occEnd)
	if err != nil {
		return fmt.Errorf("release stale holds: %w", err)
	}

	var taken bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE service_id = $1 AND status IN ('held', 'confirmed')
				AND occupied_start < $3 AND occupied_end > $2
		)`, b.ServiceID, occStart, occEnd).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if taken {
		return apperrors.ErrSlotConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (id, organization_id, service_id, start_time, end_time, duration_minutes, price, currency,
			buffer_before_minutes, buffer_after_minutes, occupied_start, occupied_end,
			customer_name, customer_email, customer_phone, customer_language,
			status, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 'held', $17, $18, $17)`,
		b.ID, b.OrganizationID, b.ServiceID, b.StartTime, b.EndTime, b.DurationMinutes, b.Price, b.Currency,
		b.BufferBeforeMin, b.BufferAfterMin, occStart, occEnd,
		b.Customer.Name, b.Customer.Email, b.Customer.Phone, b.Customer.Language,
		now, b.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	b.Status = db.StatusHeld
	b.UpdatedAt = now
	return nil
}

func (r *BookingRepository) GetBooking(ctx context.Context, id string) (*db.Booking, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, notFound(err, apperrors.ErrBookingNotFound))
	}
	return b, nil
}

func (r *BookingRepository) Transition(ctx context.Context, id string, to db.BookingStatus, paymentRef string, now time.Time) (bool, error) {
	if !db.StatusHeld.CanTransitionTo(to) {
		return false, fmt.Errorf("transition to %s: %w", to, apperrors.ErrInvalidTransition)
	}
	query := `
		UPDATE bookings
		SET status = $2, updated_at = $3, payment_ref = COALESCE(NULLIF($4, ''), payment_ref)
		WHERE id = $1 AND status = 'held'`
	if to != db.StatusReleased {
		query += ` AND expires_at > $3`
	}
	res, err := r.DB.ExecContext(ctx, query, id, to, now, paymentRef)
	if err != nil {
		return false, fmt.Errorf("transition booking %s to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *BookingRepository) AttachPaymentSession(ctx context.Context, id, sessionID, url string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE bookings SET payment_session_id = $2, payment_url = $3, updated_at = $4
		WHERE id = $1 AND status = 'held' AND expires_at > $4`, id, sessionID, url, now)
	if err != nil {
		return false, fmt.Errorf("attach payment session to booking %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *BookingRepository) ListBookings(ctx context.Context, f BookingFilter) ([]db.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE organization_id = $1`
	args := []interface{}{f.OrganizationID}
	idx := 2

	if f.ServiceID != "" {
		query += " AND service_id = $" + strconv.Itoa(idx)
		args = append(args, f.ServiceID)
		idx++
	}
	switch {
	case f.Status == "":
	case f.Now.IsZero():
		query += " AND status = $" + strconv.Itoa(idx)
		args = append(args, f.Status)
		idx++
	case f.Status == db.StatusHeld:
		query += " AND status = 'held' AND expires_at > $" + strconv.Itoa(idx)
		args = append(args, f.Now)
		idx++
	case f.Status == db.StatusReleased:
		query += " AND (status = 'released' OR (status = 'held' AND expires_at <= $" + strconv.Itoa(idx) + "))"
		args = append(args, f.Now)
		idx++
	default:
		query += " AND status = $" + strconv.Itoa(idx)
		args = append(args, f.Status)
		idx++
	}
	if !f.From.IsZero() {
		query += " AND start_time >= $" + strconv.Itoa(idx)
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		query += " AND start_time < $" + strconv.Itoa(idx)
		args = append(args, f.To)
		idx++
	}
	query += " ORDER BY start_time"
	if f.Limit > 0 {
		query += " LIMIT $" + strconv.Itoa(idx)
		args = append(args, f.Limit)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

func withSerializableTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanBooking(row rowScanner) (*db.Booking, error) {
	var b db.Booking
	var price sql.NullInt64
	err := row.Scan(&b.ID, &b.OrganizationID, &b.ServiceID, &b.StartTime, &b.EndTime, &b.DurationMinutes, &price, &b.Currency,
		&b.BufferBeforeMin, &b.BufferAfterMin, &b.Customer.Name, &b.Customer.Email, &b.Customer.Phone, &b.Customer.Language,
		&b.Status, &b.CreatedAt, &b.ExpiresAt, &b.UpdatedAt, &b.PaymentSessionID, &b.PaymentURL, &b.PaymentRef)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		b.Price = &price.Int64
	}
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]db.Booking, error) {
	var bookings []db.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating booking rows: %w", err)
	}
	return bookings, nil
}
