package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
)

var (
	slotStart = time.Date(2030, time.January, 7, 9, 0, 0, 0, time.UTC)
	created   = slotStart.Add(-24 * time.Hour)
)

func newHold() *db.Booking {
	price := int64(5000)
	return &db.Booking{
		ID:              "b-1",
		OrganizationID:  "org-1",
		ServiceID:       "svc-1",
		StartTime:       slotStart,
		EndTime:         slotStart.Add(30 * time.Minute),
		DurationMinutes: 30,
		Price:           &price,
		Currency:        "EUR",
		BufferAfterMin:  10,
		Customer:        db.Customer{Name: "Ana", Email: "ana@example.com"},
		CreatedAt:       created,
		ExpiresAt:       created.Add(15 * time.Minute),
	}
}

func bookingRow(id string, status db.BookingStatus, expires time.Time) []driver.Value {
	return []driver.Value{
		id, "org-1", "svc-1", slotStart, slotStart.Add(30 * time.Minute), 30, nil, "EUR",
		0, 0, "Ana", "ana@example.com", "", "es",
		string(status), created, expires, created, "cs_1", "https://checkout.example/cs_1", "",
	}
}

var bookingColumnNames = []string{
	"id", "organization_id", "service_id", "start_time", "end_time", "duration_minutes", "price", "currency",
	"buffer_before_minutes", "buffer_after_minutes", "customer_name", "customer_email", "customer_phone", "customer_language",
	"status", "created_at", "expires_at", "updated_at", "payment_session_id", "payment_url", "payment_ref",
}

func newMock(t *testing.T) (*BookingRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewBookingRepository(conn), mock
}

func TestInsertHold(t *testing.T) {
	repo, mock := newMock(t)
	b := newHold()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET status = 'released'`).
		WithArgs("svc-1", created, slotStart, slotStart.Add(40*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("svc-1", slotStart, slotStart.Add(40*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.InsertHold(context.Background(), b))
	assert.Equal(t, db.StatusHeld, b.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertHold_LiveOverlapIsConflict(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET status = 'released'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.InsertHold(context.Background(), newHold())
	assert.ErrorIs(t, err, apperrors.ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertHold_ExclusionViolationIsConflict(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET status = 'released'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnError(&pq.Error{Code: pqExclusionViolation})
	mock.ExpectRollback()

	err := repo.InsertHold(context.Background(), newHold())
	assert.ErrorIs(t, err, apperrors.ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertHold_RetriesSerializationFailures(t *testing.T) {
	repo, mock := newMock(t)

	for i := 0; i < maxTxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE bookings SET status = 'released'`).
			WillReturnError(&pq.Error{Code: pqSerializationFailure})
		mock.ExpectRollback()
	}

	err := repo.InsertHold(context.Background(), newHold())
	assert.ErrorIs(t, err, apperrors.ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertHold_RetrySucceeds(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET status = 'released'`).
		WillReturnError(&pq.Error{Code: pqDeadlockDetected})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET status = 'released'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.InsertHold(context.Background(), newHold()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertHold_OtherErrorsPassThrough(t *testing.T) {
	repo, mock := newMock(t)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings SET status = 'released'`).WillReturnError(boom)
	mock.ExpectRollback()

	err := repo.InsertHold(context.Background(), newHold())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, apperrors.ErrSlotConflict)
}

func TestTransition(t *testing.T) {
	repo, mock := newMock(t)
	now := created.Add(5 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = 'held' AND expires_at > $3`)).
		WithArgs("b-1", db.StatusConfirmed, now, "pi_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.Transition(context.Background(), "b-1", db.StatusConfirmed, "pi_1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// An expired hold matches no row.
	mock.ExpectExec(regexp.QuoteMeta(`AND expires_at > $3`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.Transition(context.Background(), "b-1", db.StatusFailed, "", now)
	require.NoError(t, err)
	assert.False(t, ok)

	// Releasing does not depend on expiry.
	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = 'held'`) + `$`).
		WithArgs("b-1", db.StatusReleased, now, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err = repo.Transition(context.Background(), "b-1", db.StatusReleased, "", now)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.Transition(context.Background(), "b-1", db.StatusHeld, "", now)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBooking(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows(bookingColumnNames).AddRow(bookingRow("b-1", db.StatusHeld, created.Add(15*time.Minute))...))
	b, err := repo.GetBooking(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, db.StatusHeld, b.Status)
	assert.Nil(t, b.Price)
	assert.Equal(t, "es", b.Customer.Language)

	mock.ExpectQuery(`FROM bookings WHERE id = \$1`).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(bookingColumnNames))
	_, err = repo.GetBooking(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrBookingNotFound)
}

func TestListBookingsBuildsFilter(t *testing.T) {
	repo, mock := newMock(t)
	from := slotStart.Add(-9 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE organization_id = $1 AND status = $2 AND start_time >= $3 AND start_time < $4 ORDER BY start_time LIMIT $5`)).
		WithArgs("org-1", db.StatusConfirmed, from, from.Add(24*time.Hour), 500).
		WillReturnRows(sqlmock.NewRows(bookingColumnNames).AddRow(bookingRow("b-1", db.StatusConfirmed, created.Add(15*time.Minute))...))

	got, err := repo.ListBookings(context.Background(), BookingFilter{
		OrganizationID: "org-1",
		Status:         db.StatusConfirmed,
		From:           from,
		To:             from.Add(24 * time.Hour),
		Limit:          500,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, db.StatusConfirmed, got[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseExpiredHolds(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	repo := NewJobRepository(conn)
	now := created.Add(time.Hour)

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).WithArgs(now, 500).
		WillReturnRows(sqlmock.NewRows(bookingColumnNames).
			AddRow(bookingRow("b-1", db.StatusReleased, created.Add(15*time.Minute))...).
			AddRow(bookingRow("b-2", db.StatusReleased, created.Add(20*time.Minute))...))

	released, err := repo.ReleaseExpiredHolds(context.Background(), now, 500)
	require.NoError(t, err)
	require.Len(t, released, 2)
	assert.Equal(t, "cs_1", released[0].PaymentSessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBookingsFiltersOnStatusAtNow(t *testing.T) {
	repo, mock := newMock(t)
	now := created.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`AND (status = 'released' OR (status = 'held' AND expires_at <= $2)) ORDER BY start_time`)).
		WithArgs("org-1", now).
		WillReturnRows(sqlmock.NewRows(bookingColumnNames).AddRow(bookingRow("b-1", db.StatusHeld, created.Add(15*time.Minute))...))
	got, err := repo.ListBookings(context.Background(), BookingFilter{OrganizationID: "org-1", Status: db.StatusReleased, Now: now})
	require.NoError(t, err)
	require.Len(t, got, 1)

	mock.ExpectQuery(regexp.QuoteMeta(`AND status = 'held' AND expires_at > $2 ORDER BY start_time`)).
		WithArgs("org-1", now).
		WillReturnRows(sqlmock.NewRows(bookingColumnNames))
	got, err = repo.ListBookings(context.Background(), BookingFilter{OrganizationID: "org-1", Status: db.StatusHeld, Now: now})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
