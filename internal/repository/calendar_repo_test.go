package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
)

func newCalendarMock(t *testing.T) (*CalendarRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewCalendarRepository(conn), mock
}

func newBlackout() *db.BlackoutWindow {
	return &db.BlackoutWindow{
		ID:             "bw-1",
		OrganizationID: "org-1",
		StartTime:      slotStart,
		EndTime:        slotStart.Add(2 * time.Hour),
		Reason:         "maintenance",
	}
}

func TestCreateBlackout_LocksOverlappingBookings(t *testing.T) {
	repo, mock := newCalendarMock(t)
	w := newBlackout()

	mock.ExpectBegin()
	mock.ExpectQuery(`status IN \('held', 'confirmed'\).*FOR SHARE$`).
		WithArgs("org-1", nil, slotStart, slotStart.Add(2*time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("held"))
	mock.ExpectQuery(`INSERT INTO blackout_windows`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateBlackout(context.Background(), w))
	assert.Equal(t, created, w.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBlackout_ConfirmedBookingConflicts(t *testing.T) {
	repo, mock := newCalendarMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR SHARE$`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("held").AddRow("confirmed"))
	mock.ExpectRollback()

	err := repo.CreateBlackout(context.Background(), newBlackout())
	assert.ErrorIs(t, err, apperrors.ErrBlackoutConflictsWithBooking)
	assert.NoError(t, mock.ExpectationsWereMet())
}
