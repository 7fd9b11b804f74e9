package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotkeeper/internal/db"
)

type JobRepository struct {
	DB *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{DB: db}
}

// ReleaseExpiredHolds flips HELD bookings past expires_at to RELEASED and returns them.
// SKIP LOCKED plus the status guard make concurrent sweeps safe: each hold is
// released by at most one of them, and a hold confirmed in the meantime is left alone.
func (r *JobRepository) ReleaseExpiredHolds(ctx context.Context, now time.Time, limit int) ([]db.Booking, error) {
	rows, err := r.DB.QueryContext(ctx, `
		UPDATE bookings SET status = 'released', updated_at = $1
		WHERE id IN (
			SELECT id FROM bookings
			WHERE status = 'held' AND expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) AND status = 'held'
		RETURNING `+bookingColumns, now, limit)
	if err != nil {
		return nil, fmt.Errorf("error releasing expired holds: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}
