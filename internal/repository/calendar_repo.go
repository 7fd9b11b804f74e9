package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
)

type CalendarRepository struct {
	DB *sql.DB
}

func NewCalendarRepository(db *sql.DB) *CalendarRepository {
	return &CalendarRepository{DB: db}
}

func (r *CalendarRepository) GetOrganization(ctx context.Context, id string) (*db.Organization, error) {
	var o db.Organization
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, slug, name, timezone, plan, payment_account_id, onboarding_status, created_at, updated_at
		FROM organizations WHERE id = $1`, id).
		Scan(&o.ID, &o.Slug, &o.Name, &o.Timezone, &o.Plan, &o.PaymentAccountID, &o.OnboardingStatus, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get organization %s: %w", id, notFound(err, apperrors.ErrOrganizationNotFound))
	}
	return &o, nil
}

func (r *CalendarRepository) UpdateOnboardingStatus(ctx context.Context, accountID string, status db.OnboardingStatus) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE organizations SET onboarding_status = $2, updated_at = NOW()
		WHERE payment_account_id = $1 AND onboarding_status <> $2`, accountID, status)
	if err != nil {
		return false, fmt.Errorf("update onboarding status for account %s: %w", accountID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CalendarRepository) GetService(ctx context.Context, id string) (*db.Service, error) {
	var s db.Service
	var price sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, organization_id, name, duration_minutes, price, currency,
			buffer_before_minutes, buffer_after_minutes, granularity_minutes, lead_time_minutes,
			active, created_at, updated_at
		FROM services WHERE id = $1`, id).
		Scan(&s.ID, &s.OrganizationID, &s.Name, &s.DurationMinutes, &price, &s.Currency,
			&s.BufferBeforeMin, &s.BufferAfterMin, &s.GranularityMinutes, &s.LeadTimeMinutes,
			&s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, notFound(err, apperrors.ErrServiceNotFound))
	}
	if price.Valid {
		s.Price = &price.Int64
	}
	return &s, nil
}

// ListWorkingHours returns the service-specific rules if the service has any,
// otherwise the organization-wide rules.
func (r *CalendarRepository) ListWorkingHours(ctx context.Context, orgID, serviceID string) ([]db.WorkingHoursRule, error) {
	rows, err := r.DB.QueryContext(ctx, `
		WITH scoped AS (
			SELECT EXISTS (SELECT 1 FROM working_hours_rules WHERE service_id = $2) AS has_own
		)
		SELECT w.id, w.organization_id, w.service_id, w.day_of_week, w.start_minute, w.end_minute, w.timezone, w.created_at
		FROM working_hours_rules w, scoped
		WHERE w.organization_id = $1
			AND ((scoped.has_own AND w.service_id = $2) OR (NOT scoped.has_own AND w.service_id IS NULL))
		ORDER BY w.day_of_week, w.start_minute`, orgID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("error querying working hours: %w", err)
	}
	defer rows.Close()

	var rules []db.WorkingHoursRule
	for rows.Next() {
		var w db.WorkingHoursRule
		var svc sql.NullString
		if err := rows.Scan(&w.ID, &w.OrganizationID, &svc, &w.DayOfWeek, &w.StartMinute, &w.EndMinute, &w.Timezone, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning working hours rule: %w", err)
		}
		if svc.Valid {
			w.ServiceID = &svc.String
		}
		rules = append(rules, w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating working hours rows: %w", err)
	}
	return rules, nil
}

func (r *CalendarRepository) CreateWorkingHours(ctx context.Context, rule *db.WorkingHoursRule) error {
	return r.DB.QueryRowContext(ctx, `
		INSERT INTO working_hours_rules (id, organization_id, service_id, day_of_week, start_minute, end_minute, timezone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`,
		rule.ID, rule.OrganizationID, rule.ServiceID, int(rule.DayOfWeek), rule.StartMinute, rule.EndMinute, rule.Timezone,
	).Scan(&rule.CreatedAt)
}

// ListBlackouts returns org-wide and service-specific windows overlapping [from, to).
func (r *CalendarRepository) ListBlackouts(ctx context.Context, orgID, serviceID string, from, to time.Time) ([]db.BlackoutWindow, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, organization_id, service_id, start_time, end_time, reason, created_at
		FROM blackout_windows
		WHERE organization_id = $1
			AND (service_id IS NULL OR service_id = $2)
			AND start_time < $4 AND end_time > $3
		ORDER BY start_time`, orgID, serviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("error querying blackout windows: %w", err)
	}
	defer rows.Close()

	var windows []db.BlackoutWindow
	for rows.Next() {
		w, err := scanBlackout(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, *w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating blackout rows: %w", err)
	}
	return windows, nil
}

// CreateBlackout rejects windows that overlap a confirmed booking instead of
// cancelling it. Overlapping held and confirmed rows are share-locked, so a
// confirmation running at the same time waits for this insert and lands after it.
func (r *CalendarRepository) CreateBlackout(ctx context.Context, w *db.BlackoutWindow) error {
	return withSerializableTx(ctx, r.DB, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT status FROM bookings
			WHERE organization_id = $1
				AND ($2::uuid IS NULL OR service_id = $2)
				AND status IN ('held', 'confirmed')
				AND start_time < $4 AND end_time > $3
			FOR SHARE`, w.OrganizationID, w.ServiceID, w.StartTime, w.EndTime)
		if err != nil {
			return fmt.Errorf("check blackout conflicts: %w", err)
		}
		conflict := false
		for rows.Next() {
			var status db.BookingStatus
			if err := rows.Scan(&status); err != nil {
				rows.Close()
				return fmt.Errorf("scan blackout conflict: %w", err)
			}
			if status == db.StatusConfirmed {
				conflict = true
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("check blackout conflicts: %w", err)
		}
		if conflict {
			return apperrors.ErrBlackoutConflictsWithBooking
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO blackout_windows (id, organization_id, service_id, start_time, end_time, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			RETURNING created_at`,
			w.ID, w.OrganizationID, w.ServiceID, w.StartTime, w.EndTime, w.Reason,
		).Scan(&w.CreatedAt)
	})
}

func (r *CalendarRepository) DeleteBlackout(ctx context.Context, orgID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM blackout_windows WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete blackout %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlackout(row rowScanner) (*db.BlackoutWindow, error) {
	var w db.BlackoutWindow
	var svc sql.NullString
	if err := row.Scan(&w.ID, &w.OrganizationID, &svc, &w.StartTime, &w.EndTime, &w.Reason, &w.CreatedAt); err != nil {
		return nil, fmt.Errorf("error scanning blackout window: %w", err)
	}
	if svc.Valid {
		w.ServiceID = &svc.String
	}
	return &w, nil
}
