package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/repository"
)

const maxListedBookings = 500

// AdminService is the calendar administration an organization's admins do
// through the protected API. Every call is scoped to the caller's organization.
type AdminService struct {
	Calendar repository.CalendarStore
	Bookings repository.BookingStore
	Logger   *zap.Logger
	Now      Clock
}

func NewAdminService(calendar repository.CalendarStore, bookings repository.BookingStore, logger *zap.Logger, now Clock) *AdminService {
	return &AdminService{Calendar: calendar, Bookings: bookings, Logger: logger, Now: now}
}

// ownService checks that serviceID, when set, belongs to orgID.
func (s *AdminService) ownService(ctx context.Context, orgID string, serviceID *string) error {
	if serviceID == nil {
		return nil
	}
	svc, err := s.Calendar.GetService(ctx, *serviceID)
	if err != nil {
		return err
	}
	if svc.OrganizationID != orgID {
		return fmt.Errorf("service %s: %w", *serviceID, apperrors.ErrServiceNotFound)
	}
	return nil
}

func (s *AdminService) AddWorkingHours(ctx context.Context, orgID string, rule db.WorkingHoursRule) (*db.WorkingHoursRule, error) {
	if rule.DayOfWeek < time.Sunday || rule.DayOfWeek > time.Saturday {
		return nil, apperrors.ErrInvalidRequest.WithMessage("day_of_week must be between 0 and 6")
	}
	if rule.StartMinute < 0 || rule.EndMinute > 24*60 || rule.StartMinute >= rule.EndMinute {
		return nil, apperrors.ErrInvalidRequest.WithMessage("working hours must satisfy 0 <= start < end <= 1440")
	}
	if rule.Timezone != "" {
		if _, err := time.LoadLocation(rule.Timezone); err != nil {
			return nil, apperrors.ErrInvalidRequest.WithMessage("unknown timezone " + rule.Timezone)
		}
	}
	if err := s.ownService(ctx, orgID, rule.ServiceID); err != nil {
		return nil, err
	}

	rule.ID = uuid.NewString()
	rule.OrganizationID = orgID
	if err := s.Calendar.CreateWorkingHours(ctx, &rule); err != nil {
		return nil, fmt.Errorf("error creating working hours: %w", err)
	}
	s.Logger.Info("working hours added",
		zap.String("organization_id", orgID),
		zap.Int("day_of_week", int(rule.DayOfWeek)),
		zap.Int("start_minute", rule.StartMinute),
		zap.Int("end_minute", rule.EndMinute))
	return &rule, nil
}

// ListWorkingHours returns the rules that apply to serviceID, or the
// organization-wide rules when serviceID is empty.
func (s *AdminService) ListWorkingHours(ctx context.Context, orgID, serviceID string) ([]db.WorkingHoursRule, error) {
	if serviceID != "" {
		if err := s.ownService(ctx, orgID, &serviceID); err != nil {
			return nil, err
		}
	}
	return s.Calendar.ListWorkingHours(ctx, orgID, serviceID)
}

// AddBlackout closes [start, end) for booking. It fails when a confirmed
// booking already sits in the window.
func (s *AdminService) AddBlackout(ctx context.Context, orgID string, w db.BlackoutWindow) (*db.BlackoutWindow, error) {
	if !w.StartTime.Before(w.EndTime) {
		return nil, apperrors.ErrInvalidRange.WithMessage("blackout start must be before end")
	}
	if err := s.ownService(ctx, orgID, w.ServiceID); err != nil {
		return nil, err
	}

	w.ID = uuid.NewString()
	w.OrganizationID = orgID
	w.StartTime, w.EndTime = w.StartTime.UTC(), w.EndTime.UTC()
	if err := s.Calendar.CreateBlackout(ctx, &w); err != nil {
		return nil, err
	}
	s.Logger.Info("blackout added",
		zap.String("organization_id", orgID),
		zap.Time("start", w.StartTime),
		zap.Time("end", w.EndTime))
	return &w, nil
}

func (s *AdminService) RemoveBlackout(ctx context.Context, orgID, id string) error {
	return s.Calendar.DeleteBlackout(ctx, orgID, id)
}

// ListBookings lists the organization's bookings. A date narrows the result to
// that local day in the organization's timezone.
func (s *AdminService) ListBookings(ctx context.Context, orgID, serviceID, date string, status db.BookingStatus) ([]db.Booking, error) {
	now := s.Now.now()
	filter := repository.BookingFilter{
		OrganizationID: orgID,
		ServiceID:      serviceID,
		Status:         status,
		Now:            now,
		Limit:          maxListedBookings,
	}
	switch status {
	case "", db.StatusHeld, db.StatusConfirmed, db.StatusReleased, db.StatusFailed:
	default:
		return nil, apperrors.ErrInvalidRequest.WithMessage("unknown status " + string(status))
	}

	if date != "" {
		org, err := s.Calendar.GetOrganization(ctx, orgID)
		if err != nil {
			return nil, err
		}
		day, err := time.ParseInLocation("2006-01-02", date, org.Location())
		if err != nil {
			return nil, apperrors.ErrInvalidRequest.WithMessage("date must be YYYY-MM-DD")
		}
		filter.From = day
		filter.To = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, day.Location())
	}

	bookings, err := s.Bookings.ListBookings(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].Status = bookings[i].EffectiveStatus(now)
	}
	return bookings, nil
}
