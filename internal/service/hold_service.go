package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/repository"
)

// HoldTTL is how long a slot stays reserved while the customer pays.
const HoldTTL = 15 * time.Minute

type HoldService struct {
	Calendar     repository.CalendarStore
	Bookings     repository.BookingStore
	Availability *AvailabilityService
	Gateway      PaymentGateway
	Logger       *zap.Logger
	Now          Clock
	validate     *validator.Validate
}

func NewHoldService(calendar repository.CalendarStore, bookings repository.BookingStore, availability *AvailabilityService, gateway PaymentGateway, logger *zap.Logger, now Clock) *HoldService {
	return &HoldService{
		Calendar:     calendar,
		Bookings:     bookings,
		Availability: availability,
		Gateway:      gateway,
		Logger:       logger,
		Now:          now,
		validate:     validator.New(),
	}
}

// CreateHold reserves the slot starting at slotStart for HoldTTL.
func (s *HoldService) CreateHold(ctx context.Context, serviceID string, slotStart time.Time, customer db.Customer) (*db.Booking, error) {
	customer.Email = strings.TrimSpace(strings.ToLower(customer.Email))
	customer.Name = strings.TrimSpace(customer.Name)
	if err := s.validate.Struct(customer); err != nil {
		return nil, apperrors.ErrInvalidRequest.WithMessage(DescribeValidation(err))
	}

	svc, org, err := s.Availability.loadService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	now := s.Now.now()
	slotStart = slotStart.UTC()
	offered, err := s.Availability.IsOffered(ctx, svc, org, slotStart, now)
	if err != nil {
		return nil, err
	}
	if !offered {
		return nil, apperrors.ErrSlotExpiredOrInvalid
	}

	b := &db.Booking{
		ID:              uuid.NewString(),
		OrganizationID:  org.ID,
		ServiceID:       svc.ID,
		StartTime:       slotStart,
		EndTime:         slotStart.Add(svc.Duration()),
		DurationMinutes: svc.DurationMinutes,
		Price:           svc.Price,
		Currency:        svc.Currency,
		BufferBeforeMin: svc.BufferBeforeMin,
		BufferAfterMin:  svc.BufferAfterMin,
		Customer:        customer,
		Status:          db.StatusHeld,
		CreatedAt:       now,
		ExpiresAt:       now.Add(HoldTTL),
	}
	if err := s.Bookings.InsertHold(ctx, b); err != nil {
		return nil, err
	}
	s.Logger.Info("hold created",
		zap.String("booking_id", b.ID),
		zap.String("service_id", svc.ID),
		zap.Time("start", b.StartTime),
		zap.Time("expires_at", b.ExpiresAt))
	return b, nil
}

// CancelHold releases a held booking. Cancelling a released booking is a no-op.
func (s *HoldService) CancelHold(ctx context.Context, bookingID string) (*db.Booking, error) {
	b, err := s.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	now := s.Now.now()
	switch b.EffectiveStatus(now) {
	case db.StatusReleased:
		b.Status = db.StatusReleased
		return b, nil
	case db.StatusConfirmed, db.StatusFailed:
		return nil, fmt.Errorf("cancel booking %s (%s): %w", b.ID, b.Status, apperrors.ErrInvalidTransition)
	}

	ok, err := s.Bookings.Transition(ctx, b.ID, db.StatusReleased, "", now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a payment event or the sweep.
		cur, err := s.Bookings.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if cur.EffectiveStatus(now) != db.StatusReleased {
			return nil, fmt.Errorf("cancel booking %s (%s): %w", cur.ID, cur.Status, apperrors.ErrInvalidTransition)
		}
		cur.Status = db.StatusReleased
		return cur, nil
	}
	b.Status = db.StatusReleased
	b.UpdatedAt = now

	if b.PaymentSessionID != "" && s.Gateway != nil {
		if err := s.Gateway.ExpireSession(ctx, b.PaymentSessionID); err != nil {
			s.Logger.Warn("could not expire payment session", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
	s.Logger.Info("hold cancelled", zap.String("booking_id", b.ID))
	return b, nil
}

// GetBooking returns the booking with lazy expiry applied to its status.
func (s *HoldService) GetBooking(ctx context.Context, bookingID string) (*db.Booking, error) {
	b, err := s.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	b.Status = b.EffectiveStatus(s.Now.now())
	return b, nil
}

// DescribeValidation turns validator errors into a short client-facing message.
func DescribeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), describeTag(fe.Tag())))
	}
	return strings.Join(parts, "; ")
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "email":
		return "not a valid email"
	case "e164":
		return "not a valid E.164 phone number"
	case "oneof":
		return "not supported"
	default:
		return "invalid"
	}
}
