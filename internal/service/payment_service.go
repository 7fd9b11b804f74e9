package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/repository"
)

// Notification kinds sent to customers.
const (
	NotifyConfirmed = "confirmed"
	NotifyRefunded  = "refunded"
)

// Notifier schedules a customer notification about a booking. Implementations
// must deduplicate on booking id and kind.
type Notifier interface {
	Notify(ctx context.Context, b *db.Booking, kind string) error
}

type PaymentService struct {
	Calendar        repository.CalendarStore
	Bookings        repository.BookingStore
	Events          repository.PaymentEventStore
	Gateway         PaymentGateway
	Fees            FeePolicy
	Notifier        Notifier
	PublicBaseURL   string
	DefaultCurrency string
	Logger          *zap.Logger
	Now             Clock
}

// OpenPaymentSession returns the URL the customer must visit to pay for a held booking.
func (s *PaymentService) OpenPaymentSession(ctx context.Context, bookingID string) (string, error) {
	b, err := s.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}
	now := s.Now.now()
	if b.EffectiveStatus(now) != db.StatusHeld {
		return "", fmt.Errorf("open payment for booking %s: %w", b.ID, apperrors.ErrBookingNotHeldOrExpired)
	}

	if !b.RequiresPayment() {
		ok, err := s.Bookings.Transition(ctx, b.ID, db.StatusConfirmed, "", now)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("confirm free booking %s: %w", b.ID, apperrors.ErrBookingNotHeldOrExpired)
		}
		b.Status = db.StatusConfirmed
		s.notify(ctx, b, NotifyConfirmed)
		s.Logger.Info("booking confirmed without payment", zap.String("booking_id", b.ID))
		return s.returnURL("success", b.ID, ""), nil
	}

	if b.PaymentURL != "" {
		return b.PaymentURL, nil
	}

	org, err := s.Calendar.GetOrganization(ctx, b.OrganizationID)
	if err != nil {
		return "", err
	}
	routing, err := s.refreshRouting(ctx, org)
	if err != nil {
		return "", err
	}
	if !routing.Ready() {
		return "", fmt.Errorf("organization %s onboarding %s: %w", org.ID, routing.Status, apperrors.ErrPayoutAccountNotReady)
	}

	currency := b.Currency
	if currency == "" {
		currency = s.DefaultCurrency
	}
	svcName := "Booking"
	if svc, err := s.Calendar.GetService(ctx, b.ServiceID); err == nil {
		svcName = svc.Name
	}

	sess, err := s.Gateway.OpenSession(ctx, SessionRequest{
		BookingID:          b.ID,
		Description:        fmt.Sprintf("%s, %s", svcName, b.StartTime.In(org.Location()).Format("02 Jan 2006 15:04 MST")),
		Amount:             *b.Price,
		Currency:           strings.ToLower(currency),
		PlatformFee:        s.Fees.PlatformFee(org.Plan, *b.Price),
		DestinationAccount: routing.AccountID,
		CustomerEmail:      b.Customer.Email,
		SuccessURL:         s.returnURL("success", b.ID, "{CHECKOUT_SESSION_ID}"),
		CancelURL:          s.returnURL("cancel", b.ID, "{CHECKOUT_SESSION_ID}"),
	})
	if err != nil {
		return "", fmt.Errorf("error creating payment session for booking %s: %w", b.ID, err)
	}

	attached, err := s.Bookings.AttachPaymentSession(ctx, b.ID, sess.ID, sess.URL, s.Now.now())
	if err != nil {
		return "", err
	}
	if !attached {
		if err := s.Gateway.ExpireSession(ctx, sess.ID); err != nil {
			s.Logger.Warn("could not expire orphaned payment session", zap.String("session_id", sess.ID), zap.Error(err))
		}
		return "", fmt.Errorf("hold on booking %s lapsed while opening payment: %w", b.ID, apperrors.ErrBookingNotHeldOrExpired)
	}
	s.Logger.Info("payment session opened", zap.String("booking_id", b.ID), zap.String("session_id", sess.ID))
	return sess.URL, nil
}

// refreshRouting asks the gateway for the current onboarding status when the
// stored one would block the payment. Webhooks normally keep it current.
func (s *PaymentService) refreshRouting(ctx context.Context, org *db.Organization) (AccountRouting, error) {
	routing := s.Fees.Routing(org)
	if routing.Ready() || routing.AccountID == "" {
		return routing, nil
	}
	status, err := s.Gateway.AccountStatus(ctx, routing.AccountID)
	if err != nil {
		s.Logger.Warn("could not refresh payout account status", zap.String("organization_id", org.ID), zap.Error(err))
		return routing, nil
	}
	if status != routing.Status {
		if _, err := s.Calendar.UpdateOnboardingStatus(ctx, routing.AccountID, status); err != nil {
			return routing, err
		}
		routing.Status = status
	}
	return routing, nil
}

func (s *PaymentService) returnURL(kind, bookingID, sessionID string) string {
	q := "booking_id=" + url.QueryEscape(bookingID)
	if sessionID != "" {
		// The placeholder is substituted by the gateway and must stay unescaped.
		q += "&session_id=" + sessionID
	}
	return strings.TrimRight(s.PublicBaseURL, "/") + "/api/payments/" + kind + "?" + q
}

// HandlePaymentEvent records e and applies it. A replay of an event already
// processed returns the stored outcome without touching any booking.
func (s *PaymentService) HandlePaymentEvent(ctx context.Context, e *db.PaymentEvent) (string, error) {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = s.Now.now()
	}
	inserted, err := s.Events.RecordEvent(ctx, e)
	if err != nil {
		return "", fmt.Errorf("error recording payment event %s: %w", e.ID, err)
	}
	if !inserted {
		stored, err := s.Events.GetEvent(ctx, e.ID)
		if err != nil {
			return "", err
		}
		if stored.ProcessedAt != nil {
			s.Logger.Info("payment event replayed", zap.String("event_id", e.ID), zap.String("outcome", stored.Outcome))
			return stored.Outcome, nil
		}
		e = stored
	}
	return s.process(ctx, e)
}

// ReprocessPending retries events whose processing failed earlier.
func (s *PaymentService) ReprocessPending(ctx context.Context, maxAttempts, limit int) (int, error) {
	events, err := s.Events.ListPendingEvents(ctx, maxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("error listing pending payment events: %w", err)
	}
	done := 0
	for i := range events {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.process(ctx, &events[i]); err == nil {
			done++
		}
	}
	return done, nil
}

func (s *PaymentService) process(ctx context.Context, e *db.PaymentEvent) (string, error) {
	outcome, err := s.apply(ctx, e)
	if err != nil {
		terminal := errors.Is(err, apperrors.ErrUnrecognizedPaymentEvent)
		if markErr := s.Events.MarkEventFailed(ctx, e.ID, err.Error(), terminal, s.Now.now()); markErr != nil {
			s.Logger.Error("could not mark payment event failed", zap.String("event_id", e.ID), zap.Error(markErr))
		}
		s.Logger.Warn("payment event not applied",
			zap.String("event_id", e.ID),
			zap.String("type", e.Type),
			zap.Bool("terminal", terminal),
			zap.Error(err))
		return "", err
	}
	if err := s.Events.MarkEventProcessed(ctx, e.ID, outcome, s.Now.now()); err != nil {
		return outcome, fmt.Errorf("error marking payment event %s processed: %w", e.ID, err)
	}
	s.Logger.Info("payment event processed",
		zap.String("event_id", e.ID),
		zap.String("type", e.Type),
		zap.String("booking_id", e.BookingID),
		zap.String("outcome", outcome))
	return outcome, nil
}

func (s *PaymentService) apply(ctx context.Context, e *db.PaymentEvent) (string, error) {
	switch e.Type {
	case EventSucceeded:
		return s.applySucceeded(ctx, e)
	case EventFailed, EventCanceled:
		return s.applyFailed(ctx, e)
	case EventAccountUpdated:
		if e.AccountID == "" {
			return "", apperrors.ErrUnrecognizedPaymentEvent.WithMessage("account update without account id")
		}
		if _, err := s.Calendar.UpdateOnboardingStatus(ctx, e.AccountID, e.AccountStatus); err != nil {
			return "", err
		}
		return OutcomeAccountUpdated, nil
	case EventIgnored:
		return OutcomeIgnored, nil
	default:
		return "", fmt.Errorf("event type %q: %w", e.Type, apperrors.ErrUnrecognizedPaymentEvent)
	}
}

func (s *PaymentService) bookingFor(ctx context.Context, e *db.PaymentEvent) (*db.Booking, error) {
	if e.BookingID == "" {
		return nil, apperrors.ErrUnrecognizedPaymentEvent.WithMessage("payment event without booking reference")
	}
	b, err := s.Bookings.GetBooking(ctx, e.BookingID)
	if errors.Is(err, apperrors.ErrBookingNotFound) {
		return nil, apperrors.ErrUnrecognizedPaymentEvent.WithMessage("payment event for unknown booking " + e.BookingID)
	}
	return b, err
}

func (s *PaymentService) applySucceeded(ctx context.Context, e *db.PaymentEvent) (string, error) {
	b, err := s.bookingFor(ctx, e)
	if err != nil {
		return "", err
	}
	now := s.Now.now()
	ok, err := s.Bookings.Transition(ctx, b.ID, db.StatusConfirmed, e.PaymentRef, now)
	if err != nil {
		return "", err
	}
	if ok {
		b.Status = db.StatusConfirmed
		b.PaymentRef = e.PaymentRef
		s.notify(ctx, b, NotifyConfirmed)
		return OutcomeConfirmed, nil
	}

	cur, err := s.Bookings.GetBooking(ctx, b.ID)
	if err != nil {
		return "", err
	}
	switch {
	case cur.Status == db.StatusConfirmed:
		if e.PaymentRef == "" || cur.PaymentRef == e.PaymentRef {
			return OutcomeDuplicate, nil
		}
		return s.compensate(ctx, cur, e, "duplicate_payment")
	case cur.Status == db.StatusHeld && !cur.Expired(now):
		return "", fmt.Errorf("booking %s is held but could not be confirmed", cur.ID)
	case cur.Status == db.StatusHeld:
		if _, err := s.Bookings.Transition(ctx, cur.ID, db.StatusReleased, "", now); err != nil {
			return "", err
		}
		cur.Status = db.StatusReleased
	}
	return s.compensate(ctx, cur, e, "late_payment_"+string(cur.Status))
}

func (s *PaymentService) applyFailed(ctx context.Context, e *db.PaymentEvent) (string, error) {
	b, err := s.bookingFor(ctx, e)
	if err != nil {
		return "", err
	}
	now := s.Now.now()
	ok, err := s.Bookings.Transition(ctx, b.ID, db.StatusFailed, e.PaymentRef, now)
	if err != nil {
		return "", err
	}
	if ok {
		return OutcomeFailed, nil
	}
	if !b.Expired(now) {
		return OutcomeIgnored, nil
	}
	released, err := s.Bookings.Transition(ctx, b.ID, db.StatusReleased, "", now)
	if err != nil {
		return "", err
	}
	if released {
		return OutcomeReleased, nil
	}
	return OutcomeIgnored, nil
}

// compensate refunds a payment that arrived for a booking that cannot be
// confirmed. At most one compensation exists per booking and payment reference.
func (s *PaymentService) compensate(ctx context.Context, b *db.Booking, e *db.PaymentEvent, reason string) (string, error) {
	amount := e.Amount
	if amount == 0 && b.Price != nil {
		amount = *b.Price
	}
	now := s.Now.now()
	c := &db.Compensation{
		ID:         uuid.NewString(),
		BookingID:  b.ID,
		PaymentRef: e.PaymentRef,
		EventID:    e.ID,
		Amount:     amount,
		Reason:     reason,
		Status:     db.CompensationPending,
		CreatedAt:  now,
	}
	created, err := s.Events.CreateCompensation(ctx, c)
	if err != nil {
		return "", fmt.Errorf("error recording compensation for booking %s: %w", b.ID, err)
	}
	if !created {
		return OutcomeCompensated, nil
	}

	log := s.Logger.With(
		zap.String("booking_id", b.ID),
		zap.String("payment_ref", e.PaymentRef),
		zap.String("reason", reason),
		zap.Int64("amount", amount))

	if e.PaymentRef == "" {
		log.Error("payment without reference cannot be refunded")
		if err := s.Events.UpdateCompensation(ctx, c.ID, db.CompensationFailed, "", s.Now.now()); err != nil {
			return "", err
		}
		return OutcomeCompensationFailed, nil
	}

	refundID, err := s.Gateway.Refund(ctx, RefundRequest{
		PaymentRef:     e.PaymentRef,
		Amount:         amount,
		IdempotencyKey: "refund-" + b.ID + "-" + e.PaymentRef,
	})
	if err != nil {
		log.Error("refund failed, manual follow-up required", zap.Error(err))
		if err := s.Events.UpdateCompensation(ctx, c.ID, db.CompensationFailed, "", s.Now.now()); err != nil {
			return "", err
		}
		return OutcomeCompensationFailed, nil
	}
	if err := s.Events.UpdateCompensation(ctx, c.ID, db.CompensationRefunded, refundID, s.Now.now()); err != nil {
		return "", err
	}
	log.Warn("payment compensated", zap.String("refund_id", refundID))
	if b.Status != db.StatusConfirmed {
		s.notify(ctx, b, NotifyRefunded)
	}
	return OutcomeCompensated, nil
}

func (s *PaymentService) notify(ctx context.Context, b *db.Booking, kind string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, b, kind); err != nil {
		s.Logger.Error("could not schedule notification",
			zap.String("booking_id", b.ID),
			zap.String("kind", kind),
			zap.Error(err))
	}
}
