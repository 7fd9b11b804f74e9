package repository

import (
	"context"
	"time"

	"slotkeeper/internal/db"
)

// CalendarStore holds the slow-changing calendar state of an organization.
type CalendarStore interface {
	GetOrganization(ctx context.Context, id string) (*db.Organization, error)
	UpdateOnboardingStatus(ctx context.Context, accountID string, status db.OnboardingStatus) (bool, error)
	GetService(ctx context.Context, id string) (*db.Service, error)
	ListWorkingHours(ctx context.Context, orgID, serviceID string) ([]db.WorkingHoursRule, error)
	CreateWorkingHours(ctx context.Context, rule *db.WorkingHoursRule) error
	ListBlackouts(ctx context.Context, orgID, serviceID string, from, to time.Time) ([]db.BlackoutWindow, error)
	// CreateBlackout fails with ErrBlackoutConflictsWithBooking when the window
	// overlaps a confirmed booking. The check and the insert are atomic.
	CreateBlackout(ctx context.Context, w *db.BlackoutWindow) error
	DeleteBlackout(ctx context.Context, orgID, id string) error
}

// BookingStore owns every booking mutation. Status changes are conditional on
// the current status so concurrent writers cannot move a booking out of a
// terminal state.
type BookingStore interface {
	// ListBlockingBookings returns confirmed bookings and holds unexpired at now
	// whose occupied interval overlaps [from, to).
	ListBlockingBookings(ctx context.Context, serviceID string, from, to, now time.Time) ([]db.Booking, error)
	// InsertHold atomically checks exclusivity and inserts b as HELD, using
	// b.CreatedAt as the current time. Losers get ErrSlotConflict.
	InsertHold(ctx context.Context, b *db.Booking) error
	GetBooking(ctx context.Context, id string) (*db.Booking, error)
	// Transition moves a HELD booking to `to`. CONFIRMED and FAILED also
	// require the hold to be unexpired at now. Returns false when no row matched.
	Transition(ctx context.Context, id string, to db.BookingStatus, paymentRef string, now time.Time) (bool, error)
	AttachPaymentSession(ctx context.Context, id, sessionID, url string, now time.Time) (bool, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]db.Booking, error)
}

// HoldSweeper releases holds past their expiry.
type HoldSweeper interface {
	ReleaseExpiredHolds(ctx context.Context, now time.Time, limit int) ([]db.Booking, error)
}

// PaymentEventStore is the durable ledger of gateway notifications and the
// compensations they trigger.
type PaymentEventStore interface {
	// RecordEvent inserts the event if its id is new and reports whether it did.
	RecordEvent(ctx context.Context, e *db.PaymentEvent) (bool, error)
	GetEvent(ctx context.Context, id string) (*db.PaymentEvent, error)
	MarkEventProcessed(ctx context.Context, id, outcome string, now time.Time) error
	// MarkEventFailed bumps attempts; terminal failures are closed and never retried.
	MarkEventFailed(ctx context.Context, id, errMsg string, terminal bool, now time.Time) error
	ListPendingEvents(ctx context.Context, maxAttempts, limit int) ([]db.PaymentEvent, error)
	// CreateCompensation inserts unless one exists for the same booking and
	// payment reference; it reports whether a row was created.
	CreateCompensation(ctx context.Context, c *db.Compensation) (bool, error)
	UpdateCompensation(ctx context.Context, id string, status db.CompensationStatus, refundID string, now time.Time) error
}

// BookingFilter narrows ListBookings. When Now is set, Status matches the
// status a booking has at Now, so an expired hold counts as released.
type BookingFilter struct {
	OrganizationID string
	ServiceID      string
	Status         db.BookingStatus
	Now            time.Time
	From           time.Time
	To             time.Time
	Limit          int
}
