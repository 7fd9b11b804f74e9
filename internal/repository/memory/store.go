// Package memory is an in-process implementation of the repository
// interfaces. A single mutex serialises every operation, which gives the same
// guarantees the Postgres store gets from serializable transactions.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"slotkeeper/internal/db"
	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/repository"
)

var (
	_ repository.CalendarStore       = (*Store)(nil)
	_ repository.BookingStore        = (*Store)(nil)
	_ repository.HoldSweeper         = (*Store)(nil)
	_ repository.PaymentEventStore   = (*Store)(nil)
	_ repository.AdminAuthRepository = (*Store)(nil)
)

type Store struct {
	mu            sync.Mutex
	orgs          map[string]db.Organization
	services      map[string]db.Service
	rules         []db.WorkingHoursRule
	blackouts     []db.BlackoutWindow
	bookings      map[string]db.Booking
	events        map[string]db.PaymentEvent
	compensations map[string]db.Compensation
	admins        map[string]db.Admin
}

func New() *Store {
	return &Store{
		orgs:          make(map[string]db.Organization),
		services:      make(map[string]db.Service),
		bookings:      make(map[string]db.Booking),
		events:        make(map[string]db.PaymentEvent),
		compensations: make(map[string]db.Compensation),
		admins:        make(map[string]db.Admin),
	}
}

// PutOrganization and PutService seed calendar data; general CRUD of these
// entities lives outside the engine.
func (s *Store) PutOrganization(o db.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[o.ID] = o
}

func (s *Store) PutService(svc db.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *Store) GetOrganization(_ context.Context, id string) (*db.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, fmt.Errorf("get organization %s: %w", id, apperrors.ErrOrganizationNotFound)
	}
	return &o, nil
}

func (s *Store) UpdateOnboardingStatus(_ context.Context, accountID string, status db.OnboardingStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for id, o := range s.orgs {
		if o.PaymentAccountID == accountID && o.OnboardingStatus != status {
			o.OnboardingStatus = status
			s.orgs[id] = o
			changed = true
		}
	}
	return changed, nil
}

func (s *Store) GetService(_ context.Context, id string) (*db.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, fmt.Errorf("get service %s: %w", id, apperrors.ErrServiceNotFound)
	}
	return &svc, nil
}

func (s *Store) ListWorkingHours(_ context.Context, orgID, serviceID string) ([]db.WorkingHoursRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var own, shared []db.WorkingHoursRule
	for _, r := range s.rules {
		if r.OrganizationID != orgID {
			continue
		}
		switch {
		case r.ServiceID == nil:
			shared = append(shared, r)
		case *r.ServiceID == serviceID:
			own = append(own, r)
		}
	}
	if len(own) > 0 {
		return own, nil
	}
	return shared, nil
}

func (s *Store) CreateWorkingHours(_ context.Context, rule *db.WorkingHoursRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule.CreatedAt = time.Now().UTC()
	s.rules = append(s.rules, *rule)
	return nil
}

func (s *Store) ListBlackouts(_ context.Context, orgID, serviceID string, from, to time.Time) ([]db.BlackoutWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.BlackoutWindow
	for _, w := range s.blackouts {
		if w.OrganizationID != orgID || (w.ServiceID != nil && *w.ServiceID != serviceID) {
			continue
		}
		if w.StartTime.Before(to) && from.Before(w.EndTime) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) CreateBlackout(_ context.Context, w *db.BlackoutWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.OrganizationID != w.OrganizationID || b.Status != db.StatusConfirmed {
			continue
		}
		if w.ServiceID != nil && *w.ServiceID != b.ServiceID {
			continue
		}
		if b.StartTime.Before(w.EndTime) && w.StartTime.Before(b.EndTime) {
			return apperrors.ErrBlackoutConflictsWithBooking
		}
	}
	w.CreatedAt = time.Now().UTC()
	s.blackouts = append(s.blackouts, *w)
	return nil
}

func (s *Store) DeleteBlackout(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.blackouts {
		if w.ID == id && w.OrganizationID == orgID {
			s.blackouts = append(s.blackouts[:i], s.blackouts[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (s *Store) ListBlockingBookings(_ context.Context, serviceID string, from, to, now time.Time) ([]db.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Booking
	for _, b := range s.bookings {
		if b.ServiceID != serviceID || !b.Blocking(now) {
			continue
		}
		if b.OccupiedStart().Before(to) && from.Before(b.OccupiedEnd()) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) InsertHold(_ context.Context, b *db.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := b.CreatedAt
	for id, other := range s.bookings {
		if other.ServiceID != b.ServiceID {
			continue
		}
		if !(other.OccupiedStart().Before(b.OccupiedEnd()) && b.OccupiedStart().Before(other.OccupiedEnd())) {
			continue
		}
		if other.Expired(now) {
			other.Status = db.StatusReleased
			other.UpdatedAt = now
			s.bookings[id] = other
			continue
		}
		if other.Blocking(now) {
			return fmt.Errorf("insert hold for %s: %w", b.StartTime.Format(time.RFC3339), apperrors.ErrSlotConflict)
		}
	}
	b.Status = db.StatusHeld
	b.UpdatedAt = now
	s.bookings[b.ID] = *b
	return nil
}

func (s *Store) GetBooking(_ context.Context, id string) (*db.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("get booking %s: %w", id, apperrors.ErrBookingNotFound)
	}
	return &b, nil
}

func (s *Store) Transition(_ context.Context, id string, to db.BookingStatus, paymentRef string, now time.Time) (bool, error) {
	if !db.StatusHeld.CanTransitionTo(to) {
		return false, fmt.Errorf("transition to %s: %w", to, apperrors.ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != db.StatusHeld {
		return false, nil
	}
	if to != db.StatusReleased && !now.Before(b.ExpiresAt) {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = now
	if paymentRef != "" {
		b.PaymentRef = paymentRef
	}
	s.bookings[id] = b
	return true, nil
}

func (s *Store) AttachPaymentSession(_ context.Context, id, sessionID, url string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || !b.Blocking(now) || b.Status != db.StatusHeld {
		return false, nil
	}
	b.PaymentSessionID = sessionID
	b.PaymentURL = url
	b.UpdatedAt = now
	s.bookings[id] = b
	return true, nil
}

func (s *Store) ListBookings(_ context.Context, f repository.BookingFilter) ([]db.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Booking
	for _, b := range s.bookings {
		if b.OrganizationID != f.OrganizationID ||
			(f.ServiceID != "" && b.ServiceID != f.ServiceID) ||
			(f.Status != "" && filterStatus(b, f.Now) != f.Status) ||
			(!f.From.IsZero() && b.StartTime.Before(f.From)) ||
			(!f.To.IsZero() && !b.StartTime.Before(f.To)) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func filterStatus(b db.Booking, now time.Time) db.BookingStatus {
	if now.IsZero() {
		return b.Status
	}
	return b.EffectiveStatus(now)
}

func (s *Store) ReleaseExpiredHolds(_ context.Context, now time.Time, limit int) ([]db.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []db.Booking
	for _, b := range s.bookings {
		if b.Expired(now) {
			expired = append(expired, b)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for i := range expired {
		expired[i].Status = db.StatusReleased
		expired[i].UpdatedAt = now
		s.bookings[expired[i].ID] = expired[i]
	}
	return expired, nil
}

func (s *Store) RecordEvent(_ context.Context, e *db.PaymentEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return false, nil
	}
	s.events[e.ID] = *e
	return true, nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*db.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("get payment event %s: %w", id, apperrors.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) MarkEventProcessed(_ context.Context, id, outcome string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok || e.ProcessedAt != nil {
		return nil
	}
	e.ProcessedAt = &now
	e.Outcome = outcome
	e.Attempts++
	e.LastError = ""
	s.events[id] = e
	return nil
}

func (s *Store) MarkEventFailed(_ context.Context, id, errMsg string, terminal bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok || e.ProcessedAt != nil {
		return nil
	}
	e.Attempts++
	e.LastError = errMsg
	if terminal {
		e.ProcessedAt = &now
		e.Outcome = "rejected"
	}
	s.events[id] = e
	return nil
}

func (s *Store) ListPendingEvents(_ context.Context, maxAttempts, limit int) ([]db.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.PaymentEvent
	for _, e := range s.events {
		if e.ProcessedAt == nil && e.Attempts < maxAttempts {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateCompensation(_ context.Context, c *db.Compensation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.compensations {
		if existing.BookingID == c.BookingID && existing.PaymentRef == c.PaymentRef {
			return false, nil
		}
	}
	c.UpdatedAt = c.CreatedAt
	s.compensations[c.ID] = *c
	return true, nil
}

func (s *Store) UpdateCompensation(_ context.Context, id string, status db.CompensationStatus, refundID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.compensations[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.Status = status
	c.RefundID = refundID
	c.UpdatedAt = now
	s.compensations[id] = c
	return nil
}

// Compensations returns every recorded compensation, oldest first.
func (s *Store) Compensations() []db.Compensation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.Compensation, 0, len(s.compensations))
	for _, c := range s.compensations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) GetByEmail(_ context.Context, email string) (*db.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[email]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *Store) CreateNewUser(_ context.Context, organizationID, email, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[email]; ok {
		return fmt.Errorf("admin %s already exists", email)
	}
	s.admins[email] = db.Admin{ID: len(s.admins) + 1, OrganizationID: organizationID, Email: email, PasswordHash: string(hashed)}
	return nil
}
