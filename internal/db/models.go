package db

import "time"

type Plan string

const (
	PlanFree     Plan = "FREE"
	PlanPro      Plan = "PRO"
	PlanBusiness Plan = "BUSINESS"
)

type OnboardingStatus string

const (
	OnboardingPending    OnboardingStatus = "PENDING"
	OnboardingRestricted OnboardingStatus = "RESTRICTED"
	OnboardingActive     OnboardingStatus = "ACTIVE"
)

type Organization struct {
	ID               string
	Slug             string
	Name             string
	Timezone         string
	Plan             Plan
	PaymentAccountID string
	OnboardingStatus OnboardingStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Location resolves the organization timezone, falling back to UTC.
func (o *Organization) Location() *time.Location {
	if o == nil || o.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Service struct {
	ID                 string
	OrganizationID     string
	Name               string
	DurationMinutes    int
	Price              *int64
	Currency           string
	BufferBeforeMin    int
	BufferAfterMin     int
	GranularityMinutes int
	LeadTimeMinutes    int
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Step is the distance between consecutive candidate slot starts.
func (s *Service) Step() time.Duration {
	if s.GranularityMinutes > 0 {
		return time.Duration(s.GranularityMinutes) * time.Minute
	}
	return s.Duration()
}

func (s *Service) BufferBefore() time.Duration {
	return time.Duration(s.BufferBeforeMin) * time.Minute
}

func (s *Service) BufferAfter() time.Duration {
	return time.Duration(s.BufferAfterMin) * time.Minute
}

type WorkingHoursRule struct {
	ID             string
	OrganizationID string
	ServiceID      *string
	DayOfWeek      time.Weekday
	StartMinute    int
	EndMinute      int
	Timezone       string
	CreatedAt      time.Time
}

type BlackoutWindow struct {
	ID             string
	OrganizationID string
	ServiceID      *string
	StartTime      time.Time
	EndTime        time.Time
	Reason         string
	CreatedAt      time.Time
}

type BookingStatus string

const (
	StatusHeld      BookingStatus = "held"
	StatusConfirmed BookingStatus = "confirmed"
	StatusReleased  BookingStatus = "released"
	StatusFailed    BookingStatus = "failed"
)

// CanTransitionTo reports whether the booking state machine allows s -> next.
// Only HELD has outgoing edges.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s != StatusHeld {
		return false
	}
	switch next {
	case StatusConfirmed, StatusReleased, StatusFailed:
		return true
	}
	return false
}

type Customer struct {
	Name     string `validate:"required,max=200"`
	Email    string `validate:"required,email"`
	Phone    string `validate:"omitempty,e164"`
	Language string `validate:"omitempty,oneof=en es it"`
}

type Booking struct {
	ID               string
	OrganizationID   string
	ServiceID        string
	StartTime        time.Time
	EndTime          time.Time
	DurationMinutes  int
	Price            *int64
	Currency         string
	BufferBeforeMin  int
	BufferAfterMin   int
	Customer         Customer
	Status           BookingStatus
	CreatedAt        time.Time
	ExpiresAt        time.Time
	UpdatedAt        time.Time
	PaymentSessionID string
	PaymentURL       string
	PaymentRef       string
}

// OccupiedStart and OccupiedEnd bound the interval the booking blocks, buffers included.
func (b *Booking) OccupiedStart() time.Time {
	return b.StartTime.Add(-time.Duration(b.BufferBeforeMin) * time.Minute)
}

func (b *Booking) OccupiedEnd() time.Time {
	return b.EndTime.Add(time.Duration(b.BufferAfterMin) * time.Minute)
}

// RequiresPayment is false for bookings taken on a service without a fixed price.
func (b *Booking) RequiresPayment() bool {
	return b.Price != nil && *b.Price > 0
}

func (b *Booking) Expired(now time.Time) bool {
	return b.Status == StatusHeld && !now.Before(b.ExpiresAt)
}

// Blocking reports whether the booking still occupies its slot at now.
func (b *Booking) Blocking(now time.Time) bool {
	switch b.Status {
	case StatusConfirmed:
		return true
	case StatusHeld:
		return now.Before(b.ExpiresAt)
	}
	return false
}

// EffectiveStatus applies lazy expiry: a HELD booking past expires_at reads as RELEASED
// even if the sweep has not run yet.
func (b *Booking) EffectiveStatus(now time.Time) BookingStatus {
	if b.Expired(now) {
		return StatusReleased
	}
	return b.Status
}

// PaymentEvent is a gateway notification normalised to the engine's vocabulary.
type PaymentEvent struct {
	ID            string
	Type          string
	BookingID     string
	SessionID     string
	PaymentRef    string
	AccountID     string
	AccountStatus OnboardingStatus
	Amount        int64
	Payload       []byte
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
	Outcome       string
	Attempts      int
	LastError     string
}

type CompensationStatus string

const (
	CompensationPending  CompensationStatus = "PENDING"
	CompensationRefunded CompensationStatus = "REFUNDED"
	CompensationFailed   CompensationStatus = "FAILED"
)

type Compensation struct {
	ID         string
	BookingID  string
	PaymentRef string
	EventID    string
	Amount     int64
	Reason     string
	RefundID   string
	Status     CompensationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Admin struct {
	ID             int
	OrganizationID string
	Email          string
	PasswordHash   string
}
