package service

import (
	"context"

	"slotkeeper/internal/db"
)

// Normalised payment event types. Gateway-specific names never leave the gateway.
const (
	EventSucceeded      = "succeeded"
	EventFailed         = "failed"
	EventCanceled       = "canceled"
	EventAccountUpdated = "account_updated"
	// EventIgnored is a recognised notification that carries nothing to act on,
	// such as a completed checkout still awaiting an asynchronous payment.
	EventIgnored = "ignored"
	// EventMalformed is a verified notification whose body lacks what the
	// engine needs to act on it.
	EventMalformed = "malformed"
)

// Outcomes recorded against processed payment events.
const (
	OutcomeConfirmed          = "confirmed"
	OutcomeDuplicate          = "duplicate"
	OutcomeCompensated        = "compensated"
	OutcomeCompensationFailed = "compensation_failed"
	OutcomeFailed             = "failed"
	OutcomeReleased           = "released"
	OutcomeIgnored            = "ignored"
	OutcomeAccountUpdated     = "account_updated"
)

// PaymentGateway is the capability set the orchestrator needs from a payment
// provider. Stripe is the only implementation today.
type PaymentGateway interface {
	OpenSession(ctx context.Context, req SessionRequest) (*PaymentSession, error)
	ExpireSession(ctx context.Context, sessionID string) error
	// ParseEvent verifies and normalises a webhook delivery. An error means the
	// payload cannot be trusted and must not be recorded.
	ParseEvent(payload []byte, signature string) (*db.PaymentEvent, error)
	AccountStatus(ctx context.Context, accountID string) (db.OnboardingStatus, error)
	Refund(ctx context.Context, req RefundRequest) (string, error)
}

type SessionRequest struct {
	BookingID          string
	Description        string
	Amount             int64
	Currency           string
	PlatformFee        int64
	DestinationAccount string
	CustomerEmail      string
	SuccessURL         string
	CancelURL          string
}

type PaymentSession struct {
	ID  string
	URL string
}

type RefundRequest struct {
	PaymentRef     string
	Amount         int64
	IdempotencyKey string
}
