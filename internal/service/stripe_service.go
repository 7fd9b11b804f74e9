package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"

	"slotkeeper/internal/db"
)

// StripeService is the PaymentGateway backed by Stripe Checkout with
// destination charges to the organization's connected account.
type StripeService struct {
	WebhookSecret string
}

var _ PaymentGateway = (*StripeService)(nil)

func NewStripeService(secretKey, webhookSecret string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{WebhookSecret: webhookSecret}
}

func (s *StripeService) OpenSession(ctx context.Context, req SessionRequest) (*PaymentSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(req.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.BookingID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(req.PlatformFee),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(req.DestinationAccount),
			},
			Metadata: map[string]string{"booking_id": req.BookingID},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("booking_id", req.BookingID)
	params.SetIdempotencyKey("checkout-" + req.BookingID)
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, err
	}
	return &PaymentSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *StripeService) ExpireSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := session.Expire(sessionID, params)
	return err
}

// Refund returns a payment in full or in part. The transfer to the connected
// account and the platform fee are reversed with it.
func (s *StripeService) Refund(ctx context.Context, req RefundRequest) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent:        stripe.String(req.PaymentRef),
		ReverseTransfer:      stripe.Bool(true),
		RefundApplicationFee: stripe.Bool(true),
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx
	r, err := refund.New(params)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *StripeService) AccountStatus(ctx context.Context, accountID string) (db.OnboardingStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return "", err
	}
	return onboardingStatus(acct), nil
}

// ParseEvent verifies the Stripe-Signature header and maps the event onto the
// engine's event types. Types the engine does not know keep their Stripe name.
func (s *StripeService) ParseEvent(payload []byte, signature string) (*db.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("error verifying webhook signature: %w", err)
	}

	pe := &db.PaymentEvent{ID: event.ID, Type: string(event.Type), Payload: payload}
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			pe.Type = EventMalformed
			return pe, nil
		}
		pe.BookingID = cs.ClientReferenceID
		if pe.BookingID == "" {
			pe.BookingID = cs.Metadata["booking_id"]
		}
		pe.SessionID = cs.ID
		pe.Amount = cs.AmountTotal
		if cs.PaymentIntent != nil {
			pe.PaymentRef = cs.PaymentIntent.ID
		}
		pe.Type = checkoutEventType(event.Type, &cs)
		if pe.BookingID == "" {
			pe.Type = EventMalformed
		}
	case stripe.EventTypeAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			pe.Type = EventMalformed
			return pe, nil
		}
		pe.AccountID = acct.ID
		pe.AccountStatus = onboardingStatus(&acct)
		pe.Type = EventAccountUpdated
	}
	return pe, nil
}

func checkoutEventType(t stripe.EventType, cs *stripe.CheckoutSession) string {
	switch t {
	case stripe.EventTypeCheckoutSessionCompleted:
		// Delayed payment methods complete the session before the money arrives.
		if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return EventIgnored
		}
		return EventSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return EventSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		return EventFailed
	default:
		return EventCanceled
	}
}

func onboardingStatus(acct *stripe.Account) db.OnboardingStatus {
	switch {
	case acct.ChargesEnabled && acct.PayoutsEnabled:
		return db.OnboardingActive
	case acct.DetailsSubmitted:
		return db.OnboardingRestricted
	default:
		return db.OnboardingPending
	}
}
