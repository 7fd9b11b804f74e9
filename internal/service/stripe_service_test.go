package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"slotkeeper/internal/db"
)

const testWebhookSecret = "whsec_test"

func signed(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testWebhookSecret,
	})
	return sp.Payload, sp.Header
}

func checkoutEvent(id, typ, paymentStatus string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"client_reference_id": "booking-1",
			"payment_intent": "pi_123",
			"payment_status": %q,
			"amount_total": 5000
		}}
	}`, id, typ, paymentStatus)
}

func TestStripeParseEvent_CheckoutCompleted(t *testing.T) {
	s := &StripeService{WebhookSecret: testWebhookSecret}
	payload, sig := signed(t, checkoutEvent("evt_1", "checkout.session.completed", "paid"))

	e, err := s.ParseEvent(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", e.ID)
	assert.Equal(t, EventSucceeded, e.Type)
	assert.Equal(t, "booking-1", e.BookingID)
	assert.Equal(t, "cs_test_1", e.SessionID)
	assert.Equal(t, "pi_123", e.PaymentRef)
	assert.Equal(t, int64(5000), e.Amount)
	assert.Equal(t, payload, e.Payload)
}

func TestStripeParseEvent_TypeMapping(t *testing.T) {
	s := &StripeService{WebhookSecret: testWebhookSecret}
	tests := []struct {
		stripeType    string
		paymentStatus string
		want          string
	}{
		{"checkout.session.completed", "unpaid", EventIgnored},
		{"checkout.session.async_payment_succeeded", "paid", EventSucceeded},
		{"checkout.session.async_payment_failed", "unpaid", EventFailed},
		{"checkout.session.expired", "unpaid", EventCanceled},
		{"charge.dispute.created", "paid", "charge.dispute.created"},
	}
	for _, tt := range tests {
		t.Run(tt.stripeType, func(t *testing.T) {
			payload, sig := signed(t, checkoutEvent("evt_"+tt.stripeType, tt.stripeType, tt.paymentStatus))
			e, err := s.ParseEvent(payload, sig)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Type)
		})
	}
}

func TestStripeParseEvent_MissingBookingReference(t *testing.T) {
	s := &StripeService{WebhookSecret: testWebhookSecret}
	payload, sig := signed(t, `{"id":"evt_2","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_2","object":"checkout.session","payment_status":"paid"}}}`)

	e, err := s.ParseEvent(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, EventMalformed, e.Type)
}

func TestStripeParseEvent_AccountUpdated(t *testing.T) {
	s := &StripeService{WebhookSecret: testWebhookSecret}
	payload, sig := signed(t, `{"id":"evt_3","object":"event","type":"account.updated",
		"data":{"object":{"id":"acct_1","object":"account","charges_enabled":true,"payouts_enabled":true,"details_submitted":true}}}`)

	e, err := s.ParseEvent(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, EventAccountUpdated, e.Type)
	assert.Equal(t, "acct_1", e.AccountID)
	assert.Equal(t, db.OnboardingActive, e.AccountStatus)
}

func TestStripeParseEvent_BadSignature(t *testing.T) {
	s := &StripeService{WebhookSecret: "whsec_other"}
	payload, sig := signed(t, checkoutEvent("evt_1", "checkout.session.completed", "paid"))

	_, err := s.ParseEvent(payload, sig)
	assert.Error(t, err)

	_, err = s.ParseEvent(payload, "")
	assert.Error(t, err)
}
