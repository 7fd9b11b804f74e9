package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"slotkeeper/internal/db"
	"slotkeeper/internal/entities"
	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/service"
)

type PaymentWebhookHandler struct {
	Gateway  service.PaymentGateway
	Payments *service.PaymentService
	Holds    *service.HoldService
	Logger   *zap.Logger
}

func NewPaymentWebhookHandler(gateway service.PaymentGateway, payments *service.PaymentService, holds *service.HoldService, logger *zap.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{Gateway: gateway, Payments: payments, Holds: holds, Logger: logger}
}

// HandleWebhook acknowledges every event that was durably recorded, even when
// applying it failed: failures are retried by the reprocessing job, not by the
// gateway. Only payloads that cannot be verified get a 400.
func (h *PaymentWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Warn("error reading webhook body", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event, err := h.Gateway.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.Logger.Warn("webhook signature verification failed", zap.Error(err))
		apperrors.WriteJSON(w, apperrors.ErrUnrecognizedPaymentEvent)
		return
	}

	outcome, err := h.Payments.HandlePaymentEvent(r.Context(), event)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUnrecognizedPaymentEvent):
		outcome = "rejected"
	default:
		if _, getErr := h.Payments.Events.GetEvent(r.Context(), event.ID); getErr != nil {
			// Not even recorded: let the gateway deliver it again.
			h.Logger.Error("payment event could not be recorded", zap.String("event_id", event.ID), zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		outcome = "pending"
	}
	writeJSON(w, http.StatusOK, map[string]string{"event_id": event.ID, "outcome": outcome})
}

// PaymentSuccess and PaymentCancel back the gateway's return URLs. They only
// report the booking's current status; the webhook decides the outcome.
func (h *PaymentWebhookHandler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	h.paymentStatus(w, r, map[db.BookingStatus]string{
		db.StatusHeld:      "Payment received, waiting for confirmation.",
		db.StatusConfirmed: "Your booking is confirmed.",
		db.StatusReleased:  "Your hold expired. Any payment taken will be refunded.",
		db.StatusFailed:    "The payment did not go through.",
	})
}

func (h *PaymentWebhookHandler) PaymentCancel(w http.ResponseWriter, r *http.Request) {
	h.paymentStatus(w, r, map[db.BookingStatus]string{
		db.StatusHeld:      "Payment cancelled. The slot stays held until the hold expires.",
		db.StatusConfirmed: "Your booking is confirmed.",
		db.StatusReleased:  "Payment cancelled and the slot was released.",
		db.StatusFailed:    "Payment cancelled.",
	})
}

func (h *PaymentWebhookHandler) paymentStatus(w http.ResponseWriter, r *http.Request, messages map[db.BookingStatus]string) {
	bookingID := r.URL.Query().Get("booking_id")
	if bookingID == "" {
		apperrors.WriteJSON(w, apperrors.ErrInvalidRequest.WithMessage("booking_id required"))
		return
	}
	b, err := h.Holds.GetBooking(r.Context(), bookingID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.PaymentStatusResponse{
		BookingID: b.ID,
		SessionID: r.URL.Query().Get("session_id"),
		Status:    string(b.Status),
		Message:   messages[b.Status],
	})
}
