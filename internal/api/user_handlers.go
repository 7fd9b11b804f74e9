package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"slotkeeper/internal/db"
	"slotkeeper/internal/entities"
	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/service"
)

// BookingHandler serves the public booking flow.
type BookingHandler struct {
	Availability *service.AvailabilityService
	Holds        *service.HoldService
	Payments     *service.PaymentService
	Logger       *zap.Logger
}

func NewBookingHandler(availability *service.AvailabilityService, holds *service.HoldService, payments *service.PaymentService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{Availability: availability, Holds: holds, Payments: payments, Logger: logger}
}

func (h *BookingHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := apperrors.AsDomain(err); !ok {
		h.Logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	apperrors.WriteJSON(w, err)
}

func (h *BookingHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID := q.Get("service")
	if serviceID == "" {
		h.fail(w, r, apperrors.ErrInvalidRequest.WithMessage("service is required"))
		return
	}
	from, errFrom := time.Parse(time.RFC3339, q.Get("from"))
	to, errTo := time.Parse(time.RFC3339, q.Get("to"))
	if errFrom != nil || errTo != nil {
		h.fail(w, r, apperrors.ErrInvalidRange.WithMessage("from and to must be RFC3339 timestamps"))
		return
	}

	slots, err := h.Availability.Slots(r.Context(), serviceID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := entities.AvailabilityResponse{ServiceID: serviceID, From: from, To: to, Slots: make([]entities.SlotResponse, len(slots))}
	for i, s := range slots {
		resp.Slots[i] = entities.SlotResponse{Start: s.Start, End: s.End}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req entities.CreateBookingRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.Holds.CreateHold(r.Context(), req.ServiceID, req.SlotStart, db.Customer{
		Name:     req.Customer.Name,
		Email:    req.Customer.Email,
		Phone:    req.Customer.Phone,
		Language: req.Customer.Language,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.CreateBookingResponse{
		BookingID: b.ID,
		ExpiresAt: b.ExpiresAt,
		Status:    string(b.Status),
	})
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Holds.GetBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Holds.CancelHold(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Pay(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.Payments.OpenPaymentSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.PaymentRedirectResponse{RedirectURL: redirect})
}
