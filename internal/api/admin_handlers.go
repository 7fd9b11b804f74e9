package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"slotkeeper/internal/auth"
	"slotkeeper/internal/db"
	"slotkeeper/internal/entities"
	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/service"
)

type AdminHandler struct {
	Service *service.AdminService
	Logger  *zap.Logger
}

func NewAdminHandler(svc *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{Service: svc, Logger: logger}
}

func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := apperrors.AsDomain(err); !ok {
		h.Logger.Error("admin request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	apperrors.WriteJSON(w, err)
}

func (h *AdminHandler) CreateWorkingHours(w http.ResponseWriter, r *http.Request) {
	var req entities.WorkingHoursRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rule, err := h.Service.AddWorkingHours(r.Context(), auth.OrganizationID(r.Context()), db.WorkingHoursRule{
		ServiceID:   req.ServiceID,
		DayOfWeek:   time.Weekday(req.DayOfWeek),
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Timezone:    req.Timezone,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkingHoursResponse(rule))
}

func (h *AdminHandler) ListWorkingHours(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Service.ListWorkingHours(r.Context(), auth.OrganizationID(r.Context()), r.URL.Query().Get("service"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := make([]entities.WorkingHoursResponse, len(rules))
	for i := range rules {
		resp[i] = toWorkingHoursResponse(&rules[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) CreateBlackout(w http.ResponseWriter, r *http.Request) {
	var req entities.BlackoutRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	bw, err := h.Service.AddBlackout(r.Context(), auth.OrganizationID(r.Context()), db.BlackoutWindow{
		ServiceID: req.ServiceID,
		StartTime: req.Start,
		EndTime:   req.End,
		Reason:    req.Reason,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.BlackoutResponse{
		ID:        bw.ID,
		ServiceID: bw.ServiceID,
		Start:     bw.StartTime,
		End:       bw.EndTime,
		Reason:    bw.Reason,
	})
}

func (h *AdminHandler) DeleteBlackout(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.RemoveBlackout(r.Context(), auth.OrganizationID(r.Context()), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bookings, err := h.Service.ListBookings(r.Context(), auth.OrganizationID(r.Context()),
		q.Get("service"), q.Get("date"), db.BookingStatus(q.Get("status")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := entities.BookingsList{Total: len(bookings), Bookings: make([]entities.BookingResponse, len(bookings))}
	for i := range bookings {
		resp.Bookings[i] = toAdminBookingResponse(&bookings[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func toWorkingHoursResponse(rule *db.WorkingHoursRule) entities.WorkingHoursResponse {
	return entities.WorkingHoursResponse{
		ID:          rule.ID,
		ServiceID:   rule.ServiceID,
		DayOfWeek:   int(rule.DayOfWeek),
		StartMinute: rule.StartMinute,
		EndMinute:   rule.EndMinute,
		Timezone:    rule.Timezone,
	}
}
