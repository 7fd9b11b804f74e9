package errors

import (
	stderrors "errors"
	"net/http"
)

// DomainError is a stable, client-facing failure of the reservation engine.
// Sentinels are compared with errors.Is; callers add context with fmt.Errorf("...: %w").
type DomainError struct {
	Code    string
	Status  int
	Message string
}

func (e *DomainError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrSlotConflict                 = &DomainError{"SlotConflict", http.StatusConflict, "slot just taken, pick another"}
	ErrSlotExpiredOrInvalid         = &DomainError{"SlotExpiredOrInvalid", http.StatusUnprocessableEntity, "the selected slot is no longer offered"}
	ErrInvalidTransition            = &DomainError{"InvalidTransition", http.StatusConflict, "booking cannot change from its current status"}
	ErrBookingNotHeldOrExpired      = &DomainError{"BookingNotHeldOrExpired", http.StatusConflict, "booking hold is no longer active"}
	ErrPayoutAccountNotReady        = &DomainError{"PayoutAccountNotReady", http.StatusConflict, "this business cannot accept payments yet"}
	ErrUnrecognizedPaymentEvent     = &DomainError{"UnrecognizedPaymentEvent", http.StatusBadRequest, "payment event not recognized"}
	ErrBookingNotFound              = &DomainError{"BookingNotFound", http.StatusNotFound, "booking not found"}
	ErrServiceNotFound              = &DomainError{"ServiceNotFound", http.StatusNotFound, "service not found"}
	ErrOrganizationNotFound         = &DomainError{"OrganizationNotFound", http.StatusNotFound, "organization not found"}
	ErrInvalidRange                 = &DomainError{"InvalidRange", http.StatusBadRequest, "invalid time range"}
	ErrInvalidRequest               = &DomainError{"InvalidRequest", http.StatusBadRequest, "invalid request"}
	ErrBlackoutConflictsWithBooking = &DomainError{"BlackoutConflictsWithBooking", http.StatusConflict, "blackout overlaps a confirmed booking"}
	ErrNotFound                     = &DomainError{"NotFound", http.StatusNotFound, "not found"}
	ErrInvalidCredentials           = &DomainError{"Unauthorized", http.StatusUnauthorized, "invalid credentials"}
)

// Is lets a DomainError created with WithMessage still match its sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *DomainError) WithMessage(msg string) *DomainError {
	return &DomainError{Code: e.Code, Status: e.Status, Message: msg}
}

// AsDomain unwraps err to its DomainError, if any.
func AsDomain(err error) (*DomainError, bool) {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func asHTTP(err error) (*HTTPError, bool) {
	var he *HTTPError
	if stderrors.As(err, &he) {
		return he, true
	}
	return nil, false
}
