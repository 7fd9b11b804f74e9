package api

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"slotkeeper/internal/db"
	"slotkeeper/internal/entities"
	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/service"
)

const maxBodyBytes = int64(65536)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.ErrInvalidRequest.WithMessage("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return apperrors.ErrInvalidRequest.WithMessage(service.DescribeValidation(err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func toBookingResponse(b *db.Booking) entities.BookingResponse {
	return entities.BookingResponse{
		ID:        b.ID,
		ServiceID: b.ServiceID,
		Start:     b.StartTime,
		End:       b.EndTime,
		Status:    string(b.Status),
		ExpiresAt: b.ExpiresAt,
		Price:     b.Price,
		Currency:  b.Currency,
	}
}

func toAdminBookingResponse(b *db.Booking) entities.BookingResponse {
	resp := toBookingResponse(b)
	resp.CustomerName = b.Customer.Name
	resp.CustomerEmail = b.Customer.Email
	resp.CustomerPhone = b.Customer.Phone
	resp.PaymentRef = b.PaymentRef
	return resp
}
