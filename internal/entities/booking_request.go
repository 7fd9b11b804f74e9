package entities

import "time"

type CustomerRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
	Language string `json:"language" validate:"omitempty,oneof=en es it"`
}

type CreateBookingRequest struct {
	ServiceID string          `json:"service_id" validate:"required"`
	SlotStart time.Time       `json:"slot_start" validate:"required"`
	Customer  CustomerRequest `json:"customer" validate:"required"`
}

type CreateBookingResponse struct {
	BookingID string    `json:"booking_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Status    string    `json:"status"`
}
