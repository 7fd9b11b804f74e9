package entities

import "time"

type BookingResponse struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"service_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	Price     *int64    `json:"price,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	// Only set on admin listings.
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	PaymentRef    string `json:"payment_ref,omitempty"`
}

type BookingsList struct {
	Total    int               `json:"total"`
	Bookings []BookingResponse `json:"bookings"`
}

type PaymentRedirectResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// PaymentStatusResponse backs the return pages. It is informational only;
// the booking is confirmed by the payment webhook.
type PaymentStatusResponse struct {
	BookingID string `json:"booking_id"`
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}
