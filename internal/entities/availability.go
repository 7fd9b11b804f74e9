package entities

import "time"

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type AvailabilityResponse struct {
	ServiceID string         `json:"service_id"`
	From      time.Time      `json:"from"`
	To        time.Time      `json:"to"`
	Slots     []SlotResponse `json:"slots"`
}
