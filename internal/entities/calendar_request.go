package entities

import "time"

type WorkingHoursRequest struct {
	ServiceID *string `json:"service_id" validate:"omitempty,uuid"`
	DayOfWeek int     `json:"day_of_week" validate:"min=0,max=6"`
	// Minutes since local midnight, e.g. 540 for 09:00.
	StartMinute int    `json:"start_minute" validate:"min=0,max=1439"`
	EndMinute   int    `json:"end_minute" validate:"min=1,max=1440,gtfield=StartMinute"`
	Timezone    string `json:"timezone" validate:"omitempty,timezone"`
}

type WorkingHoursResponse struct {
	ID          string  `json:"id"`
	ServiceID   *string `json:"service_id,omitempty"`
	DayOfWeek   int     `json:"day_of_week"`
	StartMinute int     `json:"start_minute"`
	EndMinute   int     `json:"end_minute"`
	Timezone    string  `json:"timezone,omitempty"`
}

type BlackoutRequest struct {
	ServiceID *string   `json:"service_id" validate:"omitempty,uuid"`
	Start     time.Time `json:"start" validate:"required"`
	End       time.Time `json:"end" validate:"required,gtfield=Start"`
	Reason    string    `json:"reason" validate:"max=500"`
}

type BlackoutResponse struct {
	ID        string    `json:"id"`
	ServiceID *string   `json:"service_id,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Reason    string    `json:"reason,omitempty"`
}
