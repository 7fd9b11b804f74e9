package api

import (
	"context"
	"net/http"
)

// Pinger is anything the health check can ping, such as *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a function, for example a Redis ping, to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	Checks map[string]Pinger
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{}
	for name, p := range h.Checks {
		if err := p.PingContext(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}
	writeJSON(w, status, body)
}
