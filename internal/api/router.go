package api

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"slotkeeper/internal/auth"
)

type RouterConfig struct {
	JWTSecret          string
	AllowedOrigins     []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	// TrustedProxies may set X-Forwarded-For; addresses or CIDRs.
	TrustedProxies     []string
}

type Handlers struct {
	Bookings  *BookingHandler
	Payments  *PaymentWebhookHandler
	Admin     *AdminHandler
	AdminAuth *AdminAuthHandler
	Health    *HealthHandler
}

func NewRouter(cfg RouterConfig, h Handlers, logger *zap.Logger) (http.Handler, error) {
	ips, err := NewClientIPResolver(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(ips, logger), TimeoutMiddleware(cfg.RequestTimeout))

	r.HandleFunc("/healthz", h.Health.Health).Methods("GET")

	// Public endpoints
	public := r.PathPrefix("/api").Subrouter()
	public.HandleFunc("/payment-events", h.Payments.HandleWebhook).Methods("POST")
	public.HandleFunc("/payments/success", h.Payments.PaymentSuccess).Methods("GET")
	public.HandleFunc("/payments/cancel", h.Payments.PaymentCancel).Methods("GET")

	limited := public.NewRoute().Subrouter()
	limited.Use(RateLimitMiddleware(cfg.RateLimitPerMinute, ips, logger))
	limited.HandleFunc("/availability", h.Bookings.CheckAvailability).Methods("GET")
	limited.HandleFunc("/bookings", h.Bookings.CreateBooking).Methods("POST")
	limited.HandleFunc("/bookings/{id}", h.Bookings.GetBooking).Methods("GET")
	limited.HandleFunc("/bookings/{id}", h.Bookings.CancelBooking).Methods("DELETE")
	limited.HandleFunc("/bookings/{id}/pay", h.Bookings.Pay).Methods("POST")

	r.HandleFunc("/admin/login", h.AdminAuth.Login).Methods("POST")

	// Admin endpoints (protected)
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(auth.AdminAuthMiddleware(cfg.JWTSecret))
	admin.HandleFunc("/working-hours", h.Admin.CreateWorkingHours).Methods("POST")
	admin.HandleFunc("/working-hours", h.Admin.ListWorkingHours).Methods("GET")
	admin.HandleFunc("/blackouts", h.Admin.CreateBlackout).Methods("POST")
	admin.HandleFunc("/blackouts/{id}", h.Admin.DeleteBlackout).Methods("DELETE")
	admin.HandleFunc("/bookings", h.Admin.ListBookings).Methods("GET")

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(logger)), handlers.PrintRecoveryStack(false))
	return recovery(cors(r)), nil
}
