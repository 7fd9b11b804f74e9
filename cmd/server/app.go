package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"slotkeeper/internal/api"
	"slotkeeper/internal/config"
	"slotkeeper/internal/db"
	"slotkeeper/internal/logger"
	"slotkeeper/internal/repository"
	"slotkeeper/internal/repository/memory"
	"slotkeeper/internal/service"
	"slotkeeper/internal/worker"
)

const (
	storePostgres = "postgres"
	storeMemory   = "memory"
)

// stores groups the persistence the services are built on.
type stores struct {
	calendar repository.CalendarStore
	bookings repository.BookingStore
	sweeper  repository.HoldSweeper
	events   repository.PaymentEventStore
	admins   repository.AdminAuthRepository
	pinger   api.Pinger
	close    func() error
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}
	conn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	return conn, nil
}

func openStores(ctx context.Context, cfg config.Config, kind string, log *zap.Logger) (*stores, error) {
	switch kind {
	case storePostgres:
		conn, err := openDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &stores{
			calendar: repository.NewCalendarRepository(conn),
			bookings: repository.NewBookingRepository(conn),
			sweeper:  repository.NewJobRepository(conn),
			events:   repository.NewPaymentEventRepository(conn),
			admins:   repository.NewAdminAuthRepository(conn),
			pinger:   conn,
			close:    conn.Close,
		}, nil
	case storeMemory:
		mem := memory.New()
		seedDemo(mem, log)
		return &stores{
			calendar: mem,
			bookings: mem,
			sweeper:  mem,
			events:   mem,
			admins:   mem,
			pinger:   api.PingerFunc(func(context.Context) error { return nil }),
			close:    func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unknown store %q, use %s or %s", kind, storePostgres, storeMemory)
	}
}

// seedDemo gives the in-memory store one free service so the booking flow can
// be tried without a database or a payment account.
func seedDemo(mem *memory.Store, log *zap.Logger) {
	orgID, serviceID := uuid.NewString(), uuid.NewString()
	mem.PutOrganization(db.Organization{
		ID:               orgID,
		Slug:             "demo",
		Name:             "Demo Studio",
		Timezone:         "Europe/Madrid",
		Plan:             db.PlanFree,
		OnboardingStatus: db.OnboardingPending,
	})
	mem.PutService(db.Service{
		ID:              serviceID,
		OrganizationID:  orgID,
		Name:            "Consultation",
		DurationMinutes: 30,
		Currency:        "eur",
		Active:          true,
	})
	for day := time.Monday; day <= time.Friday; day++ {
		_ = mem.CreateWorkingHours(context.Background(), &db.WorkingHoursRule{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			DayOfWeek:      day,
			StartMinute:    9 * 60,
			EndMinute:      17 * 60,
		})
	}
	log.Info("memory store seeded", zap.String("organization_id", orgID), zap.String("service_id", serviceID))
}

func redisOpt(cfg config.Config) asynq.RedisClientOpt {
	return workerConfig(cfg).RedisOpt()
}

func workerConfig(cfg config.Config) worker.Config {
	return worker.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	}
}

// newSender builds the notification service. The queue is only needed on the
// enqueueing side; the worker only delivers.
func newSender(cfg config.Config, st *stores, queue service.TaskEnqueuer, log *zap.Logger) *service.SenderService {
	return &service.SenderService{
		Queue:    queue,
		Bookings: st.bookings,
		Calendar: st.calendar,
		Email:    service.NewSendGridMailer(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName, log),
		SMS:      service.NewTwilioMessenger(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, log),
		Logger:   log,
	}
}

func newPaymentService(cfg config.Config, st *stores, gateway service.PaymentGateway, notifier service.Notifier, log *zap.Logger) *service.PaymentService {
	return &service.PaymentService{
		Calendar:        st.calendar,
		Bookings:        st.bookings,
		Events:          st.events,
		Gateway:         gateway,
		Fees:            service.NewFeePolicy(),
		Notifier:        notifier,
		PublicBaseURL:   cfg.PublicBaseURL,
		DefaultCurrency: cfg.DefaultCurrency,
		Logger:          log,
		Now:             service.SystemClock,
	}
}

func newJobService(cfg config.Config, st *stores, payments *service.PaymentService, gateway service.PaymentGateway, log *zap.Logger) *service.JobService {
	return &service.JobService{
		Sweeper:          st.sweeper,
		Payments:         payments,
		Gateway:          gateway,
		MaxEventAttempts: cfg.MaxEventAttempts,
		Logger:           log,
		Now:              service.SystemClock,
	}
}
