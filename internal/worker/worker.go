package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	apperrors "slotkeeper/internal/errors"
	"slotkeeper/internal/service"
)

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

func (c Config) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Deliverer sends a queued booking notification.
type Deliverer interface {
	Deliver(ctx context.Context, p service.NotificationPayload) error
}

func NewServeMux(d Deliverer, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TypeBookingNotification, HandleBookingNotification(d, logger))
	return mux
}

// HandleBookingNotification delivers one notification task. Payloads that can
// never succeed are not retried.
func HandleBookingNotification(d Deliverer, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p service.NotificationPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("invalid notification payload", zap.Error(err))
			return fmt.Errorf("invalid notification payload: %v: %w", err, asynq.SkipRetry)
		}
		if p.BookingID == "" {
			return fmt.Errorf("notification without booking id: %w", asynq.SkipRetry)
		}

		err := d.Deliver(ctx, p)
		switch {
		case err == nil:
			logger.Info("notification delivered", zap.String("booking_id", p.BookingID), zap.String("kind", p.Kind))
			return nil
		case errors.Is(err, apperrors.ErrBookingNotFound):
			logger.Warn("notification for unknown booking dropped", zap.String("booking_id", p.BookingID))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		default:
			logger.Error("notification delivery failed",
				zap.String("booking_id", p.BookingID),
				zap.String("kind", p.Kind),
				zap.Error(err))
			return err
		}
	}
}

// Run processes queued tasks until ctx is cancelled.
func Run(ctx context.Context, cfg Config, mux *asynq.ServeMux, logger *zap.Logger) error {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(cfg.RedisOpt(), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		Logger:      logger.Sugar(),
	})
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start notification worker: %w", err)
	}
	logger.Info("notification worker started", zap.Int("concurrency", concurrency))

	<-ctx.Done()
	srv.Shutdown()
	logger.Info("notification worker stopped")
	return nil
}
