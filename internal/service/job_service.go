package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"slotkeeper/internal/repository"
)

const sweepBatchSize = 500

type JobService struct {
	Sweeper          repository.HoldSweeper
	Payments         *PaymentService
	Gateway          PaymentGateway
	MaxEventAttempts int
	Timeout          time.Duration
	Logger           *zap.Logger
	Now              Clock
}

// ReleaseExpiredHolds moves every HELD booking past its expiry to RELEASED and
// expires the payment sessions they left open. Concurrent runs are safe.
func (s *JobService) ReleaseExpiredHolds(ctx context.Context) (int, error) {
	total := 0
	for {
		released, err := s.Sweeper.ReleaseExpiredHolds(ctx, s.Now.now(), sweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("cron job: failed to release expired holds: %w", err)
		}
		total += len(released)
		for _, b := range released {
			if b.PaymentSessionID == "" || s.Gateway == nil {
				continue
			}
			if err := s.Gateway.ExpireSession(ctx, b.PaymentSessionID); err != nil {
				s.Logger.Warn("could not expire payment session of released hold",
					zap.String("booking_id", b.ID),
					zap.String("session_id", b.PaymentSessionID),
					zap.Error(err))
			}
		}
		if len(released) < sweepBatchSize {
			break
		}
	}
	if total > 0 {
		s.Logger.Info("released expired holds", zap.Int("count", total))
	}
	return total, nil
}

// ReprocessPaymentEvents retries payment events that have not been applied yet.
func (s *JobService) ReprocessPaymentEvents(ctx context.Context) (int, error) {
	n, err := s.Payments.ReprocessPending(ctx, s.MaxEventAttempts, sweepBatchSize)
	if err != nil {
		return n, fmt.Errorf("cron job: failed to reprocess payment events: %w", err)
	}
	if n > 0 {
		s.Logger.Info("reprocessed payment events", zap.Int("count", n))
	}
	return n, nil
}

// Schedule registers the sweep and the event reprocessing on c.
func (s *JobService) Schedule(ctx context.Context, c *cron.Cron, sweepSpec, reprocessSpec string) error {
	if _, err := c.AddFunc(sweepSpec, s.run(ctx, "sweep", s.ReleaseExpiredHolds)); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", sweepSpec, err)
	}
	if _, err := c.AddFunc(reprocessSpec, s.run(ctx, "reprocess", s.ReprocessPaymentEvents)); err != nil {
		return fmt.Errorf("invalid reprocess schedule %q: %w", reprocessSpec, err)
	}
	return nil
}

func (s *JobService) run(ctx context.Context, name string, job func(context.Context) (int, error)) func() {
	return func() {
		jobCtx, cancel := context.WithTimeout(ctx, s.timeout())
		defer cancel()
		if _, err := job(jobCtx); err != nil {
			s.Logger.Error("cron job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

func (s *JobService) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return time.Minute
}
