package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slotkeeper/internal/api"
	"slotkeeper/internal/migrate"
	"slotkeeper/internal/service"
	"slotkeeper/internal/worker"
)

func newServeCmd() *cobra.Command {
	var (
		store      string
		migrateUp  bool
		withJobs   bool
		withWorker bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			if store == storePostgres {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if migrateUp && store == storePostgres {
				if err := migrate.Up(cfg.DatabaseURL, log); err != nil {
					return err
				}
			}

			st, err := openStores(ctx, cfg, store, log)
			if err != nil {
				return err
			}
			defer st.close()

			queue := asynq.NewClient(redisOpt(cfg))
			defer queue.Close()
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			defer rdb.Close()

			gateway := service.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
			sender := newSender(cfg, st, queue, log)
			availability := service.NewAvailabilityService(st.calendar, st.bookings, cfg.MinLeadTime(),
				time.Duration(cfg.MaxRangeDays)*24*time.Hour, service.SystemClock)
			holds := service.NewHoldService(st.calendar, st.bookings, availability, gateway, log, service.SystemClock)
			payments := newPaymentService(cfg, st, gateway, sender, log)
			admin := service.NewAdminService(st.calendar, st.bookings, log, service.SystemClock)
			adminAuth := service.NewAdminAuthService(st.admins, st.calendar, cfg.JWTSecret, service.SystemClock)

			if withJobs {
				jobs := newJobService(cfg, st, payments, gateway, log)
				c := cron.New()
				if err := jobs.Schedule(ctx, c, cfg.SweepSchedule, cfg.ReprocessSchedule); err != nil {
					return err
				}
				c.Start()
				defer func() { <-c.Stop().Done() }()
				log.Info("background jobs scheduled",
					zap.String("sweep", cfg.SweepSchedule),
					zap.String("reprocess", cfg.ReprocessSchedule))
			}

			if withWorker {
				go func() {
					if err := worker.Run(ctx, workerConfig(cfg), worker.NewServeMux(sender, log), log); err != nil {
						log.Error("notification worker exited", zap.Error(err))
					}
				}()
			}

			router, err := api.NewRouter(api.RouterConfig{
				JWTSecret:          cfg.JWTSecret,
				AllowedOrigins:     cfg.AllowedOrigins(),
				RateLimitPerMinute: cfg.RateLimitPerMinute,
				RequestTimeout:     cfg.StoreTimeout,
				TrustedProxies:     cfg.TrustedProxies(),
			}, api.Handlers{
				Bookings:  api.NewBookingHandler(availability, holds, payments, log),
				Payments:  api.NewPaymentWebhookHandler(gateway, payments, holds, log),
				Admin:     api.NewAdminHandler(admin, log),
				AdminAuth: api.NewAdminAuthHandler(adminAuth, log),
				Health: &api.HealthHandler{Checks: map[string]api.Pinger{
					"store": st.pinger,
					"redis": api.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
				}},
			}, log)
			if err != nil {
				return err
			}

			return listen(ctx, ":"+cfg.AppPort, router, log)
		},
	}

	cmd.Flags().StringVar(&store, "store", storePostgres, "booking store: postgres or memory")
	cmd.Flags().BoolVar(&migrateUp, "migrate", false, "apply database migrations on startup")
	cmd.Flags().BoolVar(&withJobs, "jobs", true, "run the hold sweep and event reprocessing in this process")
	cmd.Flags().BoolVar(&withWorker, "worker", false, "also deliver notifications in this process")
	return cmd
}

func listen(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
