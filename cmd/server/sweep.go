package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slotkeeper/internal/service"
)

// newSweepCmd runs the background jobs once, for deployments that schedule
// them outside the API process.
func newSweepCmd() *cobra.Command {
	var skipEvents bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Release expired holds and retry pending payment events once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			st, err := openStores(ctx, cfg, storePostgres, log)
			if err != nil {
				return err
			}
			defer st.close()

			queue := asynq.NewClient(redisOpt(cfg))
			defer queue.Close()

			gateway := service.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
			payments := newPaymentService(cfg, st, gateway, newSender(cfg, st, queue, log), log)
			jobs := newJobService(cfg, st, payments, gateway, log)

			released, err := jobs.ReleaseExpiredHolds(ctx)
			if err != nil {
				return err
			}
			reprocessed := 0
			if !skipEvents {
				if reprocessed, err = jobs.ReprocessPaymentEvents(ctx); err != nil {
					return err
				}
			}
			log.Info("sweep finished", zap.Int("released", released), zap.Int("reprocessed", reprocessed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipEvents, "skip-events", false, "only release expired holds")
	return cmd
}
