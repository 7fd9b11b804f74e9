package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"slotkeeper/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued booking notifications",
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

			sender := newSender(cfg, st, nil, log)
			wc := workerConfig(cfg)
			wc.Concurrency = concurrency
			return worker.Run(ctx, wc, worker.NewServeMux(sender, log), log)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "number of notifications delivered in parallel")
	return cmd
}
