package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"slotkeeper/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL not set")
			}
			return migrate.Up(cfg.DatabaseURL, log)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL not set")
			}
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			if err := migrate.Down(cfg.DatabaseURL, steps); err != nil {
				return err
			}
			log.Info("migrations rolled back")
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}
