package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slotkeeper/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage organization administrators",
	}

	var orgID, email, password string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.StoreTimeout)
			defer cancel()

			st, err := openStores(ctx, cfg, storePostgres, log)
			if err != nil {
				return err
			}
			defer st.close()

			auth := service.NewAdminAuthService(st.admins, st.calendar, cfg.JWTSecret, service.SystemClock)
			if err := auth.CreateAdmin(ctx, orgID, email, password); err != nil {
				return err
			}
			log.Info("admin created", zap.String("organization_id", orgID), zap.String("email", email))
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created\n", email)
			return nil
		},
	}
	create.Flags().StringVar(&orgID, "org", "", "organization id")
	create.Flags().StringVar(&email, "email", "", "login email")
	create.Flags().StringVar(&password, "password", "", "login password, at least 8 characters")
	for _, f := range []string{"org", "email", "password"} {
		_ = create.MarkFlagRequired(f)
	}

	cmd.AddCommand(create)
	return cmd
}
