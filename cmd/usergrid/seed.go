package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memtensor/usergrid/pkg/database"
	"github.com/memtensor/usergrid/pkg/metrics"
)

func newSeedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the configured first superuser if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.config.Config()

			db, err := a.openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer database.Close(db)

			manager, err := a.newManager(ctx, db, cfg, metrics.NewNoOpMetrics())
			if err != nil {
				return err
			}
			defer manager.Close()

			user, created, err := manager.SeedSuperuser(ctx, cfg.FirstSuperuser)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created superuser %s (id %d)\n", user.Username, user.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "superuser %s already exists (id %d)\n", user.Username, user.ID)
			}
			return nil
		},
	}
}
