package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/memtensor/usergrid/pkg/database"
)

func newMigrateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withMigrator(cmd, func(mg *database.Migrator) error {
					if err := mg.Up(); err != nil {
						return err
					}
					return printVersion(cmd, mg)
				})
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations, all of them when steps is omitted",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 0
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return fmt.Errorf("invalid steps %q: must be a positive integer", args[0])
					}
					steps = n
				}
				return a.withMigrator(cmd, func(mg *database.Migrator) error {
					if err := mg.Down(steps); err != nil {
						return err
					}
					return printVersion(cmd, mg)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withMigrator(cmd, func(mg *database.Migrator) error {
					return printVersion(cmd, mg)
				})
			},
		},
	)

	return cmd
}

func (a *app) withMigrator(cmd *cobra.Command, fn func(*database.Migrator) error) error {
	cfg := a.config.Config()

	db, err := database.Open(cmd.Context(), cfg.Database, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close(db)

	mg, err := database.NewMigrator(db, cfg.Database.Driver)
	if err != nil {
		return err
	}
	return fn(mg)
}

func printVersion(cmd *cobra.Command, mg *database.Migrator) error {
	version, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if dirty {
		fmt.Fprintf(out, "schema version: %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(out, "schema version: %d\n", version)
	return nil
}
