package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memtensor/usergrid/pkg/config"
	"github.com/memtensor/usergrid/pkg/logger"
)

// app carries the state shared by every subcommand
type app struct {
	configFile string
	logLevel   string

	config *config.Manager
	logger *logger.SlogLogger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "usergrid",
		Short:         "User management API with server-side datatables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(a),
		newMigrateCommand(a),
		newSeedCommand(a),
		newConfigCommand(a),
		NewVersionCommand(),
	)

	return cmd
}

// init loads the configuration and builds the process logger
func (a *app) init() error {
	manager, err := config.NewManager(a.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.logLevel != "" {
		if err := manager.Set("log.level", a.logLevel); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}

	cfg := manager.Config()
	l, err := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		NoColor: cfg.Log.NoColor,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.config = manager
	a.logger = l
	return nil
}
