package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/memtensor/usergrid/api"
	"github.com/memtensor/usergrid/pkg/config"
	"github.com/memtensor/usergrid/pkg/database"
	"github.com/memtensor/usergrid/pkg/interfaces"
	"github.com/memtensor/usergrid/pkg/mail"
	"github.com/memtensor/usergrid/pkg/metrics"
	"github.com/memtensor/usergrid/pkg/tokens"
	"github.com/memtensor/usergrid/pkg/users"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.config.Config()

	a.logger.Info("Starting usergrid", map[string]interface{}{
		"version":    BuildVersion,
		"build_date": BuildDate,
		"git_commit": BuildHash,
		"env":        cfg.App.Env,
	})

	db, err := a.openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	prom := metrics.NewPrometheusMetrics("usergrid")

	manager, err := a.newManager(ctx, db, cfg, prom)
	if err != nil {
		return err
	}
	defer manager.Close()

	if err := a.seedSuperuser(ctx, manager, cfg.FirstSuperuser); err != nil {
		return err
	}

	if a.configFile != "" {
		a.config.Watch(
			func(c *config.Config) {
				a.logger.SetLevel(c.Log.Level)
				a.logger.Info("Configuration reloaded", map[string]interface{}{"log_level": c.Log.Level})
			},
			func(err error) {
				a.logger.Error("Ignoring invalid configuration change", err)
			},
		)
	}

	server := api.NewServer(cfg, manager, a.logger,
		api.WithPrometheus(prom),
		api.WithVersion(BuildVersion),
	)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	a.logger.Info("usergrid stopped")
	return nil
}

// openDatabase connects and, when enabled, brings the schema up to date
func (a *app) openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(ctx, cfg.Database, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(db, cfg.Database.Driver); err != nil {
			_ = database.Close(db)
			return nil, err
		}
		a.logger.Debug("Database schema is up to date")
	}

	return db, nil
}

// newManager assembles the user manager with its token store and mailer
func (a *app) newManager(ctx context.Context, db *gorm.DB, cfg *config.Config, m interfaces.Metrics) (*users.Manager, error) {
	store, err := tokens.New(ctx, cfg.Redis, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	mailer, err := mail.New(cfg.Mail, a.logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}

	manager, err := users.NewManager(db, users.FromAppConfig(cfg),
		users.WithLogger(a.logger),
		users.WithMetrics(m),
		users.WithMailer(mailer),
		users.WithTokenStore(store),
	)
	if err != nil {
		_ = mailer.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to create user manager: %w", err)
	}

	return manager, nil
}

func (a *app) seedSuperuser(ctx context.Context, manager *users.Manager, su config.SuperuserConfig) error {
	user, created, err := manager.SeedSuperuser(ctx, su)
	if err != nil {
		return err
	}
	if created {
		a.logger.Info("Created first superuser", map[string]interface{}{"username": user.Username, "id": user.ID})
	}
	return nil
}
