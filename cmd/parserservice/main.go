// Command parserservice runs the distributor parsing service: scheduled
// catalogue indexing, album detail parsing and outbox publication, plus
// the admin HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/app"
	"github.com/metaltracker/parser-service/internal/database"
	"github.com/metaltracker/parser-service/internal/logging"
	"github.com/metaltracker/parser-service/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "parserservice",
		Short:         "Metal release distributor parsing service",
		Long:          "parserservice crawls distributor webshops on a schedule, stages parsed album records in a durable outbox and hands them off to the downstream catalogue pipeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgPath)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")
	cmd.AddCommand(newMigrateCmd(&cfgPath))
	return cmd
}

func run(parent context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logging.Init(cfg.Logging.Development); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger := logging.L

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// newMigrateCmd applies database migrations and exits, for deployments
// that run them separately from the service.
func newMigrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Database.DSN == "" {
				return fmt.Errorf("database.dsn is required")
			}
			if err := logging.Init(cfg.Logging.Development); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			version, dirty, err := database.RunMigrations(cfg.Database.DSN)
			if err != nil {
				return err
			}
			logging.L.Info("Migrations applied",
				zap.Uint("version", version), zap.Bool("dirty", dirty))
			return nil
		},
	}
}
