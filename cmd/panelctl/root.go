package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valtp/saas-platform/panel-service/internal/app"
	"github.com/valtp/saas-platform/panel-service/internal/config"
	"github.com/valtp/saas-platform/panel-service/internal/logging"
)

var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "panelctl",
	Short: "Operator tool for the panel service",
	Long: `panelctl applies database migrations and inspects the Pterodactyl
instances registered with the panel service.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitLogger(logLevel)
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

// openStores loads the service configuration and connects to PostgreSQL.
func openStores(ctx context.Context) (*config.Config, *app.Stores, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Driver == "memory" {
		return nil, nil, fmt.Errorf("panelctl needs DB_DRIVER=postgres")
	}

	stores, err := app.OpenStores(ctx, &cfg.Database, logging.Logger().Named("db"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, stores, nil
}
