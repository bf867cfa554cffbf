package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valtp/saas-platform/panel-service/internal/config"
	"github.com/valtp/saas-platform/panel-service/internal/db"
	"github.com/valtp/saas-platform/panel-service/internal/logging"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long:  `Apply the SQL migrations embedded in the binary that have not run yet.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		database, err := db.New(ctx, &cfg.Database, logging.Logger().Named("db"))
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer database.Close()

		applied, err := db.RunMigrations(ctx, database.Pool, logging.Logger().Named("migrate"))
		if err != nil {
			return err
		}

		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date.")
			return nil
		}
		for _, name := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
