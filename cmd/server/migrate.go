package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botsdv/backend/internal/config"
	"github.com/botsdv/backend/internal/db"
	"github.com/botsdv/backend/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run PostgreSQL schema migrations",
}

func init() {
	for _, name := range []string{"up", "down", "status"} {
		migrateCmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "goose " + name + " against DATABASE_URL",
			RunE:  runMigrate(name),
		})
	}
}

func runMigrate(command string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for migrations")
		}
		logger := logging.New(cfg)
		if err := db.Migrate(context.Background(), cfg.DatabaseURL, command); err != nil {
			return fmt.Errorf("migrate %s: %w", command, err)
		}
		logger.Info().Str("command", command).Msg("migrations done")
		return nil
	}
}
