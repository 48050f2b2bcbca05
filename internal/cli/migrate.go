package cli

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/forsitet/review-workflow-service/internal/config"
	"github.com/forsitet/review-workflow-service/internal/repo/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(m *migrator) error {
			return postgres.RunMigrations(cmd.Context(), m.db.DB, m.logger)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(m *migrator) error {
			return postgres.RollbackMigration(cmd.Context(), m.db.DB, m.logger)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, func(m *migrator) error {
			v, err := postgres.MigrationVersion(cmd.Context(), m.db.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

type migrator struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func withDB(cmd *cobra.Command, fn func(m *migrator) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires storage.driver %q, got %q", config.DriverPostgres, cfg.Storage.Driver)
	}

	db, err := connectPostgres(cmd.Context(), cfg.DB, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close db", "error", err)
		}
	}()

	return fn(&migrator{db: db, logger: logger})
}
