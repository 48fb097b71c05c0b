package cli

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/config"
	"github.com/ekaya-inc/ekaya-drafts/pkg/database"
)

// NewMigrateCommand groups schema migration subcommands.
func NewMigrateCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(version)
			if err != nil {
				return err
			}
			return withSQL(cfg, func(db *sql.DB) error {
				return database.RollbackMigrations(db, cfg.Database.MigrationsPath, steps, logger)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup(version)
				if err != nil {
					return err
				}
				return migrateUp(cfg, logger)
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup(version)
				if err != nil {
					return err
				}
				return withSQL(cfg, func(db *sql.DB) error {
					v, dirty, err := database.MigrationVersion(db, cfg.Database.MigrationsPath, logger)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
					return nil
				})
			},
		},
	)

	return cmd
}

// migrateUp applies pending migrations on a short-lived database/sql handle.
func migrateUp(cfg *config.Config, logger *zap.Logger) error {
	return withSQL(cfg, func(db *sql.DB) error {
		return database.RunMigrations(db, cfg.Database.MigrationsPath, logger)
	})
}

// withSQL opens a database/sql handle for the duration of fn.
func withSQL(cfg *config.Config, fn func(db *sql.DB) error) error {
	db, err := database.OpenSQL(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
