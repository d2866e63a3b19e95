package main

import (
	"database/sql"
	"fmt"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/app"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/config"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/infrastructure/store"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migrations",
		RunE: withDB(func(cmd *cobra.Command, db *sql.DB) error {
			if err := store.RollbackMigrations(db, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withDB(func(cmd *cobra.Command, db *sql.DB) error {
			if err := store.RunMigrations(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		}),
	})
	cmd.AddCommand(down)
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: withDB(func(cmd *cobra.Command, db *sql.DB) error {
			version, dirty, err := store.MigrationVersion(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		}),
	})

	return cmd
}

// withDB opens DATABASE_URL for the duration of one command.
func withDB(run func(cmd *cobra.Command, db *sql.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		db, err := app.Connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		return run(cmd, db)
	}
}
