package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-reconcile/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: groupData,
	Short:   "Manage the Postgres schema",
	Long:    "Applies or rolls back versioned Postgres migrations. SQLite databases are migrated automatically on open.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("migrate")
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := store.MigrateUp(cfg.Store.DatabaseURL); err != nil {
			return eris.Wrap(err, "migrate up")
		}
		return printMigrationVersion()
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := store.MigrateDown(cfg.Store.DatabaseURL); err != nil {
			return eris.Wrap(err, "migrate down")
		}
		return printMigrationVersion()
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(_ *cobra.Command, _ []string) error {
		return printMigrationVersion()
	},
}

func printMigrationVersion() error {
	v, dirty, err := store.MigrationVersion(cfg.Store.DatabaseURL)
	if err != nil {
		return eris.Wrap(err, "migrate version")
	}
	fmt.Fprintf(os.Stdout, "version=%d dirty=%t\n", v, dirty)
	return nil
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}
