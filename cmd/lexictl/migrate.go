package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/speaklexi/backend/internal/config"
	"github.com/speaklexi/backend/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Long: `Roll back the given number of migrations.

WARNING: rolling back drops tables and the data in them.`,
	RunE: runMigrateDown,
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current schema version",
	RunE:  runMigrateVersion,
}

func init() {
	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)

	rootCmd.AddCommand(migrateCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := database.RunMigrations(cfg.Database); err != nil {
		printError(err)
		return err
	}
	return reportVersion(cfg)
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	steps, _ := cmd.Flags().GetInt("steps")
	if steps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := database.MigrateDown(cfg.Database, steps); err != nil {
		printError(err)
		return err
	}
	return reportVersion(cfg)
}

func runMigrateVersion(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return reportVersion(cfg)
}

func reportVersion(cfg *config.Config) error {
	version, dirty, err := database.MigrationVersion(cfg.Database)
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{"version": version, "dirty": dirty})
	}

	fmt.Printf("Schema version: %d", version)
	if dirty {
		fmt.Print(" (dirty)")
	}
	fmt.Println()
	return nil
}
