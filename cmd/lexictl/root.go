// Command lexictl is the SpeakLexi operator tool.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/speaklexi/backend/internal/config"
	"github.com/speaklexi/backend/internal/database"
	"github.com/speaklexi/backend/internal/repository"
)

var (
	jsonOut bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "lexictl",
	Short: "SpeakLexi operator tool",
	Long: `Operator commands for a SpeakLexi deployment.

Configuration is read the same way as the API server: config.yaml in
., ./config or /etc/speaklexi, overridden by SPEAKLEXI_* variables.

Examples:
  lexictl migrate up
  lexictl accounts purge-expired
  lexictl accounts create --role teacher --email profe@example.com ...
  lexictl lessons import catalog.yaml --author profe@example.com`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose || os.Getenv("DEBUG") == "true" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// env holds the collaborators shared by database-backed commands.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *database.Postgres
	store  repository.Store
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return &env{
		cfg:    cfg,
		logger: newLogger(),
		db:     db,
		store:  repository.NewStore(db.Pool()),
	}, nil
}

func (e *env) Close() {
	e.db.Close()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
