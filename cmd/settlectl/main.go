package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saccohub/settlement/internal/config"
	"github.com/saccohub/settlement/internal/mpesa"
	"github.com/saccohub/settlement/internal/notify"
	"github.com/saccohub/settlement/internal/reconciliation"
	"github.com/saccohub/settlement/internal/repository"
	"github.com/saccohub/settlement/internal/settlement"
	"github.com/saccohub/settlement/internal/suspense"
)

var (
	dbPath     string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:          "settlectl",
	Short:        "Operator tool for the SACCO M-Pesa settlement engine",
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to DB_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(suspenseCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// engine is the subset of the server wiring the commands need.
type engine struct {
	db       *sql.DB
	cfg      *config.Config
	recon    *reconciliation.Service
	suspense *suspense.Service
}

func openEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}

	store := repository.NewStore(db)
	notifier := notify.NewLogNotifier()
	suspenseSvc := suspense.NewService(store, notifier)
	recon := reconciliation.NewService(store, mpesa.NewClient(cfg.MPesa), settlement.NewRouter(store),
		suspenseSvc, notifier, cfg.DefaultAccountPriority)
	return &engine{db: db, cfg: cfg, recon: recon, suspense: suspenseSvc}, nil
}

func (e *engine) Close() error { return e.db.Close() }

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
