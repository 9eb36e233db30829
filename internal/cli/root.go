// Package cli implements the reconciler command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/reconciler-backend/internal/application/reconcile"
	"github.com/eshaffer321/reconciler-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/config"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	EnvFile    string
	Verbose    bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(version string) *cobra.Command {
	flags := &GlobalFlags{}

	rootCmd := &cobra.Command{
		Use:     "reconciler",
		Short:   "Reconcile bank and system transactions with prioritized rules",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "config.yaml", "path to config file (falls back to environment variables when absent)")
	pf.StringVar(&flags.EnvFile, "env-file", ".env", "dotenv file loaded before the config")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		newServeCommand(flags),
		newReconcileCommand(flags),
		newHistoryCommand(flags),
		newMigrateCommand(flags),
	)

	return rootCmd
}

// app holds the wired dependencies of one command invocation.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *storage.Storage
	ledger      *reconcile.Ledger
	coordinator *reconcile.Coordinator
}

// loadConfig reads .env, then the config file. An explicitly passed
// --config must load; the default path may be missing.
func loadConfig(cmd *cobra.Command, flags *GlobalFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(flags.EnvFile); err != nil {
		return nil, err
	}

	var cfg *config.Config
	if cmd.Flags().Changed("config") {
		loaded, err := config.Load(flags.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", flags.ConfigPath, err)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrEnv_WithPath(flags.ConfigPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if flags.Verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	return cfg, nil
}

// newApp loads config, opens (and migrates) the database and wires the
// reconciliation services. Logs go to logOut.
func newApp(ctx context.Context, cmd *cobra.Command, flags *GlobalFlags, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLoggerTo(cfg.Observability.Logging, logOut)
	slog.SetDefault(logger)

	loc, err := cfg.Reconcile.Location()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Storage.DatabasePath, err)
	}

	ledger := reconcile.NewLedger(store, cfg.Reconcile.HistoryCacheTTL, logger.With("system", "ledger"))
	m := matcher.NewMatcher(matcher.Config{Location: loc}, logger.With("system", "matcher"))
	coordinator := reconcile.NewCoordinator(store, ledger, m, reconcile.Config{
		MaxRunDuration: cfg.Reconcile.MaxRunDuration,
	}, logger.With("system", "reconcile"))

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		ledger:      ledger,
		coordinator: coordinator,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}
