package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/reconciler-backend/internal/api"
)

// shutdownGrace bounds how long in-flight requests get after a signal.
const shutdownGrace = 30 * time.Second

func newServeCommand(flags *GlobalFlags) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("port") {
				a.cfg.API.Port = port
			}
			return runServe(a)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (overrides api.port)")
	return cmd
}

// runServe runs the API server until SIGINT or SIGTERM.
func runServe(a *app) error {
	logger := a.logger.With("system", "api")

	apiCfg := api.Config{
		Port:           a.cfg.API.Port,
		AllowedOrigins: a.cfg.API.AllowedOrigins,
		RateLimitRPS:   a.cfg.API.RateLimitRPS,
		RateLimitBurst: a.cfg.API.RateLimitBurst,
		// A reconcile request may take up to a full run.
		WriteTimeout: a.cfg.Reconcile.MaxRunDuration + 15*time.Second,
	}

	server := api.NewServer(apiCfg, a.store, a.coordinator, a.ledger, a.logger)

	// Handle graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		<-quit
		logger.Info("received shutdown signal")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}
