package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var exitOnFailure bool

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Bootstrap the database, then serve the health and status API",
	Long: `Start the dbboot HTTP server on the configured port (default :8082) and
run one bootstrap in the background. /ready turns 200 once it succeeds.

By default a failed startup bootstrap stops the server with a non-zero exit
so the orchestrator restarts it; pass --exit-on-failure=false to keep
serving and retry through POST /api/v1/bootstrap. The server shuts down
cleanly on SIGTERM or SIGINT.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().BoolVar(&exitOnFailure, "exit-on-failure", true, "stop the server when the startup bootstrap aborts")
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("dbboot server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bootErr := make(chan error, 1)
	go func() {
		app.provisionEvents(ctx)

		bootCtx := ctx
		if cfg.Bootstrap.Timeout > 0 {
			var cancel context.CancelFunc
			bootCtx, cancel = context.WithTimeout(ctx, cfg.Bootstrap.Timeout)
			defer cancel()
		}
		_, err := app.orchestrator.RunBootstrap(bootCtx)
		bootErr <- err
	}()

	var runErr error
loop:
	for {
		select {
		case err := <-serverErr:
			return fmt.Errorf("server error: %w", err)
		case err := <-bootErr:
			if err == nil {
				slog.Info("startup bootstrap completed, ready")
				continue
			}
			if exitOnFailure && ctx.Err() == nil {
				runErr = fmt.Errorf("startup bootstrap failed: %w", err)
				break loop
			}
			slog.Warn("startup bootstrap failed, still serving", "err", err)
		case <-ctx.Done():
			slog.Info("shutdown signal received")
			break loop
		}
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}

	slog.Info("server stopped cleanly")
	return runErr
}
