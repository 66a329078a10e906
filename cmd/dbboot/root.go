package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"arc-framework/dbboot/internal/config"
	"arc-framework/dbboot/internal/orchestrator"
	"arc-framework/dbboot/internal/telemetry"
)

var (
	cfgFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "dbboot",
	Short: "A.R.C. dbboot, database bootstrap for vector search",
	Long: `dbboot prepares the arc-oracle Postgres database for vector search.
It checks the server version, activates the configured vector extension
(pgvecto.rs or pgvector) under a cluster-wide advisory lock, upgrades it
within the configured pin, rebuilds stale vector indexes and applies the
embedded schema migrations.`,
	SilenceUsage: true,
	Version:      buildVersion,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogger(logLevel)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level flag takes precedence over value in config file.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = logLevel
		} else if cfg.Telemetry.LogLevel != "" {
			initLogger(cfg.Telemetry.LogLevel)
		}

		app, err = buildAppContext(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("building app context: %w", err)
		}

		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close(context.Background())
		}
	}

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if app != nil {
			app.Close(context.Background())
		}
		os.Exit(1)
	}
}

func initLogger(level string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: replaceLevel,
	})
	slog.SetDefault(slog.New(telemetry.NewTraceHandler(handler)))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// replaceLevel renders orchestrator.LevelFatal as "FATAL" instead of "ERROR+4".
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= orchestrator.LevelFatal {
		a.Value = slog.StringValue("FATAL")
	}
	return a
}
