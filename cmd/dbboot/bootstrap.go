package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"arc-framework/dbboot/internal/orchestrator"
)

var outputFormat string

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Run one bootstrap and exit",
	Long: `Bootstrap runs the database bootstrap once: version gate, extension
activation and upgrade, vector reindex and migrations.

The result is printed to stdout as JSON (default) or as colored text, and
the command exits non-zero if the bootstrap aborted.`,
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "result format (json, text)")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	if outputFormat != "json" && outputFormat != "text" {
		return fmt.Errorf("unknown --output %q (want json or text)", outputFormat)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Bootstrap.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Bootstrap.Timeout)
		defer cancel()
	}

	app.provisionEvents(ctx)

	slog.InfoContext(ctx, "starting bootstrap")

	result, err := app.orchestrator.RunBootstrap(ctx)
	if result != nil {
		if perr := printResult(cmd.OutOrStdout(), result, outputFormat); perr != nil {
			slog.Warn("printing bootstrap result failed", "err", perr)
		}
	}
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	slog.InfoContext(ctx, "bootstrap completed successfully", "run_id", result.RunID)
	return nil
}

func printResult(w io.Writer, result *orchestrator.BootstrapResult, format string) error {
	if format == "text" {
		return printText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	errColor   = color.New(color.FgRed, color.Bold)
	skipColor  = color.New(color.FgYellow)
	faintColor = color.New(color.Faint)
)

func statusColor(status string) *color.Color {
	switch status {
	case orchestrator.StatusOK:
		return okColor
	case orchestrator.StatusSkipped:
		return skipColor
	default:
		return errColor
	}
}

func printText(w io.Writer, r *orchestrator.BootstrapResult) error {
	var errs []error
	p := func(c *color.Color, format string, a ...any) {
		_, err := c.Fprintf(w, format, a...)
		errs = append(errs, err)
	}

	p(statusColor(r.Status), "bootstrap %s", r.Status)
	p(faintColor, " (run %s, %dms)\n", r.RunID, r.DurationMs)

	if r.EngineVersion != "" {
		p(faintColor, "  postgres   %s\n", r.EngineVersion)
	}
	if r.Extension != "" {
		p(faintColor, "  extension  %s %s\n", r.Extension, r.ExtensionVersion)
	}

	for _, ph := range r.Phases {
		p(statusColor(ph.Status), "  %-8s", ph.Status)
		p(color.New(color.Reset), " %-20s %4dms", ph.Name, ph.DurationMs)
		if ph.Error != "" {
			p(errColor, "  %s", ph.Error)
		}
		p(color.New(color.Reset), "\n")
	}

	if r.Error != "" {
		p(errColor, "\nfailed at %s: %s\n", r.FailedPhase, r.Error)
	}
	if r.Hint != "" {
		p(skipColor, "hint: %s\n", r.Hint)
	}
	return errors.Join(errs...)
}
