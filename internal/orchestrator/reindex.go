package orchestrator

import (
	"context"
	"fmt"

	"arc-framework/dbboot/internal/extension"
)

const reindexWarning = "Could not run vector reindexing checks. If the extension was updated, please restart the Postgres instance."

// reindexCoordinator rebuilds vector indexes that the extension reports as
// stale, in extension.Indexes order. Any failure aborts the bootstrap.
type reindexCoordinator struct {
	repo    Repository
	diag    Diagnostics
	metrics *Metrics
}

func (c *reindexCoordinator) run(ctx context.Context, kind extension.Kind) error {
	for _, index := range extension.Indexes {
		if err := c.check(ctx, kind, index); err != nil {
			c.diag.Emit(ctx, Diagnostic{Severity: SeverityWarn, Message: reindexWarning, Err: err})
			return &Error{
				Phase:   StateReindexChecked,
				Kind:    ErrReindexFailed,
				Message: fmt.Sprintf("Vector index %s could not be checked or rebuilt.", index),
				Hint:    "If the extension was updated, please restart the Postgres instance.",
				Err:     err,
			}
		}
	}
	return nil
}

func (c *reindexCoordinator) check(ctx context.Context, kind extension.Kind, index extension.Index) error {
	needed, err := c.repo.ShouldReindex(ctx, kind, index)
	if err != nil {
		return fmt.Errorf("checking %s: %w", index, err)
	}
	if !needed {
		return nil
	}

	c.diag.Emit(ctx, Diagnostic{Severity: SeverityLog, Message: fmt.Sprintf("Reindexing %s", index)})
	if err := c.repo.Reindex(ctx, kind, index); err != nil {
		return fmt.Errorf("reindexing %s: %w", index, err)
	}
	c.metrics.observeReindex(index)
	return nil
}
