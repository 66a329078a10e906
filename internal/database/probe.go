package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"arc-framework/dbboot/internal/orchestrator"
)

const probeName = "postgres"

// Probe pings the server and verifies the migrations bookkeeping table
// exists. Persistent failures trip the circuit breaker after three
// consecutive errors, after which probes fail fast with "circuit open".
func (r *Repository) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	check := func() (any, error) {
		if err := r.db.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}

		var exists int
		row := r.db.QueryRow(ctx,
			"SELECT 1 FROM information_schema.tables WHERE table_schema='public' AND table_name=$1",
			migrationsTable,
		)
		if err := row.Scan(&exists); err != nil {
			return nil, fmt.Errorf("%s table not found: %w", migrationsTable, err)
		}
		return nil, nil
	}

	var err error
	if r.cb != nil {
		_, err = r.cb.Execute(check)
	} else {
		_, err = check()
	}

	latency := time.Since(start).Milliseconds()
	if err != nil {
		msg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			msg = "circuit open"
		}
		return orchestrator.ProbeResult{Name: probeName, LatencyMs: latency, Error: msg}
	}
	return orchestrator.ProbeResult{Name: probeName, OK: true, LatencyMs: latency}
}
