package orchestrator

import "context"

// migrationGate decides whether the external migration runner is invoked.
type migrationGate struct {
	repo Repository
}

// runIfEnabled runs migrations once unless skip is set. Skipping is an
// operator decision and is not reported.
func (g *migrationGate) runIfEnabled(ctx context.Context, skip bool) (bool, error) {
	if skip {
		return false, nil
	}
	if err := g.repo.RunMigrations(ctx); err != nil {
		return false, &Error{
			Phase:   StateMigrationsDecided,
			Kind:    ErrMigrationsFailed,
			Message: "Database migrations failed.",
			Err:     err,
		}
	}
	return true, nil
}
