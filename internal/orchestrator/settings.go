package orchestrator

import (
	"fmt"

	"arc-framework/dbboot/internal/config"
	"arc-framework/dbboot/internal/extension"
	"arc-framework/dbboot/internal/version"
)

// Settings is the immutable bootstrap configuration. It is resolved once,
// before a bootstrap starts, and never re-read mid-run.
type Settings struct {
	Active         extension.Kind
	Extensions     map[extension.Kind]extension.Spec
	EngineRange    version.Range
	SkipMigrations bool
}

// Spec returns the description of the active extension.
func (s Settings) Spec() extension.Spec {
	return s.Extensions[s.Active]
}

// SettingsFromConfig validates and resolves the database section of the
// configuration.
func SettingsFromConfig(cfg config.DatabaseConfig) (Settings, error) {
	active, err := extension.ParseKind(cfg.VectorExtension)
	if err != nil {
		return Settings{}, fmt.Errorf("database.vector_extension: %w", err)
	}

	engineRange, err := version.ParseRange(cfg.EngineRange)
	if err != nil {
		return Settings{}, fmt.Errorf("database.engine_range: %w", err)
	}

	perKind := map[extension.Kind]config.ExtensionConfig{
		extension.PgVectoRS: cfg.Extensions.PgVectoRS,
		extension.PgVector:  cfg.Extensions.PgVector,
	}

	specs := make(map[extension.Kind]extension.Spec, len(perKind))
	for kind, ec := range perKind {
		rng, err := version.ParseRange(ec.Range)
		if err != nil {
			return Settings{}, fmt.Errorf("%s range: %w", kind.DisplayName(), err)
		}
		pin, err := extension.ParsePin(ec.Pin)
		if err != nil {
			return Settings{}, fmt.Errorf("%s pin: %w", kind.DisplayName(), err)
		}
		specs[kind] = extension.Spec{Kind: kind, Range: rng, Pin: pin}
	}

	return Settings{
		Active:         active,
		Extensions:     specs,
		EngineRange:    engineRange,
		SkipMigrations: cfg.SkipMigrations,
	}, nil
}

// DefaultSettings mirrors the configuration defaults with the given active
// extension.
func DefaultSettings(active extension.Kind) Settings {
	return Settings{
		Active: active,
		Extensions: map[extension.Kind]extension.Spec{
			extension.PgVectoRS: {Kind: extension.PgVectoRS, Range: version.MustParseRange(">=0.2 <0.4"), Pin: extension.PinRange},
			extension.PgVector:  {Kind: extension.PgVector, Range: version.MustParseRange(">=0.5 <1"), Pin: extension.PinRange},
		},
		EngineRange: version.MustParseRange(">=14.0.0"),
	}
}
