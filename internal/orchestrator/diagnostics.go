package orchestrator

import (
	"context"
	"log/slog"
)

// Severity orders diagnostics. Fatal is reserved for failures that keep the
// system from becoming usable at all.
type Severity int

const (
	SeverityLog Severity = iota
	SeverityWarn
	SeverityError
	SeverityFatal
)

// LevelFatal is the slog level fatal diagnostics are logged at.
const LevelFatal = slog.Level(12)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "log"
	}
}

// Level maps the severity onto a slog level.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityWarn:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	case SeverityFatal:
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

// Diagnostic is an operator-facing message. Hint carries remediation steps,
// Err the underlying cause.
type Diagnostic struct {
	Severity Severity
	Message  string
	Hint     string
	Err      error
}

// Diagnostics receives operator-facing diagnostics.
type Diagnostics interface {
	Emit(ctx context.Context, d Diagnostic)
}

// SlogDiagnostics writes diagnostics to a slog.Logger.
type SlogDiagnostics struct {
	Logger *slog.Logger
}

// NewSlogDiagnostics returns diagnostics bound to logger, or to slog.Default
// when logger is nil.
func NewSlogDiagnostics(logger *slog.Logger) *SlogDiagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogDiagnostics{Logger: logger}
}

func (s *SlogDiagnostics) Emit(ctx context.Context, d Diagnostic) {
	attrs := make([]any, 0, 4)
	if d.Hint != "" {
		attrs = append(attrs, "hint", d.Hint)
	}
	if d.Err != nil {
		attrs = append(attrs, "err", d.Err)
	}
	s.Logger.Log(ctx, d.Severity.Level(), d.Message, attrs...)
}
