package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"arc-framework/dbboot/internal/telemetry"
)

const tracerName = "arc-dbboot"

// stateOrder is the happy path through the state machine.
var stateOrder = []State{
	StateStart,
	StateVersionChecked,
	StateLockHeld,
	StateExtensionActivated,
	StateExtensionVerified,
	StateReindexChecked,
	StateMigrationsDecided,
	StateDone,
}

// Orchestrator runs bootstrap attempts and health probes.
type Orchestrator struct {
	repo     Repository
	settings Settings
	diag     Diagnostics
	metrics  *Metrics
	notifier Notifier
	probers  []HealthProber

	extensions *extensionManager
	reindexer  *reindexCoordinator
	migrations *migrationGate

	bootstrapInProgress atomic.Bool
	lastResult          *BootstrapResult
	resultMu            sync.RWMutex
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithDiagnostics replaces the default slog diagnostics.
func WithDiagnostics(d Diagnostics) Option {
	return func(o *Orchestrator) { o.diag = d }
}

// WithMetrics records bootstrap metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithNotifier publishes every bootstrap result to n.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithProber adds a connectivity probe to RunDeepHealth. Results are keyed
// by ProbeResult.Name.
func WithProber(p HealthProber) Option {
	return func(o *Orchestrator) { o.probers = append(o.probers, p) }
}

// New constructs an Orchestrator bound to repo and the resolved settings.
func New(repo Repository, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:     repo,
		settings: settings,
		diag:     NewSlogDiagnostics(nil),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.extensions = &extensionManager{repo: repo, diag: o.diag, metrics: o.metrics}
	o.reindexer = &reindexCoordinator{repo: repo, diag: o.diag, metrics: o.metrics}
	o.migrations = &migrationGate{repo: repo}
	return o
}

// Init runs one bootstrap attempt and returns its fatal error, if any.
func (o *Orchestrator) Init(ctx context.Context) error {
	_, err := o.RunBootstrap(ctx)
	return err
}

// RunBootstrap runs the bootstrap state machine once. On failure both the
// partial result and an *Error are returned, and exactly one fatal diagnostic
// has been emitted. Returns ErrBootstrapInProgress if a bootstrap is already
// running in this process.
func (o *Orchestrator) RunBootstrap(ctx context.Context) (*BootstrapResult, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	defer o.bootstrapInProgress.Store(false)

	settings := o.settings
	start := time.Now()
	r := &run{
		result: &BootstrapResult{
			RunID:     uuid.NewString(),
			Status:    StatusInProgress,
			State:     StateStart,
			Extension: settings.Spec().Name(),
			Phases:    make([]PhaseResult, 0, len(stateOrder)),
			StartedAt: start.UTC(),
		},
		mark: start,
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "dbboot.bootstrap", trace.WithAttributes(
		attribute.String("bootstrap.run_id", r.result.RunID),
		attribute.String("db.vector_extension", string(settings.Active)),
	))
	defer span.End()
	ctx = telemetry.WithRunID(ctx, r.result.RunID)

	slog.InfoContext(ctx, "bootstrap started", "extension", r.result.Extension)

	err := o.bootstrap(ctx, settings, r)

	elapsed := time.Since(start)
	res := r.result
	res.DurationMs = elapsed.Milliseconds()

	if err != nil {
		var be *Error
		if !errors.As(err, &be) {
			be = &Error{Phase: r.next(), Message: "Bootstrap failed.", Err: err}
		}
		r.abort(ctx, be)
		o.diag.Emit(ctx, Diagnostic{Severity: SeverityFatal, Message: be.Message, Hint: be.Hint, Err: be.Err})
		span.RecordError(be)
		span.SetStatus(codes.Error, be.Message)
		err = be
	} else {
		r.advance(ctx, StateDone)
		res.Status = StatusOK
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "bootstrap completed",
			"extension_version", res.ExtensionVersion,
			"migrations_run", res.MigrationsRun,
		)
	}
	span.SetAttributes(attribute.String("bootstrap.status", res.Status))
	o.metrics.observeRun(res, elapsed)

	o.resultMu.Lock()
	o.lastResult = res
	o.resultMu.Unlock()

	o.notify(ctx, res)
	return res, err
}

func (o *Orchestrator) bootstrap(ctx context.Context, s Settings, r *run) error {
	reported, err := o.repo.EngineVersion(ctx)
	if err != nil {
		return &Error{Phase: StateVersionChecked, Message: "Could not read the PostgreSQL version.", Err: err}
	}
	if _, err := CheckEngineVersion(reported, s.EngineRange); err != nil {
		return err
	}
	r.result.EngineVersion = reported
	r.advance(ctx, StateVersionChecked)

	waitStart := time.Now()
	err = o.repo.WithLock(ctx, LockMigrations, func(ctx context.Context) error {
		o.metrics.observeLockWait(time.Since(waitStart))
		r.advance(ctx, StateLockHeld)
		return o.criticalSection(ctx, s, r)
	})
	if err != nil {
		var be *Error
		if errors.As(err, &be) {
			return be
		}
		return &Error{Phase: r.next(), Message: fmt.Sprintf("Could not hold the %s lock.", LockMigrations), Err: err}
	}
	return nil
}

// criticalSection runs with the migration lock held.
func (o *Orchestrator) criticalSection(ctx context.Context, s Settings, r *run) error {
	spec := s.Spec()

	if err := o.extensions.activate(ctx, spec); err != nil {
		return err
	}
	r.advance(ctx, StateExtensionActivated)

	installed, err := o.extensions.installedVersion(ctx, spec)
	if err != nil {
		return err
	}
	installed, err = o.extensions.maybeUpgrade(ctx, spec, installed)
	if err != nil {
		return err
	}
	if err := o.extensions.verifyVersion(spec, installed); err != nil {
		return err
	}
	r.result.ExtensionVersion = installed.String()
	r.advance(ctx, StateExtensionVerified)

	if err := o.reindexer.run(ctx, spec.Kind); err != nil {
		return err
	}
	r.advance(ctx, StateReindexChecked)

	ran, err := o.migrations.runIfEnabled(ctx, s.SkipMigrations)
	if err != nil {
		return err
	}
	r.result.MigrationsRun = ran
	if ran {
		r.advance(ctx, StateMigrationsDecided)
	} else {
		r.skip(ctx, StateMigrationsDecided)
	}
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, res *BootstrapResult) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(ctx, res); err != nil {
		slog.WarnContext(ctx, "publishing bootstrap outcome failed", "err", err)
	}
}

// RunDeepHealth runs every registered prober and the installed extension
// check concurrently and returns a map of check name to ProbeResult.
func (o *Orchestrator) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, len(o.probers)+1)
	var mu sync.Mutex
	var g errgroup.Group

	for _, p := range o.probers {
		p := p
		g.Go(func() error {
			probe := p.Probe(ctx)
			mu.Lock()
			results[probe.Name] = probe
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		probe := o.probeExtension(ctx)
		mu.Lock()
		results["extension"] = probe
		mu.Unlock()
		return nil
	})

	_ = g.Wait()
	return results
}

// probeExtension is a read-only check that the active extension is installed
// at a supported version.
func (o *Orchestrator) probeExtension(ctx context.Context) ProbeResult {
	start := time.Now()
	spec := o.settings.Spec()
	res := ProbeResult{Name: spec.Name()}

	v, err := o.repo.ExtensionVersion(ctx, spec.Kind)
	res.LatencyMs = time.Since(start).Milliseconds()
	switch {
	case err != nil:
		res.Error = err.Error()
	case v == nil:
		res.Error = "not installed"
	case v.IsZero():
		res.Error = "nightly build 0.0.0"
	case !spec.Range.Contains(*v):
		res.Error = fmt.Sprintf("version %s outside %s", v, spec.Range)
	default:
		res.OK = true
	}
	return res
}

// IsBootstrapInProgress returns true while a bootstrap run is active.
func (o *Orchestrator) IsBootstrapInProgress() bool {
	return o.bootstrapInProgress.Load()
}

// IsReady returns true if the last bootstrap completed with StatusOK.
func (o *Orchestrator) IsReady() bool {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult != nil && o.lastResult.Status == StatusOK
}

// LastResult returns the most recent bootstrap result, or nil.
func (o *Orchestrator) LastResult() *BootstrapResult {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult
}

// run tracks the state machine of a single bootstrap attempt.
type run struct {
	result *BootstrapResult
	mark   time.Time
}

// next is the state the machine is trying to reach.
func (r *run) next() State {
	for i, s := range stateOrder {
		if s == r.result.State && i+1 < len(stateOrder) {
			return stateOrder[i+1]
		}
	}
	return StateDone
}

func (r *run) advance(ctx context.Context, to State) {
	r.record(ctx, to, StatusOK, "")
	slog.InfoContext(ctx, "bootstrap phase ok", "phase", to)
}

func (r *run) skip(ctx context.Context, to State) {
	r.record(ctx, to, StatusSkipped, "")
	slog.InfoContext(ctx, "bootstrap phase skipped", "phase", to)
}

// abort records the failed phase and moves the machine to StateAborted.
func (r *run) abort(ctx context.Context, e *Error) {
	r.record(ctx, e.Phase, StatusError, e.Error())
	r.result.Status = StatusError
	r.result.State = StateAborted
	r.result.FailedPhase = e.Phase
	r.result.Error = e.Error()
	r.result.Hint = e.Hint
	slog.WarnContext(ctx, "bootstrap phase failed", "phase", e.Phase, "error", e.Error())
}

func (r *run) record(ctx context.Context, to State, status, errMsg string) {
	now := time.Now()
	r.result.Phases = append(r.result.Phases, PhaseResult{
		Name:       string(to),
		Status:     status,
		Error:      errMsg,
		DurationMs: now.Sub(r.mark).Milliseconds(),
	})
	r.result.State = to
	r.mark = now
	trace.SpanFromContext(ctx).AddEvent(string(to), trace.WithAttributes(attribute.String("status", status)))
}
