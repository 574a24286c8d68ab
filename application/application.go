// Package application drives one migration run through its lifecycle:
// connect, execute, verify, close.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gestasaas/gestamigrate/config"
	"github.com/gestasaas/gestamigrate/database"
	"github.com/gestasaas/gestamigrate/log"
)

// ErrMigrationFailed is returned when a run stops on a connection failure or a fatal statement.
type ErrMigrationFailed struct {
	Migration string
	err       error
}

// Error returns the formatted error message for ErrMigrationFailed.
func (e *ErrMigrationFailed) Error() string {
	return fmt.Sprintf("failed to run migration %s: %v", e.Migration, e.err)
}

// Unwrap returns the underlying error for ErrMigrationFailed.
func (e *ErrMigrationFailed) Unwrap() error {
	return e.err
}

// Session is an open connection the runner executes and verifies through.
type Session interface {
	database.Execer
	database.Querier
	Close() error
}

// Opener opens the session for one run.
type Opener func(ctx context.Context) (Session, error)

// DatabaseOpener opens a pinned PostgreSQL connection with cfg.
func DatabaseOpener(cfg config.DBConfig) Opener {
	return func(ctx context.Context) (Session, error) {
		db, err := database.Open(ctx, cfg)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		return db, nil
	}
}

// Reporter receives results as they happen.
type Reporter interface {
	Result(r database.Result)
	Verification(r database.VerificationReport)
}

// Summary is what a run produced.
type Summary struct {
	Migration string
	TraceID   string
	State     *State
	Results   []database.Result
	Report    *database.VerificationReport

	// Outcomes counts executed statements per outcome name, as written to the wide event.
	Outcomes map[string]int
}

// Option configures an Application.
type Option func(*Application)

// WithClassifier replaces the default SQLSTATE classifier.
func WithClassifier(c database.Classifier) Option {
	return func(a *Application) { a.classifier = c }
}

// WithReporter streams results to r.
func WithReporter(r Reporter) Option {
	return func(a *Application) { a.reporter = r }
}

// WithEventLogger writes one wide event per run.
func WithEventLogger(l *log.WideEventLogger) Option {
	return func(a *Application) { a.events = l }
}

// Application runs migration descriptors and verifications.
type Application struct {
	open       Opener
	classifier database.Classifier
	reporter   Reporter
	events     *log.WideEventLogger
}

// New creates and returns a new Application instance.
func New(open Opener, opts ...Option) *Application {
	a := &Application{open: open}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Migrate applies the descriptor's statements in order and then verifies the
// end state. The session is closed exactly once on every path. Verification
// findings never turn into an error.
func (a *Application) Migrate(ctx context.Context, d database.Descriptor) (*Summary, error) {
	run := a.newRun(ctx, "migration_run", d.Name)
	defer run.finish()

	statements := d.Statements()
	run.event.AddAttrs(map[string]any{"statementCount": len(statements), "description": d.Description})
	log.InfoContext(run.ctx, "starting migration", "statements", len(statements))

	if err := run.connect(); err != nil {
		return run.summary, &ErrMigrationFailed{Migration: d.Name, err: err}
	}

	run.enter(PhaseExecuting)

	executor := database.NewExecutor(run.session, a.classifier, func(r database.Result) {
		run.record(r)
		if a.reporter != nil {
			a.reporter.Result(r)
		}
	})

	results, err := executor.Execute(run.ctx, statements)
	run.summary.Results = results
	if err != nil {
		run.fail(err)
		return run.summary, &ErrMigrationFailed{Migration: d.Name, err: err}
	}

	run.verify(d.Verify)
	run.enter(PhaseDone)

	log.InfoContext(run.ctx, "migration finished", "statements", run.event.Counts())

	return run.summary, nil
}

// Verify only runs the catalog checks.
func (a *Application) Verify(ctx context.Context, name string, checks database.Verification) (*Summary, error) {
	run := a.newRun(ctx, "verification_run", name)
	defer run.finish()

	if err := run.connect(); err != nil {
		return run.summary, &ErrMigrationFailed{Migration: name, err: err}
	}

	run.verify(checks)
	run.enter(PhaseDone)

	return run.summary, nil
}

type run struct {
	app     *Application
	ctx     context.Context //nolint:containedctx
	state   *State
	event   *log.Event
	session Session
	summary *Summary
}

func (a *Application) newRun(ctx context.Context, eventName, migration string) *run {
	ctx, traceID := log.WithTraceID(ctx)
	ctx = log.WithMigration(ctx, migration)

	event := log.NewEvent(eventName)

	state := NewState()

	return &run{
		app:     a,
		ctx:     ctx,
		state:   state,
		event:   event,
		summary: &Summary{Migration: migration, TraceID: traceID, State: state},
	}
}

func (r *run) enter(phase Phase) {
	from := r.state.Phase
	if err := r.state.Enter(phase); err != nil {
		log.ErrorContext(r.ctx, "lifecycle violation", "error", err)
		r.event.AddError(err)
		return
	}

	r.event.AddStep(slog.LevelInfo, string(phase))
	log.DebugContext(log.WithPhase(r.ctx, string(phase)), "phase changed", "from", string(from))
}

func (r *run) connect() error {
	r.enter(PhaseConnecting)

	session, err := r.app.open(r.ctx)
	if err != nil {
		log.ErrorContext(r.ctx, "failed to connect", "error", err)
		r.fail(err)
		return err
	}

	r.session = session
	r.enter(PhaseConnected)

	return nil
}

func (r *run) record(result database.Result) {
	r.event.Count(result.Outcome.String())

	switch result.Outcome {
	case database.OutcomeApplied:
		r.state.Applied++
	case database.OutcomeSkipped:
		r.state.Skipped++
		r.event.SetLevel(slog.LevelWarn)
	case database.OutcomeFailed:
		r.state.Failed++
	}
}

func (r *run) verify(checks database.Verification) {
	r.enter(PhaseVerifying)

	if checks.IsEmpty() {
		return
	}

	report := database.NewVerifier(r.session).Verify(r.ctx, checks)
	r.summary.Report = &report

	if !report.OK() {
		log.WarnContext(r.ctx, "verification found discrepancies")
		r.event.AddStep(slog.LevelWarn, "verification discrepancies")
	}

	if r.app.reporter != nil {
		r.app.reporter.Verification(report)
	}
}

func (r *run) fail(err error) {
	r.state.Fail(err)
	r.event.AddError(err)
}

// finish closes the session once and writes the wide event. It runs on every exit path.
func (r *run) finish() {
	r.enter(PhaseClosing)

	if r.session != nil {
		if err := r.session.Close(); err != nil {
			log.WarnContext(r.ctx, "failed to close connection", "error", err)
			r.event.AddError(fmt.Errorf("failed to close connection: %w", err))
		}
	}

	r.enter(PhaseTerminated)
	r.summary.Outcomes = r.event.Counts()

	if r.app.events != nil {
		r.app.events.WriteEvent(r.ctx, r.event)
	}
}
