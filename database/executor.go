package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gestasaas/gestamigrate/log"
)

// Execer runs a single statement.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Outcome is the classification of one executed statement.
type Outcome int

const (
	// OutcomeApplied means the statement succeeded.
	OutcomeApplied Outcome = iota
	// OutcomeSkipped means the statement failed because its change was already in place.
	OutcomeSkipped
	// OutcomeFailed means the statement failed fatally and the run stopped.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one statement. It is handed to the observer as soon
// as the statement finishes.
type Result struct {
	Statement Statement
	Outcome   Outcome
	Err       error
	Duration  time.Duration
}

// StatementError is returned when a statement fails fatally.
type StatementError struct {
	Statement Statement
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d failed: %v", e.Statement.Sequence, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// Executor applies statements one at a time, each in its own autocommit round trip.
type Executor struct {
	conn       Execer
	classifier Classifier
	observer   func(Result)
}

// NewExecutor creates an executor. A nil classifier means NewSQLStateClassifier;
// a nil observer is allowed.
func NewExecutor(conn Execer, classifier Classifier, observer func(Result)) *Executor {
	if classifier == nil {
		classifier = NewSQLStateClassifier()
	}

	return &Executor{conn: conn, classifier: classifier, observer: observer}
}

// Execute runs statements in order. A statement that fails with an
// "already applied" error is recorded as skipped and the run continues. Any
// other failure stops the run: the returned results end with the failed
// statement, later statements are never attempted, and earlier ones stay applied.
func (e *Executor) Execute(ctx context.Context, statements []Statement) ([]Result, error) {
	results := make([]Result, 0, len(statements))

	for _, stmt := range statements {
		start := time.Now()
		_, err := e.conn.ExecContext(ctx, stmt.Text, stmt.Args...)
		result := Result{Statement: stmt, Duration: time.Since(start)}

		switch {
		case err == nil:
			result.Outcome = OutcomeApplied
			log.DebugContext(ctx, "statement applied", "sequence", stmt.Sequence, "duration", result.Duration)
		case e.classifier.Classify(stmt, err) == DispositionSkip:
			result.Outcome = OutcomeSkipped
			result.Err = err
			log.WarnContext(ctx, "statement skipped, already applied", "sequence", stmt.Sequence, "error", err.Error())
		default:
			result.Outcome = OutcomeFailed
			result.Err = err
			log.ErrorContext(ctx, "statement failed", "sequence", stmt.Sequence, "statement", stmt.Summary(), "error", err.Error())
		}

		results = append(results, result)
		if e.observer != nil {
			e.observer(result)
		}

		if result.Outcome == OutcomeFailed {
			return results, &StatementError{Statement: stmt, Err: err}
		}
	}

	return results, nil
}
