// Package report prints run progress for operators.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/gestasaas/gestamigrate/application"
	"github.com/gestasaas/gestamigrate/database"
)

// Console writes one line per statement, the verification report and a
// summary. It implements application.Reporter.
type Console struct {
	w      io.Writer
	ok     *color.Color
	warn   *color.Color
	fail   *color.Color
	header *color.Color
	dim    *color.Color
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer, noColor bool) *Console {
	c := &Console{
		w:      w,
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		fail:   color.New(color.FgRed),
		header: color.New(color.Bold),
		dim:    color.New(color.Faint),
	}

	if noColor {
		for _, cc := range []*color.Color{c.ok, c.warn, c.fail, c.header, c.dim} {
			cc.DisableColor()
		}
	}

	return c
}

// Start prints the run header.
func (c *Console) Start(d database.Descriptor) {
	_, _ = c.header.Fprintf(c.w, "==> %s\n", d.Name)
	if d.Description != "" {
		_, _ = c.dim.Fprintf(c.w, "    %s\n", d.Description)
	}
}

// Result prints one statement outcome.
func (c *Console) Result(r database.Result) {
	summary := r.Statement.Summary()

	switch r.Outcome {
	case database.OutcomeApplied:
		_, _ = c.ok.Fprintf(c.w, "✔ [%d] %s", r.Statement.Sequence, summary)
	case database.OutcomeSkipped:
		_, _ = c.warn.Fprintf(c.w, "⚠ [%d] %s (already applied)", r.Statement.Sequence, summary)
	case database.OutcomeFailed:
		_, _ = c.fail.Fprintf(c.w, "✖ [%d] %s", r.Statement.Sequence, summary)
	}
	_, _ = c.dim.Fprintf(c.w, " %s\n", r.Duration.Round(time.Millisecond))

	if r.Err != nil {
		_, _ = fmt.Fprintf(c.w, "    %v\n", r.Err)
	}
}

// Verification prints what the catalogs reported.
func (c *Console) Verification(r database.VerificationReport) {
	_, _ = c.header.Fprintln(c.w, "Verification")

	for _, table := range r.Tables {
		if !table.Exists {
			_, _ = c.fail.Fprintf(c.w, "✖ table %s not found\n", table.Name)
			c.errors(table.Errors)
			continue
		}

		_, _ = c.ok.Fprintf(c.w, "✔ table %s", table.Name)
		_, _ = c.dim.Fprintf(c.w, " %d columns, %d constraints, %d indexes\n",
			len(table.Columns), len(table.Constraints), len(table.Indexes))

		for _, column := range table.Columns {
			nullable := "NOT NULL"
			if column.Nullable() {
				nullable = "NULL"
			}
			_, _ = fmt.Fprintf(c.w, "    %s %s %s\n", column.Name, column.DataType, nullable)
		}
		for _, constraint := range table.Constraints {
			_, _ = fmt.Fprintf(c.w, "    %s %s\n", constraint.Type, constraint.Name)
		}
		for _, index := range table.Indexes {
			_, _ = c.dim.Fprintf(c.w, "    %s\n", index.Definition)
		}

		c.missing(table.Missing)
		c.errors(table.Errors)
	}

	for _, enum := range r.Enums {
		if !enum.Exists {
			_, _ = c.fail.Fprintf(c.w, "✖ enum %s not found\n", enum.Name)
		} else {
			_, _ = c.ok.Fprintf(c.w, "✔ enum %s", enum.Name)
			_, _ = c.dim.Fprintf(c.w, " (%s)\n", strings.Join(enum.Labels, ", "))
		}

		c.missing(enum.Missing)
		if enum.Err != nil {
			c.errors([]error{enum.Err})
		}
	}
}

func (c *Console) missing(names []string) {
	for _, name := range names {
		_, _ = c.warn.Fprintf(c.w, "    ⚠ missing %s\n", name)
	}
}

func (c *Console) errors(errs []error) {
	for _, err := range errs {
		_, _ = c.warn.Fprintf(c.w, "    ⚠ %v\n", err)
	}
}

// Summary prints the final counters and the error that stopped the run, if any.
func (c *Console) Summary(s *application.Summary, err error) {
	if s == nil {
		return
	}

	state := s.State
	line := fmt.Sprintf("%d applied, %d skipped, %d failed", state.Applied, state.Skipped, state.Failed)

	var elapsed time.Duration
	if state.FinishedAt != nil {
		elapsed = state.FinishedAt.Sub(state.StartedAt).Round(time.Millisecond)
	}

	switch {
	case err != nil:
		_, _ = c.fail.Fprintf(c.w, "✖ %s failed: %s", s.Migration, line)
	case s.Report != nil && !s.Report.OK():
		_, _ = c.warn.Fprintf(c.w, "⚠ %s finished with verification discrepancies: %s", s.Migration, line)
	default:
		_, _ = c.ok.Fprintf(c.w, "✔ %s finished: %s", s.Migration, line)
	}
	_, _ = c.dim.Fprintf(c.w, " in %s (trace %s)\n", elapsed, s.TraceID)

	if err != nil {
		c.Failure(err)
	}
}

// Failure prints err and, for connection failures, what to check.
func (c *Console) Failure(err error) {
	_, _ = c.fail.Fprintf(c.w, "✖ %v\n", err)

	var connErr *database.ConnectionError
	if errors.As(err, &connErr) {
		_, _ = c.warn.Fprintf(c.w, "    hint: %s\n", connErr.Hint())
	}
}
