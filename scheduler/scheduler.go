// Package scheduler re-runs a task on a cron schedule. gestamigrate uses it
// to watch a database for schema drift between verification passes.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	cron "github.com/pardnchiu/go-scheduler"

	"github.com/gestasaas/gestamigrate/application"
	"github.com/gestasaas/gestamigrate/log"
)

// Scheduler runs a task periodically. A pass that is still running when the
// next one is due makes the next one skip.
type Scheduler struct {
	cronExpr string
	runner   application.Runner

	running atomic.Bool
	passes  atomic.Int64
	skipped atomic.Int64
}

// New validates cronExpr and returns a Scheduler for runner.
//
// Supported formats:
//   - 5-field cron: "minute hour day month weekday" (e.g., "0 9 * * MON-FRI")
//   - descriptors: @yearly, @monthly, @weekly, @daily, @hourly
//   - intervals: @every 30s, @every 5m, @every 2h
func New(cronExpr string, runner application.Runner) (*Scheduler, error) {
	// the library panics on an empty expression
	if cronExpr == "" {
		return nil, fmt.Errorf("invalid cron expression %q: expression cannot be empty", cronExpr)
	}

	validator, err := cron.New(cron.Config{Location: time.UTC})
	if err != nil {
		return nil, fmt.Errorf("failed to create cron validator: %w", err)
	}

	if _, err := validator.Add(cronExpr, func() {}); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	return &Scheduler{cronExpr: cronExpr, runner: runner}, nil
}

// Passes returns how many passes have started.
func (s *Scheduler) Passes() int64 {
	return s.passes.Load()
}

// Skipped returns how many passes were dropped because the previous one was still running.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

// Run executes the runner on schedule until ctx is canceled. Each pass gets
// its own trace id. Runner errors are logged and do not stop the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	cronScheduler, err := cron.New(cron.Config{Location: time.UTC})
	if err != nil {
		return fmt.Errorf("failed to create cron scheduler: %w", err)
	}

	_, err = cronScheduler.Add(s.cronExpr, func() error {
		return s.pass(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron task: %w", err)
	}

	log.InfoContext(ctx, "scheduler started", "schedule", s.cronExpr)
	cronScheduler.Start()

	<-ctx.Done()

	stopCtx := cronScheduler.Stop()
	<-stopCtx.Done()

	log.InfoContext(ctx, "scheduler stopped", "passes", s.Passes(), "skipped", s.Skipped())

	return fmt.Errorf("scheduler context canceled: %w", ctx.Err())
}

func (s *Scheduler) pass(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		log.WarnContext(ctx, "previous pass still running, skipping")
		return nil
	}
	defer s.running.Store(false)

	n := s.passes.Add(1)
	passCtx, _ := log.WithTraceID(ctx)
	log.InfoContext(passCtx, "scheduler pass started", "pass", n)

	err := s.runner.Run(passCtx)
	if err != nil {
		log.ErrorContext(passCtx, "scheduler pass failed", "pass", n, "error", err)
	}

	log.InfoContext(passCtx, "scheduler pass finished", "pass", n)
	return err
}
