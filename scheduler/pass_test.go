package scheduler

import (
	"context"
	"testing"

	"github.com/gestasaas/gestamigrate/application"
)

func TestPass_SkipsWhileRunning(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})

	s, err := New("@every 1s", application.RunnerFunc(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	done := make(chan error)
	go func() { done <- s.pass(context.Background()) }()

	<-started

	if err := s.pass(context.Background()); err != nil {
		t.Errorf("expected skipped pass to return nil, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if s.Passes() != 1 || s.Skipped() != 1 {
		t.Errorf("expected 1 pass and 1 skip, got %d and %d", s.Passes(), s.Skipped())
	}
}

func TestPass_CanceledContext(t *testing.T) {
	t.Parallel()

	s, err := New("@every 1s", application.RunnerFunc(func(ctx context.Context) error {
		t.Error("runner must not be called after cancellation")
		return nil
	}))
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.pass(ctx); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if s.Passes() != 0 {
		t.Errorf("expected no passes, got %d", s.Passes())
	}
}
