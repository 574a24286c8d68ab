package application_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gestasaas/gestamigrate/application"
)

func TestNewState(t *testing.T) {
	t.Parallel()

	state := application.NewState()

	if state.Phase != application.PhaseIdle {
		t.Errorf("expected phase %v, got %v", application.PhaseIdle, state.Phase)
	}

	if state.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}

	if state.FinishedAt != nil {
		t.Error("expected nil FinishedAt")
	}
}

func TestState_Lifecycles(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		phases []application.Phase
	}{
		{
			name: "successful migration",
			phases: []application.Phase{
				application.PhaseConnecting, application.PhaseConnected, application.PhaseExecuting,
				application.PhaseVerifying, application.PhaseDone, application.PhaseClosing, application.PhaseTerminated,
			},
		},
		{
			name: "verification only",
			phases: []application.Phase{
				application.PhaseConnecting, application.PhaseConnected, application.PhaseVerifying,
				application.PhaseDone, application.PhaseClosing, application.PhaseTerminated,
			},
		},
		{
			name: "connection failure",
			phases: []application.Phase{
				application.PhaseConnecting, application.PhaseClosing, application.PhaseTerminated,
			},
		},
		{
			name: "fatal statement",
			phases: []application.Phase{
				application.PhaseConnecting, application.PhaseConnected, application.PhaseExecuting,
				application.PhaseClosing, application.PhaseTerminated,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			state := application.NewState()
			for _, phase := range tc.phases {
				if err := state.Enter(phase); err != nil {
					t.Fatalf("unexpected error entering %s: %v", phase, err)
				}
			}

			if len(state.History) != len(tc.phases) {
				t.Errorf("expected %d transitions, got %d", len(tc.phases), len(state.History))
			}

			if state.FinishedAt == nil {
				t.Error("expected FinishedAt to be set after termination")
			}
		})
	}
}

func TestState_InvalidTransitions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		before []application.Phase
		to     application.Phase
	}{
		{"idle to executing", nil, application.PhaseExecuting},
		{"connected to closing", []application.Phase{application.PhaseConnecting, application.PhaseConnected}, application.PhaseClosing},
		{"connecting to executing", []application.Phase{application.PhaseConnecting}, application.PhaseExecuting},
		{"terminated is final", []application.Phase{application.PhaseConnecting, application.PhaseClosing, application.PhaseTerminated}, application.PhaseConnecting},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			state := application.NewState()
			for _, phase := range tc.before {
				if err := state.Enter(phase); err != nil {
					t.Fatalf("unexpected error entering %s: %v", phase, err)
				}
			}

			current := state.Phase
			err := state.Enter(tc.to)
			if !errors.Is(err, application.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}

			if state.Phase != current {
				t.Errorf("expected phase to stay %s, got %s", current, state.Phase)
			}
		})
	}
}

func TestState_Fail(t *testing.T) {
	t.Parallel()

	state := application.NewState()
	state.Fail(nil)
	if state.Error != "" {
		t.Error("expected nil error to be ignored")
	}

	state.Fail(errors.New("statement 3 failed"))
	_ = state.Enter(application.PhaseConnecting)
	_ = state.Enter(application.PhaseClosing)
	_ = state.Enter(application.PhaseTerminated)

	if state.Succeeded() {
		t.Error("expected failed state not to succeed")
	}
	if !state.Visited(application.PhaseClosing) || state.Visited(application.PhaseExecuting) {
		t.Error("unexpected visited phases")
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	state := application.NewState()
	state.Applied = 2
	_ = state.Enter(application.PhaseConnecting)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(state.String()), &decoded); err != nil {
		t.Fatalf("expected valid JSON, got error: %v", err)
	}

	if decoded["phase"] != string(application.PhaseConnecting) {
		t.Errorf("expected phase CONNECTING, got %v", decoded["phase"])
	}
	if decoded["applied"] != float64(2) {
		t.Errorf("expected applied 2, got %v", decoded["applied"])
	}
	if _, ok := decoded["finishedAt"]; ok {
		t.Error("expected finishedAt to be omitted")
	}

	history, ok := decoded["history"].([]any)
	if !ok || len(history) != 1 {
		t.Fatalf("expected one history entry, got %v", decoded["history"])
	}

	entry := history[0].(map[string]any)
	if _, err := time.Parse(time.RFC3339Nano, entry["at"].(string)); err != nil {
		t.Errorf("expected RFC3339 timestamp, got %v", entry["at"])
	}
}
