package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Phase is a step of the runner lifecycle.
type Phase string

const (
	// PhaseIdle is the state before anything happened.
	PhaseIdle Phase = "IDLE"
	// PhaseConnecting means the connection is being opened.
	PhaseConnecting Phase = "CONNECTING"
	// PhaseConnected means the connection is open.
	PhaseConnected Phase = "CONNECTED"
	// PhaseExecuting means statements are being applied.
	PhaseExecuting Phase = "EXECUTING"
	// PhaseVerifying means catalog checks are running.
	PhaseVerifying Phase = "VERIFYING"
	// PhaseDone means the run finished without a fatal error.
	PhaseDone Phase = "DONE"
	// PhaseClosing means the connection is being released.
	PhaseClosing Phase = "CLOSING"
	// PhaseTerminated is the final state.
	PhaseTerminated Phase = "TERMINATED"
)

// ErrInvalidTransition is returned when a phase change is not part of the lifecycle.
var ErrInvalidTransition = errors.New("invalid phase transition")

var transitions = map[Phase][]Phase{ //nolint:gochecknoglobals
	PhaseIdle:       {PhaseConnecting},
	PhaseConnecting: {PhaseConnected, PhaseClosing},
	PhaseConnected:  {PhaseExecuting, PhaseVerifying},
	PhaseExecuting:  {PhaseVerifying, PhaseClosing},
	PhaseVerifying:  {PhaseDone},
	PhaseDone:       {PhaseClosing},
	PhaseClosing:    {PhaseTerminated},
}

// Transition is one recorded phase change.
type Transition struct {
	From Phase     `json:"from"`
	To   Phase     `json:"to"`
	At   time.Time `json:"at"`
}

// State tracks a single run from Idle to Terminated.
type State struct {
	Phase      Phase        `json:"phase"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
	Applied    int          `json:"applied"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Error      string       `json:"error,omitempty"`
	History    []Transition `json:"history"`
}

// NewState creates a state in PhaseIdle.
func NewState() *State {
	return &State{Phase: PhaseIdle, StartedAt: time.Now()}
}

// Enter moves the state to the given phase if the lifecycle allows it.
func (s *State) Enter(to Phase) error {
	if !slices.Contains(transitions[s.Phase], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Phase, to)
	}

	now := time.Now()
	s.History = append(s.History, Transition{From: s.Phase, To: to, At: now})
	s.Phase = to

	if to == PhaseTerminated {
		s.FinishedAt = &now
	}

	return nil
}

// Fail stores the fatal error of the run.
func (s *State) Fail(err error) {
	if err != nil {
		s.Error = err.Error()
	}
}

// Succeeded reports whether the run terminated without a fatal error.
func (s *State) Succeeded() bool {
	return s.Phase == PhaseTerminated && s.Error == ""
}

// Visited reports whether the run passed through the given phase.
func (s *State) Visited(phase Phase) bool {
	return slices.ContainsFunc(s.History, func(t Transition) bool { return t.To == phase })
}

func (s *State) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}
