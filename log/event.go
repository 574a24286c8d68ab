package log

import (
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"
)

// Event is the wide event of one runner invocation. It collects phase
// transitions, per-outcome statement counters and errors, and is written once
// when the run ends.
type Event struct {
	mu sync.Mutex

	name      string
	timestamp time.Time
	level     slog.Level
	duration  time.Duration
	attrs     map[string]any
	counts    map[string]int
	steps     []stepRecord
	errors    []errorRecord
}

// NewEvent creates a new wide event.
func NewEvent(name string) *Event {
	return &Event{
		name:      name,
		timestamp: time.Now(),
		level:     slog.LevelInfo,
		attrs:     map[string]any{},
		counts:    map[string]int{},
	}
}

// SetLevel sets event level if it is higher than the current one.
func (e *Event) SetLevel(level slog.Level) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.setLevelNoLock(level)
}

func (e *Event) setLevelNoLock(level slog.Level) {
	if level > e.level {
		e.level = level
	}
}

// AddAttrs adds attributes to event data.
func (e *Event) AddAttrs(attrs map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	maps.Copy(e.attrs, attrs)
}

// AddStep appends an event step and potentially escalates level.
func (e *Event) AddStep(level slog.Level, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.setLevelNoLock(level)

	e.steps = append(e.steps, stepRecord{
		Timestamp: time.Now(),
		Level:     level,
		Name:      name,
	})
}

// Count increments the counter for a statement outcome.
func (e *Event) Count(outcome string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.counts[outcome]++
}

// Counts returns a copy of the outcome counters.
func (e *Event) Counts() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return maps.Clone(e.counts)
}

// AddError appends an error and escalates event level to error.
func (e *Event) AddError(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.setLevelNoLock(slog.LevelError)

	e.errors = append(e.errors, errorRecord{
		Timestamp: time.Now(),
		Error:     err.Error(),
	})
}

// Finish stores current event duration.
func (e *Event) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.duration = time.Since(e.timestamp)
}

// HasErrors returns true if the event has errors.
func (e *Event) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.errors) > 0
}

// Duration returns the event duration.
func (e *Event) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.duration
}

// Level returns the event level.
func (e *Event) Level() slog.Level {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.level
}

// Name returns the event name.
func (e *Event) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.name
}

// ToAttrs converts event to slog attributes.
func (e *Event) ToAttrs() []slog.Attr {
	e.mu.Lock()
	defer e.mu.Unlock()

	steps := make([]map[string]any, 0, len(e.steps))
	for _, step := range e.steps {
		steps = append(steps, map[string]any{
			"timestamp": step.Timestamp,
			"level":     step.Level.String(),
			"name":      step.Name,
		})
	}

	eventErrors := make([]map[string]any, 0, len(e.errors))
	for _, eventError := range e.errors {
		eventErrors = append(eventErrors, map[string]any{
			"timestamp": eventError.Timestamp,
			"error":     eventError.Error,
		})
	}

	reserved := builtinAttrKeys()

	attrs := make([]slog.Attr, 0, len(e.attrs)+len(reserved))
	attrs = append(attrs,
		slog.String("name", e.name),
		slog.Time("timestamp", e.timestamp),
		slog.Duration("duration", e.duration),
		slog.Any("statements", maps.Clone(e.counts)),
		slog.Any("steps", steps),
		slog.Any("errors", eventErrors),
	)

	customAttrKeys := make([]string, 0, len(e.attrs))
	for key := range e.attrs {
		if slices.Contains(reserved, key) {
			continue
		}

		customAttrKeys = append(customAttrKeys, key)
	}
	sort.Strings(customAttrKeys)

	for _, key := range customAttrKeys {
		attrs = append(attrs, slog.Any(key, e.attrs[key]))
	}

	return attrs
}

type stepRecord struct {
	Timestamp time.Time  `json:"timestamp"`
	Level     slog.Level `json:"level"`
	Name      string     `json:"name"`
}

type errorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

func builtinAttrKeys() []string {
	return []string{
		"name",
		"timestamp",
		"duration",
		"statements",
		"steps",
		"errors",
	}
}
