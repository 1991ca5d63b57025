package saga

import (
	"context"
	"time"
)

// SagaID uniquely identifies a saga instance
type SagaID string

// StepID uniquely identifies a step within a saga
type StepID string

// SagaState is the lifecycle position of a saga instance
type SagaState string

const (
	SagaStateStarted     SagaState = "started"
	SagaStateRunning     SagaState = "running"
	SagaStateCompleted   SagaState = "completed"
	SagaStateCompensated SagaState = "compensated"
)

// Done reports whether the instance has stopped running
func (s SagaState) Done() bool {
	return s == SagaStateCompleted || s == SagaStateCompensated
}

// StepState is the lifecycle position of one step
type StepState string

const (
	StepStatePending     StepState = "pending"
	StepStateRunning     StepState = "running"
	StepStateCompleted   StepState = "completed"
	StepStateSkipped     StepState = "skipped"
	StepStateFailed      StepState = "failed"
	StepStateCompensated StepState = "compensated"
)

// SagaData is shared by the steps of one run; later steps read what earlier
// steps stored
type SagaData map[string]any

// String returns the string stored under key, or ""
func (d SagaData) String(key string) string {
	v, _ := d[key].(string)
	return v
}

// Bool returns the bool stored under key, or false
func (d SagaData) Bool(key string) bool {
	v, _ := d[key].(bool)
	return v
}

// ErrSkipStep may be returned by Execute when the step has nothing to do.
// Skipped steps are not compensated.
var ErrSkipStep = skipError{}

type skipError struct{}

func (skipError) Error() string { return "step skipped" }

// Step is one unit of work with its undo
type Step interface {
	ID() StepID
	Execute(ctx context.Context, data SagaData) error
	// Compensate undoes a completed Execute
	Compensate(ctx context.Context, data SagaData) error
}

// SagaDefinition names an ordered list of steps and the time budget of a run
type SagaDefinition interface {
	ID() string
	Steps() []Step
	// Timeout bounds the whole run; zero means no limit
	Timeout() time.Duration
}

// SagaInstance is the recorded state of one run
type SagaInstance struct {
	ID          SagaID          `json:"id"`
	Definition  string          `json:"definition"`
	State       SagaState       `json:"state"`
	Steps       []StepExecution `json:"steps"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// SkippedSteps lists the steps that returned ErrSkipStep
func (in *SagaInstance) SkippedSteps() []StepID {
	var skipped []StepID
	for _, step := range in.Steps {
		if step.State == StepStateSkipped {
			skipped = append(skipped, step.ID)
		}
	}
	return skipped
}

// StepExecution is the recorded state of one step within a run
type StepExecution struct {
	ID          StepID     `json:"id"`
	State       StepState  `json:"state"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// EventType names a lifecycle transition
type EventType string

const (
	EventSagaStarted     EventType = "saga_started"
	EventSagaCompleted   EventType = "saga_completed"
	EventSagaCompensated EventType = "saga_compensated"
	EventStepStarted     EventType = "step_started"
	EventStepCompleted   EventType = "step_completed"
	EventStepSkipped     EventType = "step_skipped"
	EventStepFailed      EventType = "step_failed"
	EventStepCompensated EventType = "step_compensated"
)

// SagaEvent is published on the manager's event channel for every
// transition
type SagaEvent struct {
	SagaID     SagaID    `json:"saga_id"`
	Definition string    `json:"definition"`
	StepID     StepID    `json:"step_id,omitempty"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}
