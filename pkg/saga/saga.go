package saga

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status represents the current status of a saga execution
type Status string

const (
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusCompensating Status = "compensating"
	StatusCompensated  Status = "compensated"
	// StatusCompensationFailed means at least one undo returned an error
	StatusCompensationFailed Status = "compensation_failed"
)

// StepStatus represents the status of a saga step
type StepStatus string

const (
	StepStatusCompleted         StepStatus = "completed"
	StepStatusFailed            StepStatus = "failed"
	StepStatusCompensated       StepStatus = "compensated"
	StepStatusCompensationError StepStatus = "compensation_failed"
)

// Step is a single unit of work over the shared state S. Compensate may be
// nil for steps that have nothing to undo.
type Step[S any] struct {
	Name       string
	Execute    func(ctx context.Context, state *S) error
	Compensate func(ctx context.Context, state *S) error
}

// Definition is an ordered list of steps
type Definition[S any] struct {
	Name  string
	Steps []*Step[S]
	// CompensationTimeout bounds the whole undo phase. Undo runs on a context
	// detached from the caller so a cancelled request still rolls back.
	CompensationTimeout time.Duration
}

// NewDefinition creates a new saga definition
func NewDefinition[S any](name string) *Definition[S] {
	return &Definition[S]{
		Name:                name,
		CompensationTimeout: 10 * time.Second,
	}
}

// AddStep appends a step
func (d *Definition[S]) AddStep(step *Step[S]) *Definition[S] {
	d.Steps = append(d.Steps, step)
	return d
}

// WithCompensationTimeout sets the undo budget
func (d *Definition[S]) WithCompensationTimeout(timeout time.Duration) *Definition[S] {
	d.CompensationTimeout = timeout
	return d
}

// StepResult records what happened to one step
type StepResult struct {
	StepName   string        `json:"step_name"`
	Status     StepStatus    `json:"status"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	UndoneAt   *time.Time    `json:"undone_at,omitempty"`
	UndoErrMsg string        `json:"undo_error,omitempty"`
}

// Execution is the record of one saga run
type Execution struct {
	ID          string        `json:"id"`
	Definition  string        `json:"definition"`
	Status      Status        `json:"status"`
	StepResults []*StepResult `json:"step_results"`
	FailedStep  string        `json:"failed_step,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

func newExecution(definition string) *Execution {
	return &Execution{
		ID:         uuid.New().String(),
		Definition: definition,
		Status:     StatusRunning,
		StartedAt:  time.Now(),
	}
}

// Error is returned when a step fails. It unwraps to the step error so
// callers can match domain sentinels with errors.Is.
type Error struct {
	Step            string
	Err             error
	CompensationErr error
}

func (e *Error) Error() string {
	if e.CompensationErr != nil {
		return "saga step " + e.Step + " failed: " + e.Err.Error() + " (compensation: " + e.CompensationErr.Error() + ")"
	}
	return "saga step " + e.Step + " failed: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
