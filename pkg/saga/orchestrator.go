package saga

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Logger interface for saga logging
type Logger interface {
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})
}

// NoOpLogger is a no-op logger implementation
type NoOpLogger struct{}

func (NoOpLogger) InfoContext(ctx context.Context, msg string, fields ...interface{})  {}
func (NoOpLogger) WarnContext(ctx context.Context, msg string, fields ...interface{})  {}
func (NoOpLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {}

// Orchestrator runs a definition and compensates completed steps in
// reverse order when a later step fails or the context ends.
type Orchestrator[S any] struct {
	def    *Definition[S]
	logger Logger
}

// NewOrchestrator creates a new saga orchestrator
func NewOrchestrator[S any](def *Definition[S], logger Logger) *Orchestrator[S] {
	if logger == nil {
		logger = NoOpLogger{}
	}
	return &Orchestrator[S]{def: def, logger: logger}
}

// Execute runs every step against state. On failure it returns *Error.
func (o *Orchestrator[S]) Execute(ctx context.Context, state *S) (*Execution, error) {
	exec := newExecution(o.def.Name)

	var completed []*Step[S]
	for _, step := range o.def.Steps {
		if err := ctx.Err(); err != nil {
			return exec, o.fail(ctx, exec, completed, step.Name, err, state)
		}

		started := time.Now()
		err := step.Execute(ctx, state)
		result := &StepResult{
			StepName:  step.Name,
			StartedAt: started,
			Duration:  time.Since(started),
		}
		exec.StepResults = append(exec.StepResults, result)

		if err != nil {
			result.Status = StepStatusFailed
			result.Error = err.Error()
			// A step that returned after the deadline reports ctx.Err() style
			// failures through its own error; keep that error for the caller.
			return exec, o.fail(ctx, exec, completed, step.Name, err, state)
		}

		result.Status = StepStatusCompleted
		completed = append(completed, step)
	}

	exec.Status = StatusCompleted
	exec.FinishedAt = time.Now()
	return exec, nil
}

func (o *Orchestrator[S]) fail(ctx context.Context, exec *Execution, completed []*Step[S], stepName string, cause error, state *S) error {
	exec.FailedStep = stepName
	exec.Error = cause.Error()

	o.logger.WarnContext(ctx, "saga step failed, compensating",
		"saga_id", exec.ID, "saga", exec.Definition, "step", stepName, "error", cause, "completed_steps", len(completed))

	compErr := o.compensate(ctx, exec, completed, state)
	exec.FinishedAt = time.Now()

	return &Error{Step: stepName, Err: cause, CompensationErr: compErr}
}

func (o *Orchestrator[S]) compensate(ctx context.Context, exec *Execution, completed []*Step[S], state *S) error {
	exec.Status = StatusCompensating

	undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.def.CompensationTimeout)
	defer cancel()

	var errs []error
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}

		result := exec.StepResults[i]
		err := step.Compensate(undoCtx, state)
		now := time.Now()
		result.UndoneAt = &now

		if err != nil {
			result.Status = StepStatusCompensationError
			result.UndoErrMsg = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
			o.logger.ErrorContext(ctx, "saga compensation failed",
				"saga_id", exec.ID, "step", step.Name, "error", err)
			continue
		}
		result.Status = StepStatusCompensated
	}

	if len(errs) > 0 {
		exec.Status = StatusCompensationFailed
		return errors.Join(errs...)
	}

	exec.Status = StatusCompensated
	o.logger.InfoContext(ctx, "saga compensated", "saga_id", exec.ID, "saga", exec.Definition)
	return nil
}
