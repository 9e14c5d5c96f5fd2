package domain

import (
	"fmt"
	"time"
)

// StepStatus is the lifecycle of a single step invocation.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

var allowedTransitions = map[StepStatus][]StepStatus{
	StepPending: {StepRunning},
	StepRunning: {StepCompleted, StepFailed},
}

// StepRecord tracks one invocation of a step.
type StepRecord struct {
	Step       string     `json:"step"`
	Status     StepStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// NewStepRecord creates a pending record for the named step.
func NewStepRecord(step string) *StepRecord {
	return &StepRecord{Step: step, Status: StepPending}
}

// Transition moves the record to the next status.
// Completed and failed records cannot be re-entered.
func (r *StepRecord) Transition(next StepStatus, at time.Time) error {
	for _, allowed := range allowedTransitions[r.Status] {
		if allowed != next {
			continue
		}
		r.Status = next
		switch next {
		case StepRunning:
			r.StartedAt = at
		case StepCompleted, StepFailed:
			r.FinishedAt = at
		}
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, next)
}

// Fail records the error and moves the record to failed.
func (r *StepRecord) Fail(err error, at time.Time) error {
	if err != nil {
		r.Error = err.Error()
	}
	return r.Transition(StepFailed, at)
}

// Duration is the time spent running. Zero until the record is terminal.
func (r *StepRecord) Duration() time.Duration {
	if !r.Status.Terminal() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
