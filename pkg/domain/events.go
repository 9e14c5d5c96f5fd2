package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepStart  EventType = "step_start"
	EventStepEnd    EventType = "step_end"
	EventCheckpoint EventType = "checkpoint"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunKey    string    `json:"run_key"`
}

// StepEvent is emitted around the execution of a step.
type StepEvent struct {
	EventBase
	Step     string        `json:"step"`
	TaskID   string        `json:"task_id"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// CheckpointEvent is emitted after a checkpoint has been written.
type CheckpointEvent struct {
	EventBase
	Messages int `json:"messages"`
}

// LifecycleHooks defines callbacks for engine observability.
// Any hook may be nil.
type LifecycleHooks struct {
	OnStepStart  func(context.Context, *StepEvent)
	OnStepEnd    func(context.Context, *StepEvent)
	OnCheckpoint func(context.Context, *CheckpointEvent)
}

// Chain returns hooks that call h first and then next.
func (h LifecycleHooks) Chain(next LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStepStart:  chainHook(h.OnStepStart, next.OnStepStart),
		OnStepEnd:    chainHook(h.OnStepEnd, next.OnStepEnd),
		OnCheckpoint: chainHook(h.OnCheckpoint, next.OnCheckpoint),
	}
}

func chainHook[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
