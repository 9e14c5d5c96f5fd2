package domain

import (
	"errors"
	"fmt"
)

// ErrCheckpointNotFound is returned when no checkpoint exists for a run key.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrEmptyRunKey is returned by stores when the run key is empty.
var ErrEmptyRunKey = errors.New("run key cannot be empty")

// ErrPrecondition is returned when the input state does not satisfy what a step requires.
var ErrPrecondition = errors.New("precondition failed")

// ErrConfigValidation matches any ConfigValidationError via errors.Is.
var ErrConfigValidation = errors.New("config validation failed")

// ErrIllegalTransition is returned when a step record is moved out of order.
var ErrIllegalTransition = errors.New("illegal step transition")

// ErrUnknownStep is returned when the configured step is not registered.
var ErrUnknownStep = errors.New("unknown step")

// ConfigValidationError wraps the field errors produced while validating a run
// configuration. The original error is kept and reachable through Unwrap.
type ConfigValidationError struct {
	Step string
	Err  error
}

func (e *ConfigValidationError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("%s: %v", ErrConfigValidation, e.Err)
	}
	return fmt.Sprintf("step %q: %s: %v", e.Step, ErrConfigValidation, e.Err)
}

func (e *ConfigValidationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrConfigValidation) match without losing the original chain.
func (e *ConfigValidationError) Is(target error) bool {
	return target == ErrConfigValidation
}
