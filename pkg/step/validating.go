package step

import (
	"context"
	"fmt"

	"github.com/aretw0/onestep/pkg/config"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/schema"
)

// ValidatingName is the registry key of the validating step.
const ValidatingName = "validate"

// Validating re-checks its configuration before answering with the task identifier.
// A configuration that does not pass aborts the step with a ConfigValidationError.
type Validating struct {
	validator *config.Validator
}

// NewValidating creates the validating step.
// The model name is required and has no default.
func NewValidating() *Validating {
	return &Validating{
		validator: config.NewValidator(config.BaseSchema(ValidatingName).Extend(schema.Schema{
			config.KeyModelName: schema.Required(schema.String()),
		})),
	}
}

func (s *Validating) Name() string { return ValidatingName }

func (s *Validating) Schema() schema.Schema { return s.validator.Schema() }

// Execute requires a valid configuration and then a task identifier on the state.
func (s *Validating) Execute(ctx context.Context, state domain.State, cfg config.RunConfig) (domain.Delta, error) {
	if _, err := s.validator.Validate(cfg.Bag()); err != nil {
		return domain.Delta{}, &domain.ConfigValidationError{Step: ValidatingName, Err: err}
	}

	if state.TaskID == "" {
		return domain.Delta{}, fmt.Errorf("step %q: %w: state has no task_id", ValidatingName, domain.ErrPrecondition)
	}

	return domain.Delta{
		Messages: []domain.Message{domain.NewAIMessage("Success: " + state.TaskID)},
	}, nil
}
