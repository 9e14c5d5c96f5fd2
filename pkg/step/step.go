package step

import (
	"context"

	"github.com/aretw0/onestep/pkg/config"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/schema"
)

// Step is a single executable unit.
type Step interface {
	// Name is the registry key, matched against the "step" option.
	Name() string

	// Schema declares the configuration the step accepts.
	Schema() schema.Schema

	// Execute runs the step once and returns only the new messages.
	Execute(ctx context.Context, state domain.State, cfg config.RunConfig) (domain.Delta, error)
}
