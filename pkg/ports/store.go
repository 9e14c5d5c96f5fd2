package ports

import (
	"context"

	"github.com/aretw0/onestep/pkg/domain"
)

// CheckpointStore persists execution state between invocations.
// Save overwrites the previous snapshot for the key in full; it never merges.
type CheckpointStore interface {
	// Save persists the state for a given run key.
	Save(ctx context.Context, runKey string, state *domain.State) error

	// Load retrieves the state for a given run key.
	// Returns domain.ErrCheckpointNotFound if the key has no checkpoint.
	Load(ctx context.Context, runKey string) (*domain.State, error)

	// Delete removes the checkpoint. Deleting a missing key is not an error.
	Delete(ctx context.Context, runKey string) error

	// List returns the run keys that have a checkpoint.
	List(ctx context.Context) ([]string, error)
}
