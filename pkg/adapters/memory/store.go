package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/onestep/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Checkpoints live as long as the process. Safe for concurrent use.
type Store struct {
	data map[string]*domain.State
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.State),
	}
}

// Save stores a copy of the state, replacing any previous checkpoint.
func (s *Store) Save(ctx context.Context, runKey string, state *domain.State) error {
	if runKey == "" {
		return domain.ErrEmptyRunKey
	}

	// Deep copy to ensure isolation, similar to serialization
	copied := state.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[runKey] = copied
	return nil
}

// Load retrieves a copy of the checkpoint.
func (s *Store) Load(ctx context.Context, runKey string) (*domain.State, error) {
	if runKey == "" {
		return nil, domain.ErrEmptyRunKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[runKey]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}

	// Copy on read so caller can't mutate store state directly by pointer
	return state.Snapshot(), nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, runKey string) error {
	if runKey == "" {
		return domain.ErrEmptyRunKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runKey)
	return nil
}

// List returns the stored run keys in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for id := range s.data {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys, nil
}
