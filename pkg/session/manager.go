package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/onestep/internal/logging"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serialises access to checkpoints per run key.
// Lock entries are reference counted and dropped once no caller holds them.
type Manager struct {
	store ports.CheckpointStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.Locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.Locker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL passed to the distributed locker.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager over the given checkpoint store.
func NewManager(store ports.CheckpointStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(runKey) after unlocking.
func (m *Manager) acquire(runKey string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[runKey]
	if !exists {
		entry = &lockEntry{}
		m.locks[runKey] = entry
	}
	entry.refs++
	return entry
}

func (m *Manager) release(runKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[runKey]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, runKey)
	}
}

// Load retrieves an existing checkpoint.
func (m *Manager) Load(ctx context.Context, runKey string) (*domain.State, error) {
	var state *domain.State
	err := m.WithLock(ctx, runKey, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, runKey)
		return err
	})
	return state, err
}

// LoadOrEmpty loads the checkpoint for runKey, or returns a fresh empty state when there
// is none. Unlike a session start, nothing is written for a missing key.
// It must be called while holding the run key lock, from inside WithLock.
func (m *Manager) LoadOrEmpty(ctx context.Context, runKey string) (*domain.State, bool, error) {
	state, err := m.store.Load(ctx, runKey)
	if err == nil {
		return state, true, nil
	}
	if errors.Is(err, domain.ErrCheckpointNotFound) {
		return domain.NewState(""), false, nil
	}
	return nil, false, fmt.Errorf("failed to load checkpoint: %w", err)
}

// Delete removes the checkpoint from the store.
func (m *Manager) Delete(ctx context.Context, runKey string) error {
	return m.WithLock(ctx, runKey, func(ctx context.Context) error {
		return m.store.Delete(ctx, runKey)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying checkpoint store.
func (m *Manager) Store() ports.CheckpointStore {
	return m.store
}

// WithLock executes fn while holding the lock for runKey. The lock is not reentrant:
// fn must use Store() rather than the Manager's own locking methods.
func (m *Manager) WithLock(ctx context.Context, runKey string, fn func(context.Context) error) error {
	if runKey == "" {
		return domain.ErrEmptyRunKey
	}

	entry := m.acquire(runKey)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(runKey)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, runKey, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even if ctx was cancelled during fn.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"run_key", runKey,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
