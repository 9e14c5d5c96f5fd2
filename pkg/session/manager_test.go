package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/onestep/pkg/adapters/memory"
	"github.com/aretw0/onestep/pkg/adapters/redis"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/ports"
	"github.com/aretw0/onestep/pkg/session"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s SlowStore) Load(ctx context.Context, runKey string) (*domain.State, error) {
	time.Sleep(time.Millisecond)
	return s.Store.Load(ctx, runKey)
}

func TestManager_SerialisesReadModifyWrite(t *testing.T) {
	store := SlowStore{memory.NewStore()}
	manager := session.NewManager(store)
	ctx := context.Background()
	key := "race-test"

	require.NoError(t, store.Save(ctx, key, domain.NewState("42")))

	var wg sync.WaitGroup
	const writers = 20
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, key, func(ctx context.Context) error {
				state, err := manager.Store().Load(ctx, key)
				if err != nil {
					return err
				}
				next := domain.Merge(state, domain.Delta{Messages: []domain.Message{domain.NewAIMessage("tick")}})
				return manager.Store().Save(ctx, key, next)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := manager.Load(ctx, key)
	require.NoError(t, err)
	assert.Len(t, state.Messages, writers, "no update may be lost")
}

func TestManager_DistinctKeysDoNotBlock(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = manager.WithLock(ctx, "a", func(context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	require.NoError(t, manager.WithLock(ctx, "b", func(context.Context) error { return nil }))
	close(done)
}

func TestManager_LoadOrEmpty(t *testing.T) {
	store := memory.NewStore()
	manager := session.NewManager(store)
	ctx := context.Background()

	err := manager.WithLock(ctx, "fresh", func(ctx context.Context) error {
		state, found, err := manager.LoadOrEmpty(ctx, "fresh")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, domain.NewState(""), state)
		return nil
	})
	require.NoError(t, err)

	keys, err := manager.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys, "a missing checkpoint must not be created")

	require.NoError(t, store.Save(ctx, "old", domain.NewState("42")))
	state, found, err := manager.LoadOrEmpty(ctx, "old")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "42", state.TaskID)
}

type failingStore struct{ ports.CheckpointStore }

func (failingStore) Load(context.Context, string) (*domain.State, error) {
	return nil, errors.New("disk on fire")
}

func TestManager_LoadOrEmpty_StoreError(t *testing.T) {
	manager := session.NewManager(failingStore{memory.NewStore()})
	_, _, err := manager.LoadOrEmpty(context.Background(), "k")
	assert.ErrorContains(t, err, "disk on fire")
}

func TestManager_EmptyRunKey(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	err := manager.WithLock(context.Background(), "", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrEmptyRunKey)
}

type countingLocker struct {
	locks, unlocks atomic.Int32
	ttl            time.Duration
}

func (l *countingLocker) Lock(_ context.Context, _ string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.locks.Add(1)
	l.ttl = ttl
	return func(context.Context) error {
		l.unlocks.Add(1)
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(5*time.Second))

	require.NoError(t, manager.Delete(context.Background(), "k"))
	assert.Equal(t, int32(1), locker.locks.Load())
	assert.Equal(t, int32(1), locker.unlocks.Load())
	assert.Equal(t, 5*time.Second, locker.ttl)
}

func TestManager_RedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	manager := session.NewManager(memory.NewStore(), session.WithLocker(redis.NewLocker(client, redis.DefaultPrefix)))
	ctx := context.Background()

	var inside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, "shared", func(context.Context) error {
				if inside.Add(1) != 1 {
					t.Error("two holders inside the critical section")
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
