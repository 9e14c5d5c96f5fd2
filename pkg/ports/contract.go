package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/onestep/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	runKey := "contract-run-" + time.Now().Format("20060102150405.000000")

	s1 := &domain.State{
		TaskID: "42",
		Messages: []domain.Message{
			domain.NewHumanMessage("hi"),
			domain.NewAIMessage("Success: 42"),
		},
	}
	s2 := &domain.State{
		TaskID:   "43",
		Messages: []domain.Message{domain.NewAIMessage("hello world!")},
	}

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runKey, s1), "Save should not return error")

		loaded, err := store.Load(ctx, runKey)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, s1, loaded)
	})

	t.Run("Save Is Idempotent", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runKey, s1))
		require.NoError(t, store.Save(ctx, runKey, s1))

		loaded, err := store.Load(ctx, runKey)
		require.NoError(t, err)
		assert.Equal(t, s1, loaded, "repeated Save must not duplicate messages")
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runKey, s1))
		require.NoError(t, store.Save(ctx, runKey, s2))

		loaded, err := store.Load(ctx, runKey)
		require.NoError(t, err)
		assert.Equal(t, s2, loaded, "Save must replace, not merge")
	})

	t.Run("Loaded State Is Isolated", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runKey, s1))

		loaded, err := store.Load(ctx, runKey)
		require.NoError(t, err)
		loaded.Messages[0].Content = "mutated"
		loaded.TaskID = "mutated"

		again, err := store.Load(ctx, runKey)
		require.NoError(t, err)
		assert.Equal(t, s1, again)
	})

	t.Run("Empty Messages", func(t *testing.T) {
		key := runKey + "-empty"
		defer func() { _ = store.Delete(ctx, key) }()

		require.NoError(t, store.Save(ctx, key, domain.NewState("only-task")))
		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "only-task", loaded.TaskID)
		assert.Empty(t, loaded.Messages)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runKey)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("Empty Run Key", func(t *testing.T) {
		assert.ErrorIs(t, store.Save(ctx, "", s1), domain.ErrEmptyRunKey)
		_, err := store.Load(ctx, "")
		assert.ErrorIs(t, err, domain.ErrEmptyRunKey)
		assert.ErrorIs(t, store.Delete(ctx, ""), domain.ErrEmptyRunKey)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runKey, s1))

		require.NoError(t, store.Delete(ctx, runKey), "Delete should not return error")

		_, err := store.Load(ctx, runKey)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "Load after Delete should return ErrCheckpointNotFound")

		assert.NoError(t, store.Delete(ctx, runKey), "Delete of a missing key should not fail")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runKey + "-1"
		id2 := runKey + "-2"
		require.NoError(t, store.Save(ctx, id1, s1))
		require.NoError(t, store.Save(ctx, id2, s2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, id1)
		assert.Contains(t, keys, id2)
	})
}
