package onestep_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/onestep"
	"github.com/aretw0/onestep/pkg/adapters/memory"
	"github.com/aretw0/onestep/pkg/config"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/ports"
	"github.com/aretw0/onestep/pkg/schema"
	"github.com/aretw0/onestep/pkg/step"
)

const model = "claude-3-7-sonnet@20250219"

func newEngine(t *testing.T, opts ...onestep.Option) (*onestep.Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	base := []onestep.Option{
		onestep.WithStore(store),
		onestep.WithRegistry(step.DefaultRegistry(step.WithDelay(0))),
	}
	eng, err := onestep.New(append(base, opts...)...)
	require.NoError(t, err)
	return eng, store
}

func TestInvoke_ValidateSuccess(t *testing.T) {
	eng, store := newEngine(t)
	ctx := context.Background()

	res, err := eng.Invoke(ctx, "run-1", onestep.Input{TaskID: "42"}, map[string]any{config.KeyModelName: model})
	require.NoError(t, err)

	require.Len(t, res.State.Messages, 1)
	assert.Equal(t, "Success: 42", res.State.Messages[0].Content)
	assert.Equal(t, domain.RoleAI, res.State.Messages[0].Role)
	assert.Equal(t, domain.StepCompleted, res.Step.Status)
	assert.Equal(t, step.ValidatingName, res.Step.Step)
	assert.False(t, res.Resumed)

	saved, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, res.State, saved)
}

func TestInvoke_ValidateMissingModel(t *testing.T) {
	eng, store := newEngine(t)
	ctx := context.Background()

	res, err := eng.Invoke(ctx, "run-1", onestep.Input{TaskID: "42"}, map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigValidation)

	var cve *domain.ConfigValidationError
	require.ErrorAs(t, err, &cve)
	assert.Equal(t, step.ValidatingName, cve.Step)
	assert.Equal(t, []string{config.KeyModelName}, schema.FieldKeys(err))

	require.NotNil(t, res)
	assert.Equal(t, domain.NewState("42"), res.State, "state must be unchanged from input")
	assert.Equal(t, domain.StepFailed, res.Step.Status)
	assert.NotEmpty(t, res.Step.Error)

	_, err = store.Load(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "failure must not write")
}

func TestInvoke_MissingTaskID(t *testing.T) {
	eng, store := newEngine(t)
	ctx := context.Background()

	res, err := eng.Invoke(ctx, "run-1", onestep.Input{}, map[string]any{config.KeyModelName: model})
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	require.NotNil(t, res)
	assert.Equal(t, domain.StepFailed, res.Step.Status)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestInvoke_Noop(t *testing.T) {
	var slept []time.Duration
	reg := step.DefaultRegistry(step.WithSleeper(func(d time.Duration) { slept = append(slept, d) }))
	eng, err := onestep.New(onestep.WithRegistry(reg), onestep.WithDefaultStep(step.NoopName))
	require.NoError(t, err)

	// Any state and any accepted config: the task id and model are ignored.
	res, err := eng.Invoke(context.Background(), "run-1", onestep.Input{}, map[string]any{config.KeyModelName: "openai"})
	require.NoError(t, err)

	require.Len(t, res.State.Messages, 1)
	assert.Equal(t, step.DefaultReply, res.State.Messages[0].Content)
	assert.Equal(t, []time.Duration{step.DefaultDelay}, slept)
}

func TestInvoke_NoopAcceptsAnyConfig(t *testing.T) {
	eng, _ := newEngine(t, onestep.WithDefaultStep(step.NoopName))
	ctx := context.Background()

	bags := []map[string]any{
		{config.KeyModelName: model},
		{config.KeyModelName: "mistral"},
		{config.KeyTaskID: 42},
		{config.KeyModelName: 7},
	}
	for i, bag := range bags {
		res, err := eng.Invoke(ctx, fmt.Sprintf("run-%d", i), onestep.Input{}, bag)
		require.NoError(t, err, "bag %v", bag)
		require.Len(t, res.State.Messages, 1)
		assert.Equal(t, step.DefaultReply, res.State.Messages[0].Content)
		assert.Equal(t, domain.StepCompleted, res.Step.Status)
	}
}

func TestInvoke_EmptyModelNameIsSupplied(t *testing.T) {
	eng, store := newEngine(t)
	ctx := context.Background()

	res, err := eng.Invoke(ctx, "run-1", onestep.Input{TaskID: "42"}, map[string]any{config.KeyModelName: ""})
	require.NoError(t, err)
	assert.Equal(t, "Success: 42", res.State.Messages[0].Content)

	saved, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, saved.Messages, 1)
}

func TestInvoke_ResumeAppends(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	cfg := map[string]any{config.KeyModelName: model}

	_, err := eng.Invoke(ctx, "run-1", onestep.Input{TaskID: "42"}, cfg)
	require.NoError(t, err)

	res, err := eng.Invoke(ctx, "run-1", onestep.Input{Messages: []domain.Message{domain.NewHumanMessage("again")}}, cfg)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, "42", res.State.TaskID, "task id survives resume")
	assert.Equal(t, []domain.Message{
		domain.NewAIMessage("Success: 42"),
		domain.NewHumanMessage("again"),
		domain.NewAIMessage("Success: 42"),
	}, res.State.Messages)

	// A new task id replaces the stored one.
	res, err = eng.Invoke(ctx, "run-1", onestep.Input{TaskID: "43"}, cfg)
	require.NoError(t, err)
	last, _ := res.State.Last()
	assert.Equal(t, "Success: 43", last.Content)
}

func TestInvoke_FailureKeepsPriorCheckpoint(t *testing.T) {
	eng, store := newEngine(t)
	ctx := context.Background()

	first, err := eng.Invoke(ctx, "run-1", onestep.Input{TaskID: "42"}, map[string]any{config.KeyModelName: model})
	require.NoError(t, err)

	_, err = eng.Invoke(ctx, "run-1", onestep.Input{Messages: []domain.Message{domain.NewHumanMessage("lost")}}, map[string]any{})
	require.Error(t, err)

	saved, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, first.State, saved)
}

func TestInvoke_StepSelection(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.Invoke(ctx, "run-1", onestep.Input{}, map[string]any{config.KeyStep: "missing"})
	assert.ErrorIs(t, err, domain.ErrUnknownStep)

	_, err = eng.Invoke(ctx, "run-1", onestep.Input{}, map[string]any{config.KeyStep: 7})
	assert.ErrorIs(t, err, domain.ErrUnknownStep)

	_, err = eng.Invoke(ctx, "", onestep.Input{}, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyRunKey)
}

func TestNew_UnknownDefaultStep(t *testing.T) {
	_, err := onestep.New(onestep.WithDefaultStep("nope"))
	assert.ErrorIs(t, err, domain.ErrUnknownStep)
}

func TestInvoke_Hooks(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, s)
	}
	hooks := domain.LifecycleHooks{
		OnStepStart: func(_ context.Context, e *domain.StepEvent) { record("start:" + string(e.Status)) },
		OnStepEnd:   func(_ context.Context, e *domain.StepEvent) { record("end:" + string(e.Status)) },
		OnCheckpoint: func(_ context.Context, e *domain.CheckpointEvent) {
			record("checkpoint:" + e.RunKey)
		},
	}
	eng, _ := newEngine(t, onestep.WithLifecycleHooks(hooks))
	ctx := context.Background()

	_, err := eng.Invoke(ctx, "run-1", onestep.Input{TaskID: "42"}, map[string]any{config.KeyModelName: model})
	require.NoError(t, err)
	_, err = eng.Invoke(ctx, "run-2", onestep.Input{TaskID: "42"}, nil)
	require.Error(t, err)

	assert.Equal(t, []string{
		"start:running", "end:completed", "checkpoint:run-1",
		"start:running", "end:failed",
	}, events)
}

type brokenStore struct{ ports.CheckpointStore }

func (brokenStore) Save(context.Context, string, *domain.State) error {
	return errors.New("read-only")
}

func TestInvoke_SaveFailure(t *testing.T) {
	eng, err := onestep.New(onestep.WithStore(brokenStore{memory.NewStore()}))
	require.NoError(t, err)

	res, err := eng.Invoke(context.Background(), "run-1", onestep.Input{TaskID: "42"}, map[string]any{config.KeyModelName: model})
	assert.ErrorContains(t, err, "read-only")
	require.NotNil(t, res)
	assert.Equal(t, domain.StepFailed, res.Step.Status)
	assert.Empty(t, res.State.Messages)
}

func TestInvoke_ConcurrentSameKey(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	cfg := map[string]any{config.KeyModelName: model}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Invoke(ctx, "shared", onestep.Input{TaskID: "42"}, cfg)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := eng.Checkpoint(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, state.Messages, 10)
}

func TestCheckpointOps(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.Checkpoint(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)

	_, err = eng.Invoke(ctx, "run-1", onestep.Input{TaskID: "42"}, map[string]any{config.KeyModelName: model})
	require.NoError(t, err)

	keys, err := eng.Checkpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, keys)

	require.NoError(t, eng.DeleteCheckpoint(ctx, "run-1"))
	_, err = eng.Checkpoint(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}
