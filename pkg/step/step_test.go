package step_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/onestep/pkg/config"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/schema"
	"github.com/aretw0/onestep/pkg/step"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidating_Success(t *testing.T) {
	s := step.NewValidating()
	cfg, err := config.NewValidator(s.Schema()).Validate(map[string]any{"model_name": "claude-3-7-sonnet@20250219"})
	require.NoError(t, err)

	delta, err := s.Execute(context.Background(), domain.State{TaskID: "42"}, cfg)
	require.NoError(t, err)

	require.Len(t, delta.Messages, 1)
	assert.Equal(t, domain.NewAIMessage("Success: 42"), delta.Messages[0])
}

func TestValidating_ConfigFailure(t *testing.T) {
	s := step.NewValidating()

	// Model name was never supplied.
	delta, err := s.Execute(context.Background(), domain.State{TaskID: "42"}, config.RunConfig{TaskID: "42"})
	require.Error(t, err)
	assert.True(t, delta.Empty())

	assert.ErrorIs(t, err, domain.ErrConfigValidation)

	var cve *domain.ConfigValidationError
	require.True(t, errors.As(err, &cve))
	assert.Equal(t, step.ValidatingName, cve.Step)
	assert.Equal(t, []string{"model_name"}, schema.FieldKeys(err))
}

func TestValidating_EmptyModelNameAccepted(t *testing.T) {
	s := step.NewValidating()
	cfg, err := config.NewValidator(s.Schema()).Validate(map[string]any{"model_name": ""})
	require.NoError(t, err)

	delta, err := s.Execute(context.Background(), domain.State{TaskID: "42"}, cfg)
	require.NoError(t, err, "a supplied empty value is not a missing one")
	assert.Equal(t, "Success: 42", delta.Messages[0].Content)
}

func TestValidating_ConfigCheckedBeforeTaskID(t *testing.T) {
	s := step.NewValidating()
	_, err := s.Execute(context.Background(), domain.State{}, config.RunConfig{})

	assert.ErrorIs(t, err, domain.ErrConfigValidation)
	assert.NotErrorIs(t, err, domain.ErrPrecondition)
}

func TestValidating_MissingTaskID(t *testing.T) {
	s := step.NewValidating()
	_, err := s.Execute(context.Background(), domain.State{}, config.RunConfig{ModelName: "openai"})

	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.NotErrorIs(t, err, domain.ErrConfigValidation)
}

func TestNoop_FixedReplyAfterDelay(t *testing.T) {
	var slept []time.Duration
	s := step.NewNoop(step.WithSleeper(func(d time.Duration) { slept = append(slept, d) }))

	inputs := []domain.State{
		{},
		{TaskID: "42"},
		{TaskID: "x", Messages: []domain.Message{domain.NewHumanMessage("hi")}},
	}
	for _, in := range inputs {
		delta, err := s.Execute(context.Background(), in, config.RunConfig{ModelName: "anything"})
		require.NoError(t, err)
		require.Len(t, delta.Messages, 1)
		assert.Equal(t, "hello world!", delta.Messages[0].Content)
		assert.Equal(t, domain.RoleAI, delta.Messages[0].Role)
	}

	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, slept)
}

func TestNoop_Options(t *testing.T) {
	calls := 0
	s := step.NewNoop(
		step.WithDelay(0),
		step.WithReply("done"),
		step.WithSleeper(func(time.Duration) { calls++ }),
	)

	delta, err := s.Execute(context.Background(), domain.State{}, config.RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, "done", delta.Messages[0].Content)
	assert.Zero(t, calls, "zero delay must not sleep")
}

func TestNoop_RealSleepBlocks(t *testing.T) {
	s := step.NewNoop(step.WithDelay(20 * time.Millisecond))

	start := time.Now()
	_, err := s.Execute(context.Background(), domain.State{}, config.RunConfig{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestNoop_AcceptsAnyConfig(t *testing.T) {
	s := step.NewNoop(step.WithDelay(0))
	v := config.NewValidator(s.Schema())

	bags := []map[string]any{
		nil,
		{"model_name": "claude-3-7-sonnet@20250219"},
		{"model_name": 7},
		{"task_id": 42, "model_name": []any{"a", "b"}},
		{"task_id": map[string]any{"nested": true}, "step": false},
	}
	for _, bag := range bags {
		cfg, err := v.Validate(bag)
		require.NoError(t, err, "bag %v", bag)

		delta, err := s.Execute(context.Background(), domain.State{}, cfg)
		require.NoError(t, err)
		assert.Equal(t, "hello world!", delta.Messages[0].Content)
	}
}

func TestRegistry(t *testing.T) {
	r := step.DefaultRegistry()
	assert.Equal(t, []string{"noop", "validate"}, r.Names())
	assert.True(t, r.Has("noop"))

	s, err := r.Lookup("validate")
	require.NoError(t, err)
	assert.Equal(t, "validate", s.Name())

	_, err = r.Lookup("branching")
	assert.ErrorIs(t, err, domain.ErrUnknownStep)

	r.Register(step.NewNoop(step.WithDelay(0), step.WithReply("override")))
	s, err = r.Lookup("noop")
	require.NoError(t, err)
	delta, err := s.Execute(context.Background(), domain.State{}, config.RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, "override", delta.Messages[0].Content)
}
