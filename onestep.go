package onestep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/onestep/internal/logging"
	"github.com/aretw0/onestep/pkg/adapters/memory"
	"github.com/aretw0/onestep/pkg/config"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/ports"
	"github.com/aretw0/onestep/pkg/session"
	"github.com/aretw0/onestep/pkg/step"
)

// Engine runs one step per invocation and checkpoints the resulting state by run key.
type Engine struct {
	store       ports.CheckpointStore
	registry    *step.Registry
	locker      ports.Locker
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	defaultStep string
	now         func() time.Time

	sessions *session.Manager
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the checkpoint store. Defaults to an in-memory store.
func WithStore(store ports.CheckpointStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithRegistry sets the registry steps are looked up in.
func WithRegistry(r *step.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
// Calling it more than once chains the hooks in order.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Chain(hooks)
	}
}

// WithLocker coordinates invocations on the same run key across processes.
func WithLocker(locker ports.Locker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithDefaultStep selects the step used when the configuration names none.
func WithDefaultStep(name string) Option {
	return func(e *Engine) {
		e.defaultStep = name
	}
}

// Input is the caller supplied part of an invocation.
type Input struct {
	// TaskID replaces the checkpointed task identifier when non-empty.
	TaskID string `json:"task_id,omitempty"`
	// Messages are appended to the checkpointed history before the step runs.
	Messages []domain.Message `json:"messages,omitempty"`
}

// Result is the outcome of one invocation.
type Result struct {
	State   *domain.State     `json:"state"`
	Step    domain.StepRecord `json:"step"`
	Resumed bool              `json:"resumed"`
}

// New creates an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		defaultStep: step.ValidatingName,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.registry == nil {
		e.registry = step.DefaultRegistry()
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if !e.registry.Has(e.defaultStep) {
		return nil, fmt.Errorf("default step %q: %w", e.defaultStep, domain.ErrUnknownStep)
	}

	sessionOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker))
	}
	e.sessions = session.NewManager(e.store, sessionOpts...)
	return e, nil
}

// Registry returns the steps this engine can run.
func (e *Engine) Registry() *step.Registry {
	return e.registry
}

// DefaultStep is the step run when the configuration does not select one.
func (e *Engine) DefaultStep() string {
	return e.defaultStep
}

// Store returns the checkpoint store.
func (e *Engine) Store() ports.CheckpointStore {
	return e.store
}

// Resolve picks the step named by raw, or the default step.
func (e *Engine) Resolve(raw map[string]any) (step.Step, error) {
	name := e.defaultStep
	if v, ok := raw[config.KeyStep]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %q must be a string, got %T", domain.ErrUnknownStep, config.KeyStep, v)
		}
		if s != "" {
			name = s
		}
	}
	return e.registry.Lookup(name)
}

// Invoke runs one step for runKey.
//
// The checkpoint for runKey is resumed when it exists. The input is applied to it, the
// configuration is validated against the selected step's schema and the step runs once.
// Its delta is merged with the append-only reducer and the new state is saved.
//
// On failure the returned Result carries the state the step saw and a failed step record,
// and the checkpoint is left exactly as it was.
func (e *Engine) Invoke(ctx context.Context, runKey string, in Input, raw map[string]any) (*Result, error) {
	if runKey == "" {
		return nil, domain.ErrEmptyRunKey
	}
	st, err := e.Resolve(raw)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = e.sessions.WithLock(ctx, runKey, func(ctx context.Context) error {
		var err error
		result, err = e.invokeLocked(ctx, runKey, st, in, raw)
		return err
	})
	return result, err
}

func (e *Engine) invokeLocked(ctx context.Context, runKey string, st step.Step, in Input, raw map[string]any) (*Result, error) {
	state, found, err := e.sessions.LoadOrEmpty(ctx, runKey)
	if err != nil {
		return nil, err
	}
	if in.TaskID != "" {
		state.TaskID = in.TaskID
	}
	state = domain.Merge(state, domain.Delta{Messages: in.Messages})

	logger := e.logger.With("run_key", runKey, "step", st.Name(), "task_id", state.TaskID)
	rec := domain.NewStepRecord(st.Name())
	result := &Result{State: state, Resumed: found}

	if err := rec.Transition(domain.StepRunning, e.now()); err != nil {
		return nil, err
	}
	e.emitStep(ctx, domain.EventStepStart, runKey, state, rec)
	logger.Debug("Step started", "resumed", found)

	fail := func(err error) (*Result, error) {
		_ = rec.Fail(err, e.now())
		result.Step = *rec
		e.emitStep(ctx, domain.EventStepEnd, runKey, state, rec)
		logger.Warn("Step failed", "duration", rec.Duration(), "err", err)
		return result, err
	}

	cfg, err := config.NewValidator(st.Schema()).Validate(raw)
	if err != nil {
		return fail(&domain.ConfigValidationError{Step: st.Name(), Err: err})
	}

	delta, err := st.Execute(ctx, *state.Snapshot(), cfg)
	if err != nil {
		return fail(err)
	}

	next := domain.Merge(state, delta)
	if err := e.store.Save(ctx, runKey, next); err != nil {
		return fail(fmt.Errorf("failed to save checkpoint: %w", err))
	}

	_ = rec.Transition(domain.StepCompleted, e.now())
	result.State = next
	result.Step = *rec
	e.emitStep(ctx, domain.EventStepEnd, runKey, next, rec)
	if e.hooks.OnCheckpoint != nil {
		e.hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{
			EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventCheckpoint, RunKey: runKey},
			Messages:  len(next.Messages),
		})
	}
	logger.Info("Step completed", "duration", rec.Duration(), "messages", len(next.Messages))
	return result, nil
}

func (e *Engine) emitStep(ctx context.Context, typ domain.EventType, runKey string, state *domain.State, rec *domain.StepRecord) {
	hook := e.hooks.OnStepStart
	if typ == domain.EventStepEnd {
		hook = e.hooks.OnStepEnd
	}
	if hook == nil {
		return
	}
	evt := &domain.StepEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: typ, RunKey: runKey},
		Step:      rec.Step,
		TaskID:    state.TaskID,
		Status:    rec.Status,
		Duration:  rec.Duration(),
	}
	if rec.Error != "" {
		evt.Err = errors.New(rec.Error)
	}
	hook(ctx, evt)
}

// Checkpoint returns the stored state for runKey.
func (e *Engine) Checkpoint(ctx context.Context, runKey string) (*domain.State, error) {
	return e.sessions.Load(ctx, runKey)
}

// Checkpoints lists the run keys that have a checkpoint.
func (e *Engine) Checkpoints(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// DeleteCheckpoint removes the checkpoint for runKey. It is never called by Invoke.
func (e *Engine) DeleteCheckpoint(ctx context.Context, runKey string) error {
	return e.sessions.Delete(ctx, runKey)
}
