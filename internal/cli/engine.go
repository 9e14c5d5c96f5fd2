package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/onestep"
	"github.com/aretw0/onestep/internal/logging"
)

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	Store StoreOptions
	Debug bool
}

// Logger builds the command logger. Without --debug only warnings reach stderr.
func (g GlobalOptions) Logger() *slog.Logger {
	if g.Debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.New(slog.LevelWarn)
}

// NewEngine opens the configured store and builds an engine over it.
// The caller must Close the returned backend.
func NewEngine(ctx context.Context, g GlobalOptions, logger *slog.Logger, extra ...onestep.Option) (*onestep.Engine, *Backend, error) {
	backend, err := OpenStore(ctx, g.Store)
	if err != nil {
		return nil, nil, err
	}

	opts := []onestep.Option{
		onestep.WithStore(backend.Store),
		onestep.WithLogger(logger),
	}
	if backend.Locker != nil {
		opts = append(opts, onestep.WithLocker(backend.Locker))
	}
	if g.Debug {
		opts = append(opts, onestep.WithLifecycleHooks(DebugHooks(logger)))
	}
	opts = append(opts, extra...)

	eng, err := onestep.New(opts...)
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return eng, backend, nil
}
