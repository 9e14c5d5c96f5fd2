package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/ports"
)

// Mask replaces every redacted match.
const Mask = "***"

type redactionMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware masks message content matching any of the patterns before it
// reaches the store. The in-memory state passed to Save is left untouched.
func NewRedactionMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &redactionMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *redactionMiddleware) Save(ctx context.Context, runKey string, state *domain.State) error {
	masked := state.Snapshot()
	for i := range masked.Messages {
		for _, p := range m.patterns {
			masked.Messages[i].Content = p.ReplaceAllString(masked.Messages[i].Content, Mask)
		}
	}
	return m.next.Save(ctx, runKey, masked)
}

func (m *redactionMiddleware) Load(ctx context.Context, runKey string) (*domain.State, error) {
	return m.next.Load(ctx, runKey)
}

func (m *redactionMiddleware) Delete(ctx context.Context, runKey string) error {
	return m.next.Delete(ctx, runKey)
}

func (m *redactionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
