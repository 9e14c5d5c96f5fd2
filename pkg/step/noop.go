package step

import (
	"context"
	"time"

	"github.com/aretw0/onestep/pkg/config"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/schema"
)

// NoopName is the registry key of the fixed-latency step.
const NoopName = "noop"

const (
	// DefaultDelay is the simulated work time of the noop step.
	DefaultDelay = time.Second
	// DefaultReply is the message produced by the noop step.
	DefaultReply = "hello world!"
)

// Sleeper blocks the caller for d.
type Sleeper func(d time.Duration)

// Noop pauses for a fixed delay and answers with a fixed message.
// It ignores the task identifier and the configuration content.
type Noop struct {
	delay  time.Duration
	reply  string
	sleep  Sleeper
	schema schema.Schema
}

// NoopOption configures a Noop step.
type NoopOption func(*Noop)

// WithDelay overrides the pause duration.
func WithDelay(d time.Duration) NoopOption {
	return func(n *Noop) {
		n.delay = d
	}
}

// WithSleeper replaces time.Sleep, mostly for tests.
func WithSleeper(s Sleeper) NoopOption {
	return func(n *Noop) {
		n.sleep = s
	}
}

// WithReply overrides the produced message.
func WithReply(reply string) NoopOption {
	return func(n *Noop) {
		n.reply = reply
	}
}

// NewNoop creates the fixed-latency step. It declares no options, so every
// configuration bag is accepted and none of its content reaches the step.
func NewNoop(opts ...NoopOption) *Noop {
	n := &Noop{
		delay:  DefaultDelay,
		reply:  DefaultReply,
		sleep:  time.Sleep,
		schema: schema.Schema{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Noop) Name() string { return NoopName }

func (n *Noop) Schema() schema.Schema { return n.schema }

// Execute blocks for the configured delay. The pause is not interruptible.
func (n *Noop) Execute(_ context.Context, _ domain.State, _ config.RunConfig) (domain.Delta, error) {
	if n.delay > 0 {
		n.sleep(n.delay)
	}
	return domain.Delta{
		Messages: []domain.Message{domain.NewAIMessage(n.reply)},
	}, nil
}
