// Package drain coordinates the bounded wait between a resource entering
// draining and its teardown.
//
// Concurrent waits for the same resource id share one timer and one
// outcome, and the teardown callback runs at most once per wait.
package drain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrTimeout is returned when active work did not reach zero in time.
var ErrTimeout = errors.New("drain timeout exceeded")

// IdleFunc reports whether a resource has no outstanding work.
type IdleFunc func(ctx context.Context, id string) (bool, error)

// AlwaysIdle reports every resource idle. It is the default predicate when
// the embedding system tracks no work.
func AlwaysIdle(context.Context, string) (bool, error) {
	return true, nil
}

// Config holds coordinator settings.
type Config struct {
	// Timeout bounds each wait. Default: 5m
	Timeout time.Duration

	// PollInterval is how often Idle is consulted. Default: 1s
	PollInterval time.Duration

	// Idle is the active-work predicate. Default: AlwaysIdle
	Idle IdleFunc
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      5 * time.Minute,
		PollInterval: time.Second,
		Idle:         AlwaysIdle,
	}
}

// Coordinator collapses concurrent drain waits per resource id.
type Coordinator struct {
	cfg   Config
	group singleflight.Group

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewCoordinator creates a coordinator, filling unset fields from DefaultConfig.
func NewCoordinator(cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Idle == nil {
		cfg.Idle = def.Idle
	}
	return &Coordinator{cfg: cfg, pending: make(map[string]struct{})}
}

// Timeout returns the configured wait bound.
func (c *Coordinator) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Await waits for id to go idle and then runs onDrained. Callers arriving
// while a wait for id is in flight join it: they get the same result and
// onDrained is not run again. The shared wait is detached from any single
// caller's cancellation; a caller whose ctx ends stops waiting on its own.
func (c *Coordinator) Await(ctx context.Context, id string, onDrained func(context.Context) error) error {
	return c.Run(ctx, id, nil, onDrained)
}

// Run is Await with a begin step that runs once per flight before the
// wait, such as moving the resource to draining. A begin error ends the
// flight and is returned to every caller that joined it.
func (c *Coordinator) Run(ctx context.Context, id string, begin, onDrained func(context.Context) error) error {
	ch := c.group.DoChan(id, func() (interface{}, error) {
		c.setPending(id, true)
		defer c.setPending(id, false)

		flightCtx := context.WithoutCancel(ctx)
		if begin != nil {
			if err := begin(flightCtx); err != nil {
				return nil, err
			}
		}
		if err := c.wait(flightCtx, id); err != nil {
			return nil, err
		}
		if onDrained == nil {
			return nil, nil
		}
		return nil, onDrained(flightCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait polls Idle until it reports true or Timeout elapses.
func (c *Coordinator) wait(ctx context.Context, id string) error {
	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		idle, err := c.cfg.Idle(ctx, id)
		if err == nil && idle {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-timer.C:
			if lastErr != nil {
				return fmt.Errorf("%w after %s (last check: %v)", ErrTimeout, c.cfg.Timeout, lastErr)
			}
			return fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) setPending(id string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.pending[id] = struct{}{}
	} else {
		delete(c.pending, id)
	}
}

// Pending reports whether a wait for id is in flight.
func (c *Coordinator) Pending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}
