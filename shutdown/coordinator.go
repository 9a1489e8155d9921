package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Coordinator runs registered handlers phase by phase, once.
type Coordinator struct {
	config Config

	mu       sync.Mutex
	handlers []registration

	started atomic.Bool
	done    chan struct{}
	err     error
	result  *Result

	signals chan os.Signal
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(config Config) *Coordinator {
	defaults := DefaultConfig()
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = defaults.DefaultTimeout
	}
	if config.DefaultPhase == 0 {
		config.DefaultPhase = defaults.DefaultPhase
	}

	return &Coordinator{
		config:  config,
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}
}

// Register adds a handler in the default phase.
func (c *Coordinator) Register(name string, handler Handler) {
	c.RegisterWithPhase(name, handler, c.config.DefaultPhase)
}

// RegisterWithPhase adds a handler with a specific phase.
// Registrations after Shutdown has begun do not join that shutdown.
func (c *Coordinator) RegisterWithPhase(name string, handler Handler, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = append(c.handlers, registration{
		name:    name,
		handler: handler,
		phase:   phase,
	})
}

// RegisterFunc registers a function in the default phase.
func (c *Coordinator) RegisterFunc(name string, fn func(ctx context.Context) error) {
	c.Register(name, HandlerFunc(fn))
}

// RegisterFuncWithPhase registers a function with a phase.
func (c *Coordinator) RegisterFuncWithPhase(name string, fn func(ctx context.Context) error, phase int) {
	c.RegisterWithPhase(name, HandlerFunc(fn), phase)
}

// Shutdown runs every handler. A second call returns ErrAlreadyShutdown
// without waiting; use Done to wait for the first.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyShutdown
	}

	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	c.result = c.run(ctx, handlers)
	c.err = c.result.Err
	close(c.done)
	return c.err
}

// ShutdownWithTimeout runs Shutdown bounded by timeout, or by the
// configured default when timeout is zero.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout == 0 {
		timeout = c.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals shuts down on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case <-c.signals:
			_ = c.ShutdownWithTimeout(c.config.DefaultTimeout)
		case <-c.done:
		}
		signal.Stop(c.signals)
	}()
}

// Trigger simulates a termination signal.
func (c *Coordinator) Trigger() {
	select {
	case c.signals <- syscall.SIGTERM:
	default:
	}
}

// Done returns a channel that is closed when shutdown is complete.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown error once Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Result returns the detailed shutdown result once Done is closed.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context, handlers []registration) *Result {
	start := time.Now()
	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	result := &Result{Results: make([]HandlerResult, 0, len(handlers))}
	finish := func(err error) *Result {
		result.Err = err
		result.TotalDuration = time.Since(start)
		return result
	}

	var overall error
	for _, group := range groupByPhase(handlers) {
		if ctx.Err() != nil {
			return finish(ErrTimeout)
		}

		phaseResults := c.runPhase(ctx, group)
		result.Results = append(result.Results, phaseResults...)

		for _, hr := range phaseResults {
			if hr.Err == nil {
				continue
			}
			overall = ErrHandlerFailed
			if !c.config.ContinueOnError {
				return finish(overall)
			}
		}
	}
	return finish(overall)
}

func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var wg sync.WaitGroup

	for i, reg := range group {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()

			start := time.Now()
			err := r.handler.OnShutdown(ctx)
			hr := HandlerResult{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(start),
				Err:      err,
			}
			results[idx] = hr

			if c.config.OnProgress != nil {
				c.config.OnProgress(hr)
			}
		}(i, reg)
	}

	wg.Wait()
	return results
}

// groupByPhase splits handlers, already sorted by phase, into phase groups.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i, h := range handlers {
		if i == 0 || h.phase != handlers[i-1].phase {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], h)
	}
	return groups
}
