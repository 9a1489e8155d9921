package shutdown

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed during shutdown.
	ErrHandlerFailed = errors.New("one or more handlers failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Phases used by resourced.
const (
	PhaseRegistry  = 10
	PhaseEvents    = 20
	PhaseBackends  = 30
	PhaseTelemetry = 40
)

// Handler is implemented by components that need graceful shutdown.
// The context is cancelled when the shutdown timeout is reached.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult contains the result of a single handler's shutdown.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result contains the complete shutdown result.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult

	// Err is nil if every handler succeeded.
	Err error
}

// Failed returns true if any handler failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the shutdown coordinator.
type Config struct {
	// DefaultTimeout bounds shutdowns triggered by signals or
	// ShutdownWithTimeout(0). Default: 30 seconds.
	DefaultTimeout time.Duration

	// DefaultPhase is assigned by Register. Default: 100.
	DefaultPhase int

	// ContinueOnError runs later phases after a handler fails.
	ContinueOnError bool

	// OnProgress is called as each handler completes.
	OnProgress func(result HandlerResult)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultTimeout < 0 || c.DefaultPhase < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:  30 * time.Second,
		DefaultPhase:    100,
		ContinueOnError: true,
	}
}

type registration struct {
	name    string
	handler Handler
	phase   int
}
