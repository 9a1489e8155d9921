package registry

import (
	"fmt"
	"time"

	"github.com/vinayprograms/resourcekit/bus"
	"github.com/vinayprograms/resourcekit/drain"
	"github.com/vinayprograms/resourcekit/health"
	"github.com/vinayprograms/resourcekit/ledger"
	"github.com/vinayprograms/resourcekit/logging"
	"github.com/vinayprograms/resourcekit/resource"
	"github.com/vinayprograms/resourcekit/state"
	"github.com/vinayprograms/resourcekit/telemetry"
)

// Config holds registry dependencies and tunables.
type Config struct {
	// Store persists resources. Required.
	Store state.Store

	// Ledger records every mutation. Required.
	Ledger ledger.Ledger

	// Checker probes resources. Default: TCP connect with a 5s timeout.
	Checker health.Checker

	// Bus, when set, receives every event as JSON.
	Bus bus.Publisher

	// Idle reports whether a draining resource has finished its work.
	// Default: drain.AlwaysIdle
	Idle drain.IdleFunc

	// Logger defaults to a logger writing to stdout.
	Logger *logging.Logger

	// Metrics is optional.
	Metrics *Metrics

	// Tracer defaults to the global telemetry tracer.
	Tracer *telemetry.Tracer

	// KeyPrefix namespaces resource records in the store.
	// Default: "resources."
	KeyPrefix string

	// CheckInterval is the per-resource probe period. Default: 30s
	CheckInterval time.Duration

	// UnhealthyThreshold is the trailing window that flips status.
	// Default: 3
	UnhealthyThreshold int

	// DrainTimeout bounds a non-forced removal. Default: 5m
	DrainTimeout time.Duration

	// DrainPollInterval is how often Idle is consulted. Default: 1s
	DrainPollInterval time.Duration
}

// DefaultConfig returns the tunables with their defaults. Store and Ledger
// must still be set.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:          "resources.",
		CheckInterval:      30 * time.Second,
		UnhealthyThreshold: health.DefaultUnhealthyThreshold,
		DrainTimeout:       5 * time.Minute,
		DrainPollInterval:  time.Second,
	}
}

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.KeyPrefix == "" {
		c.KeyPrefix = def.KeyPrefix
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = def.CheckInterval
	}
	if c.UnhealthyThreshold == 0 {
		c.UnhealthyThreshold = def.UnhealthyThreshold
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = def.DrainTimeout
	}
	if c.DrainPollInterval == 0 {
		c.DrainPollInterval = def.DrainPollInterval
	}
	if c.Checker == nil {
		c.Checker = health.NewTCPChecker(5 * time.Second)
	}
	if c.Idle == nil {
		c.Idle = drain.AlwaysIdle
	}
	if c.Logger == nil {
		c.Logger = logging.New()
	}
	if c.Tracer == nil {
		c.Tracer = telemetry.GetTracer()
	}
	return c
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("registry: store is required")
	}
	if c.Ledger == nil {
		return fmt.Errorf("registry: ledger is required")
	}
	if err := state.ValidateKey(c.KeyPrefix + "x"); err != nil {
		return fmt.Errorf("registry: invalid key prefix %q: %w", c.KeyPrefix, err)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("registry: check interval must be positive")
	}
	if c.UnhealthyThreshold < 1 || c.UnhealthyThreshold > resource.MaxHealthHistory {
		return fmt.Errorf("registry: unhealthy threshold must be between 1 and %d", resource.MaxHealthHistory)
	}
	if c.DrainTimeout <= 0 || c.DrainPollInterval <= 0 {
		return fmt.Errorf("registry: drain timeout and poll interval must be positive")
	}
	return nil
}
