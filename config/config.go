// Package config loads resourced.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/resourcekit/resource"
)

// FileName is the configuration file searched for by LoadDefault.
const FileName = "resourced.toml"

// Backend names.
const (
	BackendMemory   = "memory"
	BackendNATS     = "nats"
	BackendEtcd     = "etcd"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Duration is a time.Duration written as a string ("30s", "5m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full daemon configuration.
type Config struct {
	Registry  RegistryConfig  `toml:"registry"`
	Health    HealthConfig    `toml:"health"`
	State     StateConfig     `toml:"state"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Events    EventsConfig    `toml:"events"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Log       LogConfig       `toml:"log"`
}

// RegistryConfig holds registry tunables.
type RegistryConfig struct {
	NodeID             string   `toml:"node_id"`
	KeyPrefix          string   `toml:"key_prefix"`
	CheckInterval      Duration `toml:"check_interval"`
	UnhealthyThreshold int      `toml:"unhealthy_threshold"`
	DrainTimeout       Duration `toml:"drain_timeout"`
	DrainPollInterval  Duration `toml:"drain_poll_interval"`
}

// HealthConfig configures the TCP probe.
type HealthConfig struct {
	ProbeTimeout Duration `toml:"probe_timeout"`
	SkipLoopback bool     `toml:"skip_loopback"`
}

// StateConfig selects and configures the state backend.
type StateConfig struct {
	Backend string      `toml:"backend"`
	NATS    NATSConfig  `toml:"nats"`
	Etcd    EtcdConfig  `toml:"etcd"`
	Redis   RedisConfig `toml:"redis"`
}

// NATSConfig configures the JetStream KV backend.
type NATSConfig struct {
	URL      string `toml:"url"`
	Bucket   string `toml:"bucket"`
	Replicas int    `toml:"replicas"`
}

// EtcdConfig configures the etcd backend.
type EtcdConfig struct {
	Endpoints   []string `toml:"endpoints"`
	DialTimeout Duration `toml:"dial_timeout"`
	Namespace   string   `toml:"namespace"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	Namespace string `toml:"namespace"`
}

// LedgerConfig selects the audit ledger.
type LedgerConfig struct {
	Backend string `toml:"backend"`
	DSN     string `toml:"dsn"`
	Table   string `toml:"table"`
}

// EventsConfig configures event fan-out beyond in-process watchers.
type EventsConfig struct {
	// NATSURL publishes registry events on NATS when set.
	NATSURL string `toml:"nats_url"`

	// Journal is "file", "http" or empty.
	Journal         string `toml:"journal"`
	JournalEndpoint string `toml:"journal_endpoint"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	Protocol    string  `toml:"protocol"`
	Insecure    bool    `toml:"insecure"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio"`
	Debug       bool    `toml:"debug"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `toml:"listen"`
	Path   string `toml:"path"`
}

// LogConfig configures console logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			KeyPrefix:          "resources.",
			CheckInterval:      Duration{30 * time.Second},
			UnhealthyThreshold: 3,
			DrainTimeout:       Duration{5 * time.Minute},
			DrainPollInterval:  Duration{time.Second},
		},
		Health: HealthConfig{
			ProbeTimeout: Duration{5 * time.Second},
		},
		State: StateConfig{
			Backend: BackendMemory,
			NATS: NATSConfig{
				URL:      "nats://127.0.0.1:4222",
				Bucket:   "resources",
				Replicas: 1,
			},
			Etcd: EtcdConfig{
				Endpoints:   []string{"127.0.0.1:2379"},
				DialTimeout: Duration{5 * time.Second},
				Namespace:   "/resourcekit/",
			},
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				Namespace: "resourcekit:",
			},
		},
		Ledger: LedgerConfig{
			Backend: BackendMemory,
			Table:   "resource_ledger",
		},
		Telemetry: TelemetryConfig{
			Protocol: "grpc",
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
			Path:   "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// StandardPaths returns the config file locations in order of priority.
func StandardPaths() []string {
	paths := []string{FileName}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "resourced", FileName))
	}

	paths = append(paths, filepath.Join("/etc", "resourced", FileName))
	return paths
}

// Load reads path over the defaults and validates the result. Unknown
// keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads the first config file found in StandardPaths. With no
// file present it returns the defaults and an empty path.
func LoadDefault() (*Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := Load(path)
		if err != nil {
			return nil, path, err
		}
		return cfg, path, nil
	}
	return Default(), "", nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	r := c.Registry
	if r.KeyPrefix == "" {
		return fmt.Errorf("registry.key_prefix is required")
	}
	if r.CheckInterval.Duration <= 0 {
		return fmt.Errorf("registry.check_interval must be positive")
	}
	if r.UnhealthyThreshold < 1 || r.UnhealthyThreshold > resource.MaxHealthHistory {
		return fmt.Errorf("registry.unhealthy_threshold must be between 1 and %d", resource.MaxHealthHistory)
	}
	if r.DrainTimeout.Duration <= 0 {
		return fmt.Errorf("registry.drain_timeout must be positive")
	}
	if r.DrainPollInterval.Duration <= 0 || r.DrainPollInterval.Duration > r.DrainTimeout.Duration {
		return fmt.Errorf("registry.drain_poll_interval must be positive and no longer than drain_timeout")
	}
	if c.Health.ProbeTimeout.Duration <= 0 {
		return fmt.Errorf("health.probe_timeout must be positive")
	}

	switch c.State.Backend {
	case BackendMemory:
	case BackendNATS:
		if c.State.NATS.URL == "" {
			return fmt.Errorf("state.nats.url is required for the nats backend")
		}
	case BackendEtcd:
		if len(c.State.Etcd.Endpoints) == 0 {
			return fmt.Errorf("state.etcd.endpoints is required for the etcd backend")
		}
	case BackendRedis:
		if c.State.Redis.Addr == "" {
			return fmt.Errorf("state.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown state.backend %q", c.State.Backend)
	}

	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown ledger.backend %q", c.Ledger.Backend)
	}

	switch c.Events.Journal {
	case "", "noop":
	case "file", "http":
		if c.Events.JournalEndpoint == "" {
			return fmt.Errorf("events.journal_endpoint is required for the %s journal", c.Events.Journal)
		}
	default:
		return fmt.Errorf("unknown events.journal %q", c.Events.Journal)
	}

	if c.Metrics.Listen != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}
