package subcmd

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/resourcekit/bus"
	"github.com/vinayprograms/resourcekit/config"
	"github.com/vinayprograms/resourcekit/errors"
	"github.com/vinayprograms/resourcekit/health"
	"github.com/vinayprograms/resourcekit/logging"
	"github.com/vinayprograms/resourcekit/registry"
	"github.com/vinayprograms/resourcekit/resource"
	"github.com/vinayprograms/resourcekit/shutdown"
	"github.com/vinayprograms/resourcekit/telemetry"
)

func init() {
	RootCmd.AddCommand(NewServeCommand())
}

// NewServeCommand returns the command that runs the registry until signalled.
func NewServeCommand() *cobra.Command {
	serveCmd := &ServeCommand{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the resource registry",
		RunE:  serveCmd.serve,
	}

	cmd.Flags().StringVar(&serveCmd.SeedPath, "seed", "", "JSON file of resource definitions to add at startup")
	cmd.Flags().StringVar(&serveCmd.Actor, "actor", "resourced", "actor recorded for seeded resources")

	return cmd
}

// ServeCommand holds serve flags.
type ServeCommand struct {
	SeedPath string
	Actor    string
}

func (s *ServeCommand) serve(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(globalOpts.ConfigPath, globalOpts.LogLevel)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	coord := shutdown.NewCoordinator(shutdown.Config{
		DefaultTimeout:  30 * time.Second,
		DefaultPhase:    100,
		ContinueOnError: true,
		OnProgress: func(r shutdown.HandlerResult) {
			if r.Err != nil {
				log.Error("shutdown handler failed", map[string]interface{}{"handler": r.Name, "error": r.Err.Error()})
				return
			}
			log.Debug("shutdown handler done", map[string]interface{}{"handler": r.Name, "duration": r.Duration.String()})
		},
	})
	abort := func(err error) error {
		_ = coord.ShutdownWithTimeout(0)
		return err
	}

	tracer := telemetry.NoopTracer()
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: Version,
			NodeID:         cfg.Registry.NodeID,
			Endpoint:       cfg.Telemetry.Endpoint,
			Protocol:       cfg.Telemetry.Protocol,
			Insecure:       cfg.Telemetry.Insecure,
			Debug:          cfg.Telemetry.Debug,
			SampleRatio:    cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		coord.RegisterFuncWithPhase("telemetry", provider.Shutdown, shutdown.PhaseTelemetry)
		tracer = provider.Tracer()
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return abort(fmt.Errorf("open state backend: %w", err))
	}
	coord.RegisterFuncWithPhase("state", func(context.Context) error { return closeStore() }, shutdown.PhaseBackends)

	led, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return abort(fmt.Errorf("open ledger: %w", err))
	}
	coord.RegisterFuncWithPhase("ledger", func(context.Context) error { return closeLedger() }, shutdown.PhaseBackends)

	var publisher bus.Publisher
	eventBus, err := openEventBus(cfg)
	if err != nil {
		return abort(fmt.Errorf("open event bus: %w", err))
	}
	if eventBus != nil {
		publisher = eventBus
		coord.RegisterFuncWithPhase("event-bus", func(context.Context) error { return eventBus.Close() }, shutdown.PhaseEvents)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg, err := registry.New(registry.Config{
		Store:  store,
		Ledger: led,
		Checker: &health.TCPChecker{
			Timeout:      cfg.Health.ProbeTimeout.Duration,
			SkipLoopback: cfg.Health.SkipLoopback,
		},
		Bus:                publisher,
		Logger:             log,
		Metrics:            registry.NewMetrics(promReg),
		Tracer:             tracer,
		KeyPrefix:          cfg.Registry.KeyPrefix,
		CheckInterval:      cfg.Registry.CheckInterval.Duration,
		UnhealthyThreshold: cfg.Registry.UnhealthyThreshold,
		DrainTimeout:       cfg.Registry.DrainTimeout.Duration,
		DrainPollInterval:  cfg.Registry.DrainPollInterval.Duration,
	})
	if err != nil {
		return abort(err)
	}
	promReg.MustRegister(registry.NewStatsCollector(reg))
	coord.RegisterFuncWithPhase("registry", func(context.Context) error {
		reg.Stop()
		return nil
	}, shutdown.PhaseRegistry)

	journalDone, err := startJournal(cfg, reg, log)
	if err != nil {
		return abort(err)
	}
	coord.RegisterFuncWithPhase("journal", func(ctx context.Context) error {
		select {
		case err := <-journalDone:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}, shutdown.PhaseEvents)

	if err := reg.Initialize(ctx); err != nil {
		return abort(fmt.Errorf("initialize registry: %w", err))
	}

	if s.SeedPath != "" {
		if err := seed(ctx, reg, s.SeedPath, registry.Actor(s.Actor), log); err != nil {
			return abort(err)
		}
	}

	if cfg.Metrics.Listen != "" {
		srv := metricsServer(cfg.Metrics, promReg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", map[string]interface{}{"error": err.Error()})
			}
		}()
		coord.RegisterFuncWithPhase("metrics", srv.Shutdown, shutdown.PhaseRegistry)
		log.Info("metrics listening", map[string]interface{}{"addr": cfg.Metrics.Listen, "path": cfg.Metrics.Path})
	}

	stats := reg.GetStats()
	log.Info("registry ready", map[string]interface{}{
		"resources": stats.Total,
		"state":     cfg.State.Backend,
		"ledger":    cfg.Ledger.Backend,
	})

	coord.HandleSignals()
	<-coord.Done()

	if res := coord.Result(); res != nil && res.Failed() {
		return fmt.Errorf("shutdown failed: %v", res.FailedHandlers())
	}
	log.Info("stopped")
	return nil
}

func metricsServer(cfg config.MetricsConfig, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// startJournal copies registry events to the configured exporter until the
// registry stops. The returned channel yields the exporter's close error.
func startJournal(cfg *config.Config, reg *registry.Registry, log *logging.Logger) (<-chan error, error) {
	exporter, err := telemetry.NewExporter(cfg.Events.Journal, cfg.Events.JournalEndpoint)
	if err != nil {
		return nil, fmt.Errorf("event journal: %w", err)
	}

	events := reg.Watch()
	done := make(chan error, 1)
	go func() {
		for ev := range events {
			data, err := eventData(ev)
			if err != nil {
				log.Warn("journal skipped event", map[string]interface{}{"event": string(ev.Type), "error": err.Error()})
				continue
			}
			exporter.LogEvent(string(ev.Type), data)
		}
		done <- exporter.Close()
	}()
	return done, nil
}

func eventData(ev registry.Event) (map[string]interface{}, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// seed adds each definition in the JSON file at path whose name is not
// already registered.
func seed(ctx context.Context, reg *registry.Registry, path string, actor registry.Actor, log *logging.Logger) error {
	defs, err := readDefinitions(path)
	if err != nil {
		return err
	}

	for _, def := range defs {
		if _, ok := reg.GetResourceByName(def.Name); ok {
			log.Debug("seed resource already registered", map[string]interface{}{"name": def.Name})
			continue
		}
		if _, err := reg.AddResource(ctx, def, actor); err != nil {
			if errors.Is(err, errors.ErrCodeDuplicateName) {
				continue
			}
			return fmt.Errorf("seed %q: %w", def.Name, err)
		}
	}
	return nil
}

func readDefinitions(path string) ([]resource.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var defs []resource.Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return defs, nil
}
