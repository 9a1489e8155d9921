package registry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vinayprograms/resourcekit/errors"
	"github.com/vinayprograms/resourcekit/resource"
)

const namespace = "resourcekit"

// Metrics holds the registry's Prometheus instruments.
type Metrics struct {
	checkLatency  *prometheus.HistogramVec
	checks        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	drainTimeouts prometheus.Counter
	events        *prometheus.CounterVec
	operations    *prometheus.CounterVec
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checkLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "check_duration_seconds",
				Help:      "Latency of resource health probes.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"type"},
		),
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "checks_total",
				Help:      "Health probes by resource type and result.",
			},
			[]string{"type", "result"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "status_transitions_total",
				Help:      "Committed resource status transitions.",
			},
			[]string{"from", "to"},
		),
		drainTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "drain_timeouts_total",
				Help:      "Removals that failed because the resource did not drain in time.",
			},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "events_total",
				Help:      "Emitted registry events by event and kind.",
			},
			[]string{"event", "kind"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "operations_total",
				Help:      "Registry operations by name and result code.",
			},
			[]string{"op", "code"},
		),
	}

	reg.MustRegister(m.checkLatency, m.checks, m.transitions, m.drainTimeouts, m.events, m.operations)
	return m
}

func (m *Metrics) observeCheck(typ resource.Type, result resource.HealthCheckResult) {
	m.checkLatency.WithLabelValues(string(typ)).Observe(result.LatencyMS / 1000)
	outcome := "healthy"
	if !result.Healthy {
		outcome = "unhealthy"
	}
	m.checks.WithLabelValues(string(typ), outcome).Inc()
}

func (m *Metrics) observeTransition(from, to resource.Status) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) observeEvent(ev Event) {
	m.events.WithLabelValues(string(ev.Type), string(ev.Kind)).Inc()
}

func (m *Metrics) observeOperation(op string, err error) {
	code := "OK"
	if err != nil {
		code = string(errors.CodeOf(err))
		if code == "" {
			code = string(errors.ErrCodeInternal)
		}
	}
	m.operations.WithLabelValues(op, code).Inc()
}

var (
	descResources = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "registry", "resources"),
		"Registered resources by type and status.",
		[]string{"type", "status"}, nil,
	)
	descCPUCores = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "registry", "cpu_cores"),
		"Summed CPU cores across registered resources.",
		nil, nil,
	)
	descMemoryGB = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "registry", "memory_gb"),
		"Summed memory in GB across registered resources.",
		nil, nil,
	)
	descAvailableWorkers = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "registry", "available_workers"),
		"Online workers.",
		nil, nil,
	)
)

type statsCollector struct {
	reg *Registry
}

var _ prometheus.Collector = &statsCollector{}

// NewStatsCollector exposes GetStats as gauges computed at scrape time.
func NewStatsCollector(reg *Registry) prometheus.Collector {
	return &statsCollector{reg: reg}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descResources
	ch <- descCPUCores
	ch <- descMemoryGB
	ch <- descAvailableWorkers
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	counts := make(map[[2]string]int)
	for item := range c.reg.entries.IterBuffered() {
		res := item.Val.load()
		counts[[2]string{string(res.Type), string(res.Status)}]++
	}
	for _, t := range resource.Types() {
		for _, s := range resource.Statuses() {
			ch <- prometheus.MustNewConstMetric(
				descResources,
				prometheus.GaugeValue,
				float64(counts[[2]string{string(t), string(s)}]),
				string(t), string(s),
			)
		}
	}

	stats := c.reg.GetStats()
	ch <- prometheus.MustNewConstMetric(descCPUCores, prometheus.GaugeValue, float64(stats.CPUCores))
	ch <- prometheus.MustNewConstMetric(descMemoryGB, prometheus.GaugeValue, stats.MemoryGB)
	ch <- prometheus.MustNewConstMetric(descAvailableWorkers, prometheus.GaugeValue, float64(stats.AvailableWorkers))
}
