// Package telemetry exports registry traces over OTLP and registry events
// to an append-only journal.
package telemetry

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with registry-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include labels and addresses in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return NoopTracer()
	}
	return globalTracer
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
}

// NewTracer creates a new tracer with the given name.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer bound to a specific provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Registry Spans ---

// OperationSpanOptions describes the outcome of a registry mutation.
type OperationSpanOptions struct {
	ResourceID string
	Name       string
	Type       string
	Actor      string
	FromStatus string
	ToStatus   string
	Force      bool
	Labels     map[string]string // Only included if debug=true
	Address    string            // Only included if debug=true
}

// StartOperationSpan starts a span for a registry mutation such as
// "add" or "remove".
func (t *Tracer) StartOperationSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "registry."+op, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("registry.operation", op))
	return ctx, span
}

// EndOperationSpan ends a registry span with attributes.
func (t *Tracer) EndOperationSpan(span trace.Span, opts OperationSpanOptions, err error) {
	attrs := []attribute.KeyValue{}
	if opts.ResourceID != "" {
		attrs = append(attrs, attribute.String("resource.id", opts.ResourceID))
	}
	if opts.Name != "" {
		attrs = append(attrs, attribute.String("resource.name", opts.Name))
	}
	if opts.Type != "" {
		attrs = append(attrs, attribute.String("resource.type", opts.Type))
	}
	if opts.Actor != "" {
		attrs = append(attrs, attribute.String("registry.actor", opts.Actor))
	}
	if opts.FromStatus != "" || opts.ToStatus != "" {
		attrs = append(attrs,
			attribute.String("resource.status.from", opts.FromStatus),
			attribute.String("resource.status.to", opts.ToStatus),
		)
	}
	if opts.Force {
		attrs = append(attrs, attribute.Bool("registry.force", true))
	}

	if t.debug {
		if opts.Address != "" {
			attrs = append(attrs, attribute.String("resource.address", opts.Address))
		}
		if len(opts.Labels) > 0 {
			attrs = append(attrs, attribute.StringSlice("resource.labels", labelPairs(opts.Labels)))
		}
	}

	span.SetAttributes(attrs...)
	endSpan(span, err)
}

// --- Health Spans ---

// ProbeSpanOptions describes a single health probe.
type ProbeSpanOptions struct {
	ResourceID string
	Healthy    bool
	LatencyMS  float64
	Reason     string
	Address    string // Only included if debug=true
}

// StartProbeSpan starts a span for a health probe.
func (t *Tracer) StartProbeSpan(ctx context.Context, resourceID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "health.probe", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("resource.id", resourceID))
	return ctx, span
}

// EndProbeSpan ends a probe span. An unhealthy result is not a span error.
func (t *Tracer) EndProbeSpan(span trace.Span, opts ProbeSpanOptions) {
	attrs := []attribute.KeyValue{
		attribute.Bool("health.healthy", opts.Healthy),
		attribute.Float64("health.latency_ms", opts.LatencyMS),
	}
	if opts.Reason != "" {
		attrs = append(attrs, attribute.String("health.reason", truncate(opts.Reason, 500)))
	}
	if t.debug && opts.Address != "" {
		attrs = append(attrs, attribute.String("resource.address", opts.Address))
	}
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
	span.End()
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier for cross-process propagation.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// MapCarrier is a simple map-based TextMapCarrier for context propagation.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// --- Helpers ---

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func labelPairs(labels map[string]string) []string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(s[:maxLen]) + "..."
}
