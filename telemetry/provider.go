package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported when neither the config nor
// OTEL_SERVICE_NAME names the service.
const DefaultServiceName = "resourced"

// ProviderConfig configures the OpenTelemetry provider.
type ProviderConfig struct {
	// ServiceName is the name of the service.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// NodeID identifies the registry node in resource attributes.
	NodeID string

	// Endpoint is the OTLP endpoint (e.g., "localhost:4317").
	// If empty, uses OTEL_EXPORTER_OTLP_ENDPOINT env var.
	Endpoint string

	// Protocol is "grpc" or "http". Default is "grpc".
	Protocol string

	// Insecure disables TLS.
	Insecure bool

	// Debug adds resource labels and addresses to span attributes.
	Debug bool

	// Headers are additional headers to send with requests.
	Headers map[string]string

	// SampleRatio is the fraction of traces kept. Zero means always sample.
	SampleRatio float64

	// BatchTimeout is the maximum time to wait before sending a batch.
	BatchTimeout time.Duration

	// ExportTimeout is the timeout for exporting spans.
	ExportTimeout time.Duration
}

// Provider wraps the OpenTelemetry TracerProvider with cleanup.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer *Tracer
}

// InitProvider initializes OpenTelemetry with the given configuration.
// The returned Provider must be shut down to flush pending spans.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("telemetry endpoint not configured (set endpoint or OTEL_EXPORTER_OTLP_ENDPOINT)")
	}
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.NodeID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.NodeID))
	}
	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	exporter, err := newSpanExporter(ctx, cfg, endpoint)
	if err != nil {
		return nil, err
	}

	batchOpts := []sdktrace.BatchSpanProcessorOption{}
	if cfg.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := NewTracer(serviceName, cfg.Debug)
	SetGlobalTracer(tracer)

	return &Provider{
		tp:     tp,
		tracer: tracer,
	}, nil
}

func newSpanExporter(ctx context.Context, cfg ProviderConfig, endpoint string) (sdktrace.SpanExporter, error) {
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "grpc"
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)

	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(cfg.ExportTimeout))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown protocol: %s (use 'grpc' or 'http')", protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}
	return exporter, nil
}

// Tracer returns the tracer for this provider.
func (p *Provider) Tracer() *Tracer {
	return p.tracer
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// ForceFlush forces a flush of all pending spans.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.tp.ForceFlush(ctx)
}
