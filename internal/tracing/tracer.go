// Package tracing records experiment runs, trials and waits as OpenTelemetry
// spans so a run's timeline can be inspected after the fact.
package tracing

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName identifies arena in exported traces.
const DefaultServiceName = "arena"

// Exporter names accepted in Config.Exporter.
const (
	ExporterNone   = "none"
	ExporterFile   = "file"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

const otlpConnectTimeout = 5 * time.Second

// Config configures the tracing subsystem.
type Config struct {
	// Enabled controls whether tracing is active; when false a no-op tracer is used.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Exporter selects the backend: "none", "file", "stdout" or "otlp".
	Exporter string `mapstructure:"exporter" yaml:"exporter"`

	// FilePath is the JSONL output for the "file" exporter.
	FilePath string `mapstructure:"file_path" yaml:"file_path"`

	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName  string  `mapstructure:"service_name" yaml:"service_name"`
}

// DefaultConfig returns tracing disabled, ready to write JSONL when enabled.
func DefaultConfig() Config {
	return Config{
		Exporter:     ExporterFile,
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
		ServiceName:  DefaultServiceName,
	}
}

// Provider owns the SDK tracer provider of one arena process.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewProvider builds a provider from cfg. Disabled configs get a no-op tracer.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(DefaultServiceName)}, nil
	}

	serviceName := cmp.Or(cfg.ServiceName, DefaultServiceName)
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(rigResource(serviceName)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	}

	switch cfg.Exporter {
	case ExporterFile:
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file_path required for file exporter")
		}
		exp, err := NewFileExporter(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("create file exporter: %w", err)
		}
		// Each span is written as it ends so an interrupted run keeps its timeline.
		opts = append(opts, sdktrace.WithSyncer(exp))
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithSyncer(exp))
	case ExporterOTLP:
		ctx, cancel := context.WithTimeout(context.Background(), otlpConnectTimeout)
		defer cancel()
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cmp.Or(cfg.OTLPEndpoint, "localhost:4317")),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case ExporterNone, "":
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	return &Provider{provider: provider, tracer: provider.Tracer(serviceName)}, nil
}

// rigResource tags spans with the service and the host running the rig.
func rigResource(serviceName string) *resource.Resource {
	attrs := []attribute.KeyValue{attribute.String("service.name", serviceName)}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, attribute.String("host.name", host))
	}
	return resource.NewSchemaless(attrs...)
}

// Tracer returns the tracer; never nil.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool {
	return p.provider != nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
