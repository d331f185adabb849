// Package telemetry installs the process tracer provider for the jolt CLI.
//
// The session, state and api packages trace through otel.Tracer directly; until
// Init runs with a resolved endpoint those spans go to the global no-op provider.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// ServiceName is the canonical telemetry service name.
	ServiceName = "jolt"
	// DefaultEnvironment is used when no environment variable is configured.
	DefaultEnvironment = "dev"
	// ConsoleEndpoint selects the stderr span exporter instead of OTLP.
	ConsoleEndpoint = "stderr"
	// BatchTimeout configures batch span processor flush interval.
	BatchTimeout = 5 * time.Second
	// BatchSize configures batch span processor max export batch size.
	BatchSize = 512
)

// ServiceVersion is stamped from the CLI version before Init.
var ServiceVersion = "dev"

var (
	exporterFactory  = newExporter
	endpointOverride atomic.Value
)

// Settings is a resolved export target plus the resource identity spans carry.
type Settings struct {
	Endpoint    string
	Environment string
	Version     string
}

// Enabled reports whether spans leave the process at all.
func (s Settings) Enabled() bool {
	return s.Endpoint != ""
}

func (s Settings) resource() *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", s.Version),
		attribute.String("environment", s.Environment),
	)
}

// Resolve picks the endpoint in order SetEndpointOverride (the --otel-endpoint
// flag), OTEL_EXPORTER_OTLP_ENDPOINT, then the configured [otel] endpoint.
func Resolve(configured string) Settings {
	endpoint := loadEndpointOverride()
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	if endpoint == "" {
		endpoint = strings.TrimSpace(configured)
	}

	version := strings.TrimSpace(ServiceVersion)
	if version == "" {
		version = "dev"
	}
	return Settings{
		Endpoint:    endpoint,
		Environment: resolveEnvironment(),
		Version:     version,
	}
}

// Init installs a batching tracer provider for the resolved settings. With no
// endpoint it installs nothing and returns a no-op shutdown.
func Init(ctx context.Context, configured string) (func(), error) {
	settings := Resolve(configured)
	if !settings.Enabled() {
		return func() {}, nil
	}

	exporter, err := exporterFactory(ctx, settings.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("create span exporter for %s: %w", settings.Endpoint, err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(settings.resource()),
		sdktrace.WithBatcher(
			exporter,
			sdktrace.WithBatchTimeout(BatchTimeout),
			sdktrace.WithMaxExportBatchSize(BatchSize),
		),
	)
	otel.SetTracerProvider(provider)

	var once sync.Once
	return func() {
		once.Do(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), BatchTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				otel.Handle(err)
			}
		})
	}, nil
}

// SetEndpointOverride sets a process-local endpoint that wins over env and config.
func SetEndpointOverride(endpoint string) {
	endpointOverride.Store(strings.TrimSpace(endpoint))
}

func loadEndpointOverride() string {
	value, _ := endpointOverride.Load().(string)
	return value
}

// newExporter accepts ConsoleEndpoint or an absolute http(s) collector URL.
// TLS material and headers come from the standard OTEL_EXPORTER_OTLP_* variables.
func newExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	if endpoint == ConsoleEndpoint {
		return &consoleExporter{out: os.Stderr}, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("endpoint %q must be %q or an http(s) URL", endpoint, ConsoleEndpoint)
	}
	return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
}

func resolveEnvironment() string {
	for _, key := range []string{"JOLT_ENV", "ENVIRONMENT", "ENV"} {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return strings.ToLower(value)
		}
	}
	return DefaultEnvironment
}

// consoleExporter prints one line per span with its attributes, then its events.
type consoleExporter struct {
	mu  sync.Mutex
	out io.Writer
}

func (e *consoleExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, span := range spans {
		var line strings.Builder
		fmt.Fprintf(&line, "span %s %s %s",
			span.Name(),
			span.EndTime().Sub(span.StartTime()).Round(time.Millisecond),
			strings.ToLower(span.Status().Code.String()),
		)
		for _, kv := range span.Attributes() {
			fmt.Fprintf(&line, " %s=%s", kv.Key, kv.Value.Emit())
		}
		if desc := span.Status().Description; desc != "" {
			fmt.Fprintf(&line, " error=%q", desc)
		}
		line.WriteByte('\n')
		for _, event := range span.Events() {
			fmt.Fprintf(&line, "  event %s\n", event.Name)
		}
		if _, err := io.WriteString(e.out, line.String()); err != nil {
			return err
		}
	}
	return nil
}

func (e *consoleExporter) Shutdown(context.Context) error { return nil }

func setExporterFactoryForTest(factory func(context.Context, string) (sdktrace.SpanExporter, error)) func() {
	previous := exporterFactory
	exporterFactory = factory
	return func() {
		exporterFactory = previous
	}
}

func setEndpointOverrideForTest(value string) func() {
	previous := loadEndpointOverride()
	SetEndpointOverride(value)
	return func() {
		SetEndpointOverride(previous)
	}
}
