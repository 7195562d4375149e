package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultServiceName = "rapidimg"

var (
	ErrUnknownExporter = errors.New("unsupported trace exporter")
	ErrMissingEndpoint = errors.New("otlp trace exporter requires an endpoint")
)

type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Exporter       string
	OTLPEndpoint   string
	OTLPInsecure   bool
	// Writer receives spans of the stdout exporter. Defaults to os.Stderr
	// so per-item console lines on stdout stay clean.
	Writer io.Writer
}

type exporterKind string

const (
	exporterNone   exporterKind = "none"
	exporterStdout exporterKind = "stdout"
	exporterOTLP   exporterKind = "otlp"
)

func parseExporter(raw string) (exporterKind, error) {
	switch kind := exporterKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case "", exporterNone:
		return exporterNone, nil
	case exporterStdout, exporterOTLP:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownExporter, raw)
	}
}

// SetupTracing installs a global tracer provider for the run. The returned
// function flushes pending spans and must be called before exit.
func SetupTracing(ctx context.Context, cfg TraceConfig, logger *log.Logger) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	kind, err := parseExporter(cfg.Exporter)
	if err != nil {
		return nil, err
	}
	if kind == exporterNone {
		logf(logger, "tracing exporter disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, kind, cfg)
	if err != nil {
		return nil, err
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	// A CLI run is short; stdout spans are written as they end.
	spanProcessor := sdktrace.WithBatcher(exp)
	if kind == exporterStdout {
		spanProcessor = sdktrace.WithSyncer(exp)
	}
	tp := sdktrace.NewTracerProvider(spanProcessor, sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	logf(logger, "tracing exporter enabled type=%s service=%s", kind, serviceName(cfg))
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, kind exporterKind, cfg TraceConfig) (sdktrace.SpanExporter, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch kind {
	case exporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case exporterOTLP:
		endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
		if endpoint == "" {
			return nil, ErrMissingEndpoint
		}
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err = otlptracehttp.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s trace exporter: %w", kind, err)
	}
	return exp, nil
}

// newResource describes the process. Attributes are schemaless so they
// merge with resource.Default whatever semconv version it was built with.
func newResource(cfg TraceConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName(cfg))}
	if v := strings.TrimSpace(cfg.ServiceVersion); v != "" {
		attrs = append(attrs, semconv.ServiceVersion(v))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}
	return res, nil
}

func serviceName(cfg TraceConfig) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return defaultServiceName
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
