// Package tracing sets up OpenTelemetry export and records node spans.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span.
const TracerName = "flowbridge"

// Config selects the OTLP/HTTP collector.
type Config struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
}

// InitTracer installs a global tracer provider exporting to cfg.Endpoint.
// The caller shuts the provider down to flush pending spans.
func InitTracer(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// NodeSpan describes a finished node execution.
type NodeSpan struct {
	RunID    string
	NodeID   string
	NodeType string
	Start    time.Time
	End      time.Time
	Failed   bool
	Message  string
}

// RecordNode emits one span covering an already finished node. The span
// uses the node's own timestamps rather than the time of recording.
func RecordNode(ctx context.Context, tp trace.TracerProvider, s NodeSpan) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	_, span := tp.Tracer(TracerName).Start(ctx, "node.execute",
		trace.WithTimestamp(s.Start),
		trace.WithAttributes(
			attribute.String("run.id", s.RunID),
			attribute.String("node.id", s.NodeID),
			attribute.String("node.type", s.NodeType),
		),
	)
	if s.Failed {
		span.SetStatus(codes.Error, s.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(s.End))
}
