// Package tracing wires OpenTelemetry spans around each object's
// evaluation and each rule's evaluation within it, off by default,
// exported to Jaeger when enabled.
package tracing

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Options configures tracing; EnableJaeger gates exporting entirely so
// tests and batch runs with no collector never attempt a connection.
type Options struct {
	EnableJaeger   bool
	JaegerEndpoint string
}

func newJaegerExporter(endpoint string) (tracesdk.SpanExporter, error) {
	return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
}

// InitTracerProvider returns a no-op provider when tracing is
// disabled, otherwise a provider exporting to opts.JaegerEndpoint.
func InitTracerProvider(log logr.Logger, opts Options) (*tracesdk.TracerProvider, error) {
	if !opts.EnableJaeger {
		tp := tracesdk.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	exp, err := newJaegerExporter(opts.JaegerEndpoint)
	if err != nil {
		log.Error(err, "failed to create jaeger exporter")
		return nil, err
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("tagengine"),
		)),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// Shutdown flushes and closes tp, logging (not returning) any error --
// it runs from a defer at process exit, where there is nothing left to
// hand an error to.
func Shutdown(ctx context.Context, log logr.Logger, tp *tracesdk.TracerProvider) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error(err, "error shutting down tracer provider")
	}
}

// StartObjectSpan opens a span around one object's evaluation, the
// worker-pool-dispatch counterpart of the rule-evaluation spans the
// teacher opens per rule.
func StartObjectSpan(ctx context.Context, objectPath string) (context.Context, trace.Span) {
	return otel.Tracer("").Start(ctx, "evaluate-object", trace.WithAttributes(
		attribute.String("object_path", objectPath),
	))
}

// StartRuleSpan opens a span around one rule's evaluation within an
// object's worklist loop.
func StartRuleSpan(ctx context.Context, ruleRef string) (context.Context, trace.Span) {
	return otel.Tracer("").Start(ctx, "evaluate-rule", trace.WithAttributes(
		attribute.String("rule", ruleRef),
	))
}
