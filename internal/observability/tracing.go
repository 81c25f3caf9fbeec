package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/soyeahso/chatconn/internal/config"
)

const tracerName = "github.com/soyeahso/chatconn"

// Span names and attribute keys.
const (
	SpanResolve    = "chatconn.resolve"
	SpanSetConn    = "chatconn.set_connection"
	AttrUserID     = "chatconn.user_id"
	AttrChatID     = "chatconn.chat_id"
	AttrChatKind   = "chatconn.chat_kind"
	AttrSource     = "chatconn.source"
	AttrReason     = "chatconn.reason"
	AttrAdminCheck = "chatconn.admin_checked"
)

// Tracing owns the tracer provider.
type Tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NoopTracing returns a tracer that records nothing.
func NoopTracing() *Tracing {
	return &Tracing{tracer: noop.NewTracerProvider().Tracer(tracerName)}
}

// NewTracing exports spans over OTLP/HTTP when cfg.Enabled, and is a no-op
// otherwise.
func NewTracing(ctx context.Context, cfg config.TracingConfig, version string) (*Tracing, error) {
	if !cfg.Enabled {
		return NoopTracing(), nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "chatconn"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(provider)

	return &Tracing{provider: provider, tracer: provider.Tracer(tracerName)}, nil
}

// WithProvider wraps an existing provider, e.g. one with an in-memory exporter.
func WithProvider(p *sdktrace.TracerProvider) *Tracing {
	return &Tracing{provider: p, tracer: p.Tracer(tracerName)}
}

// Start begins a span. A nil *Tracing uses a no-op tracer.
func (t *Tracing) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return noop.NewTracerProvider().Tracer(tracerName).Start(ctx, name)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
