package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/soyeahso/chatconn/internal/config"
	"github.com/soyeahso/chatconn/internal/domain"
)

func TestMetrics_ObserveOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveOutcome(domain.Resolved(domain.Target{Source: domain.SourceCache}), time.Millisecond)
	m.ObserveOutcome(domain.Resolved(domain.Target{Source: domain.SourceCache}), time.Millisecond)
	m.ObserveOutcome(domain.Refused(domain.ReasonNotInChat), time.Millisecond)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.Error("store")
	m.Change("connect")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolutions.WithLabelValues("cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refusals.WithLabelValues("not_in_chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("store")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changes.WithLabelValues("connect")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOutcome(domain.Refused(domain.ReasonMustBeAdmin), time.Second)
	m.CacheLookup(true)
	m.Error("cache")
	m.Change("disconnect")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.CacheLookup(true)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chatconn_cache_lookups_total{result="hit"} 1`)
}

func TestTracing_Disabled(t *testing.T) {
	tr, err := NewTracing(context.Background(), config.TracingConfig{}, "dev")
	require.NoError(t, err)

	_, span := tr.Start(context.Background(), SpanResolve)
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tr.Shutdown(context.Background()))

	var none *Tracing
	_, span = none.Start(context.Background(), SpanResolve)
	span.End()
	assert.NoError(t, none.Shutdown(context.Background()))
}

func TestTracing_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tr := WithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	_, span := tr.Start(context.Background(), SpanResolve, attribute.Int64(AttrUserID, 7))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, SpanResolve, ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.Int64(AttrUserID, 7))
	require.NoError(t, tr.Shutdown(context.Background()))
}
