package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/Keksclan/goRawrStash/future"
)

// newTestConfig returns a Config backed by an in-memory span recorder.
func newTestConfig(t *testing.T) (*Config, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	return &Config{TracerProvider: tp}, rec
}

func attr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestSpanEndsWhenFutureCompletes(t *testing.T) {
	cfg, rec := newTestConfig(t)

	_, span := cfg.Start(t.Context(), "rawrstash.get", "profile", "acct-1", AttrHit.Bool(false))
	f := EndWhenDone(span, future.New[string]())
	assert.Empty(t, rec.Ended(), "no span ends while the future is pending")

	f.Resolve("A")

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "rawrstash.get", s.Name())
	assert.Equal(t, trace.SpanKindInternal, s.SpanKind())
	assert.Equal(t, codes.Ok, s.Status().Code)

	v, ok := attr(s, AttrCache)
	require.True(t, ok)
	assert.Equal(t, "profile", v.AsString())
	v, ok = attr(s, AttrKey)
	require.True(t, ok)
	assert.Equal(t, "acct-1", v.AsString())
}

func TestSpanRecordsError(t *testing.T) {
	cfg, rec := newTestConfig(t)

	_, span := cfg.Start(t.Context(), "rawrstash.get", "profile", "acct-1")
	EndWhenDone(span, future.Failed[int](errors.New("upstream down")))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "upstream down", spans[0].Status().Description)
	assert.NotEmpty(t, spans[0].Events(), "the error is recorded as an event")
}

func TestNilConfigUsesGlobalProvider(t *testing.T) {
	var cfg *Config
	_, span := cfg.Start(t.Context(), "op", "c", "k")
	require.NotNil(t, span)
	span.End()
}
