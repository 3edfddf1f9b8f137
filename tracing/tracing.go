// Package tracing wraps cache access in OpenTelemetry spans. A span is
// started when a call enters the cache layer and ended when the deferred
// value it returned completes, so the span covers the whole asynchronous
// load and not just the synchronous part of the call.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Keksclan/goRawrStash/future"
)

// InstrumentationName identifies the spans produced by this module.
const InstrumentationName = "github.com/Keksclan/goRawrStash"

// Attribute keys set on cache spans.
const (
	AttrCache     = attribute.Key("rawrstash.cache")
	AttrKey       = attribute.Key("rawrstash.key")
	AttrHit       = attribute.Key("rawrstash.hit")
	AttrSkipCache = attribute.Key("rawrstash.skip_cache")
	AttrSkipWrite = attribute.Key("rawrstash.skip_write")
	AttrStale     = attribute.Key("rawrstash.stale")
)

// Config holds the OpenTelemetry configuration of the cache layer.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider
}

// Tracer returns the configured [trace.Tracer]. A nil Config uses the
// global provider.
func (c *Config) Tracer() trace.Tracer {
	var tp trace.TracerProvider
	if c != nil {
		tp = c.TracerProvider
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// Start opens an internal span named op for an access to key in cache.
func (c *Config) Start(ctx context.Context, op, cache, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.Tracer().Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append([]attribute.KeyValue{AttrCache.String(cache), AttrKey.String(key)}, attrs...)...),
	)
}

// EndWhenDone ends span once f completes, recording its outcome, and
// returns f for chaining.
func EndWhenDone[V any](span trace.Span, f *future.Future[V]) *future.Future[V] {
	f.OnComplete(func(_ V, err error) {
		recordStatus(span, err)
		span.End()
	})
	return f
}

// recordStatus sets the span status from the outcome of a call.
func recordStatus(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
