// Package observe provides application-wide observability primitives for
// Daybook: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Daybook metrics.
const meterName = "github.com/mirevald/daybook"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ParseDuration tracks NLP extractor latency.
	ParseDuration metric.Float64Histogram

	// DispatchDuration tracks end-to-end assistant dispatch latency. Use with
	// attribute: attribute.String("source", "nlp"|"ai").
	DispatchDuration metric.Float64Histogram

	// StoreOpDuration tracks store operation latency. Use with attribute:
	//   attribute.String("op", ...)
	StoreOpDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool execution latency (builtin and MCP).
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// DispatchRequests counts assistant turns. Use with attributes:
	//   attribute.String("source", ...), attribute.String("intent", ...), attribute.String("status", ...)
	DispatchRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// BridgeFrames counts audio bridge frames. Use with attributes:
	//   attribute.String("direction", "client"|"upstream"), attribute.String("type", ...)
	BridgeFrames metric.Int64Counter

	// SessionRenewals counts upstream session renewals by the bridge.
	SessionRenewals metric.Int64Counter

	// RateLimitHits counts connections rejected by the bridge rate limiter.
	RateLimitHits metric.Int64Counter

	// MemoryCacheLookups counts memory-service cache lookups. Use with
	// attributes:
	//   attribute.String("cache", ...), attribute.String("result", "hit"|"miss")
	MemoryCacheLookups metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live audio bridge sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveUpstreams tracks the number of open upstream speech sockets.
	ActiveUpstreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for request-pipeline latencies.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ParseDuration, err = m.Float64Histogram("daybook.nlp.parse.duration",
		metric.WithDescription("Latency of NLP intent/entity extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("daybook.assistant.dispatch.duration",
		metric.WithDescription("End-to-end assistant dispatch latency by source."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StoreOpDuration, err = m.Float64Histogram("daybook.store.op.duration",
		metric.WithDescription("Latency of calendar/memory store operations by op."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("daybook.tool_execution.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.DispatchRequests, err = m.Int64Counter("daybook.assistant.requests",
		metric.WithDescription("Total assistant turns by source, intent, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("daybook.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.BridgeFrames, err = m.Int64Counter("daybook.bridge.frames",
		metric.WithDescription("Total audio bridge frames by direction and type."),
	); err != nil {
		return nil, err
	}
	if met.SessionRenewals, err = m.Int64Counter("daybook.bridge.renewals",
		metric.WithDescription("Total upstream session renewals."),
	); err != nil {
		return nil, err
	}
	if met.RateLimitHits, err = m.Int64Counter("daybook.bridge.rate_limit_hits",
		metric.WithDescription("Total connections rejected by the rate limiter."),
	); err != nil {
		return nil, err
	}
	if met.MemoryCacheLookups, err = m.Int64Counter("daybook.memory.cache.lookups",
		metric.WithDescription("Memory service cache lookups by cache and result."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("daybook.bridge.active_sessions",
		metric.WithDescription("Number of live audio bridge sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveUpstreams, err = m.Int64UpDownCounter("daybook.bridge.active_upstreams",
		metric.WithDescription("Number of open upstream speech sockets."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("daybook.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDispatch records one assistant turn with the standard attribute set.
func (m *Metrics) RecordDispatch(ctx context.Context, source, intent, status string, seconds float64) {
	m.DispatchRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("intent", intent),
			attribute.String("status", status),
		),
	)
	m.DispatchDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordBridgeFrame records one forwarded bridge frame.
func (m *Metrics) RecordBridgeFrame(ctx context.Context, direction, frameType string) {
	m.BridgeFrames.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("direction", direction),
			attribute.String("type", frameType),
		),
	)
}

// RecordCacheLookup records a memory-service cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.MemoryCacheLookups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("cache", cache),
			attribute.String("result", result),
		),
	)
}
