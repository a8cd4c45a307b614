// Package observe provides OpenTelemetry metrics and tracing for the
// server. Instruments are created from a [metric.MeterProvider]; tests should
// pass an SDK provider with a ManualReader, production code uses the global
// provider installed by [InitProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "datapi-mcp-server"

// Status attribute values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the metric instruments. All fields are safe for concurrent
// use.
type Metrics struct {
	// ToolCalls counts tool invocations by tool and status.
	ToolCalls metric.Int64Counter

	// ToolDuration tracks tool latency in seconds, upstream time included.
	ToolDuration metric.Float64Histogram

	// UpstreamRequests counts Data Stores HTTP requests by method and
	// status code.
	UpstreamRequests metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds. Catalogue calls
// return in well under a second while downloads can take minutes.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolCalls, err = m.Int64Counter("datapi.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("datapi.tool.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UpstreamRequests, err = m.Int64Counter("datapi.upstream.requests",
		metric.WithDescription("Total Data Stores API requests by method and status code."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level [Metrics] built on
// [otel.GetMeterProvider]. Call [InitProvider] first for the instruments to
// be exported.
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

// RecordToolCall records one tool invocation and its duration.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, elapsed time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordUpstreamRequest records one upstream HTTP request. A zero code
// means the request failed before a response arrived.
func (m *Metrics) RecordUpstreamRequest(ctx context.Context, method string, code int) {
	m.UpstreamRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.Int("code", code),
		),
	)
}
