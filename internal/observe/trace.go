package observe

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(meterName)
}

// StartSpan starts a span. The caller must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// instrumentedTransport counts upstream requests.
type instrumentedTransport struct {
	base    http.RoundTripper
	metrics *Metrics
}

// InstrumentTransport wraps base so every request is counted in
// [Metrics.UpstreamRequests]. A nil base uses http.DefaultTransport.
func InstrumentTransport(base http.RoundTripper, m *Metrics) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &instrumentedTransport{base: base, metrics: m}
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	code := 0
	if resp != nil {
		code = resp.StatusCode
	}
	t.metrics.RecordUpstreamRequest(req.Context(), req.Method, code)
	return resp, err
}
