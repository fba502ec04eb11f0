// Package observe holds the OpenTelemetry instruments for the search core.
// Metrics are recorded through the OTel API and exported over a Prometheus
// bridge so the standard /metrics endpoint keeps working.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/zakupai/lotsearch"

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	// SearchDuration tracks end-to-end orchestration latency.
	SearchDuration metric.Float64Histogram

	// Searches counts orchestrated searches. Attributes: strategy, status.
	Searches metric.Int64Counter

	// UpstreamRequests counts per-client calls. Attributes: client, status.
	UpstreamRequests metric.Int64Counter

	// UpstreamErrors counts per-client failures. Attributes: client, kind.
	UpstreamErrors metric.Int64Counter

	// CacheHits counts cache probe outcomes. Attribute: hit.
	CacheHits metric.Int64Counter

	// RateLimited counts requests rejected by the quota gate.
	RateLimited metric.Int64Counter
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// NewMetrics creates the instruments on the given provider. Tests pass a
// private provider to avoid cross-test pollution.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error
	if met.SearchDuration, err = m.Float64Histogram("lotsearch.search.duration",
		metric.WithDescription("End-to-end search latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.Searches, err = m.Int64Counter("lotsearch.searches",
		metric.WithDescription("Orchestrated searches.")); err != nil {
		return nil, err
	}
	if met.UpstreamRequests, err = m.Int64Counter("lotsearch.upstream.requests",
		metric.WithDescription("Upstream client calls.")); err != nil {
		return nil, err
	}
	if met.UpstreamErrors, err = m.Int64Counter("lotsearch.upstream.errors",
		metric.WithDescription("Upstream client failures.")); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("lotsearch.cache.probes",
		metric.WithDescription("Cache probe outcomes.")); err != nil {
		return nil, err
	}
	if met.RateLimited, err = m.Int64Counter("lotsearch.ratelimited",
		metric.WithDescription("Requests rejected by the quota gate.")); err != nil {
		return nil, err
	}
	return met, nil
}

// InitProvider builds an SDK meter provider backed by the Prometheus
// exporter. The default prometheus registry picks up the metrics, so the
// caller only needs to mount promhttp.Handler().
func InitProvider() (*sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

// RecordSearch is the one call site the orchestrator uses per request.
func (m *Metrics) RecordSearch(ctx context.Context, strategy string, elapsed time.Duration, success bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	)
	m.Searches.Add(ctx, 1, attrs)
	m.SearchDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordUpstream accounts one client call.
func (m *Metrics) RecordUpstream(ctx context.Context, client string, err error, kind string) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.UpstreamErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("client", client),
			attribute.String("kind", kind),
		))
	}
	m.UpstreamRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client", client),
		attribute.String("status", status),
	))
}

// RecordCacheProbe accounts one cache lookup.
func (m *Metrics) RecordCacheProbe(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// RecordRateLimited accounts one gate rejection.
func (m *Metrics) RecordRateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.RateLimited.Add(ctx, 1)
}
