package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/autoplaza/autoplaza/internal/api/middleware"

// Metrics holds the OpenTelemetry HTTP instruments.
type Metrics struct {
	requestDuration  metric.Float64Histogram
	requestTotal     metric.Int64Counter
	requestsInFlight metric.Int64UpDownCounter
	responseSize     metric.Int64Histogram
	streamDuration   metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with initialized instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"http.server.request.total",
		metric.WithDescription("Total number of HTTP server requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestsInFlight, err := meter.Int64UpDownCounter(
		"http.server.requests_in_flight",
		metric.WithDescription("Number of HTTP requests and open streams being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	responseSize, err := meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("Size of HTTP server responses in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	streamDuration, err := meter.Float64Histogram(
		"mapsync.stream.duration",
		metric.WithDescription("Lifetime of map session websocket streams in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		requestsInFlight: requestsInFlight,
		responseSize:     responseSize,
		streamDuration:   streamDuration,
	}, nil
}

// Middleware returns an HTTP middleware that records metrics for each
// request, labelled by route pattern. Upgraded streams are recorded as a
// stream duration instead of a request.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// The route is unknown until the router runs.
			inFlight := metric.WithAttributes(attribute.String("http.method", r.Method))
			m.requestsInFlight.Add(r.Context(), 1, inFlight)
			defer m.requestsInFlight.Add(r.Context(), -1, inFlight)

			wrapped := newStatusWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.route", routePattern(r)),
			}

			// Metrics outlive a canceled request context.
			ctx := context.WithoutCancel(r.Context())

			if wrapped.upgraded {
				m.streamDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
				return
			}

			attrs = append(attrs, attribute.String("http.status_code", strconv.Itoa(wrapped.statusCode)))
			if wrapped.statusCode >= 400 {
				attrs = append(attrs, attribute.Bool("error", true))
			}

			m.requestDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
			m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
			m.responseSize.Record(ctx, wrapped.written, metric.WithAttributes(attrs...))
		})
	}
}

// ProviderMetrics records calls to the geodata provider and its cache. It
// satisfies station.SourceMetrics.
type ProviderMetrics struct {
	provider        string
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheLookups    metric.Int64Counter
	staleServed     metric.Int64Counter
}

// NewProviderMetrics creates metrics for an external provider. provider
// labels calls that do not name one.
func NewProviderMetrics(provider string) (*ProviderMetrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"provider.cache.lookups",
		metric.WithDescription("Number of provider cache lookups, by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	staleServed, err := meter.Int64Counter(
		"provider.cache.stale_served",
		metric.WithDescription("Number of provider failures answered from a stale cache entry"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		provider:        provider,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLookups:    cacheLookups,
		staleServed:     staleServed,
	}, nil
}

func (m *ProviderMetrics) attrs(provider, queryMode string, extra ...attribute.KeyValue) metric.MeasurementOption {
	if provider == "" {
		provider = m.provider
	}
	kv := append([]attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("geodata.query_mode", queryMode),
	}, extra...)
	return metric.WithAttributes(kv...)
}

// RecordRequest records one upstream fetch.
func (m *ProviderMetrics) RecordRequest(provider, queryMode string, duration time.Duration, err error) {
	opt := m.attrs(provider, queryMode, attribute.Bool("error", err != nil))
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), opt)
	m.requestTotal.Add(ctx, 1, opt)
}

// RecordCacheHit records a fresh cache hit.
func (m *ProviderMetrics) RecordCacheHit(provider, queryMode string) {
	m.cacheLookups.Add(context.Background(), 1, m.attrs(provider, queryMode, attribute.String("result", "hit")))
}

// RecordCacheMiss records a cache miss.
func (m *ProviderMetrics) RecordCacheMiss(provider, queryMode string) {
	m.cacheLookups.Add(context.Background(), 1, m.attrs(provider, queryMode, attribute.String("result", "miss")))
}

// RecordStaleServe records a provider failure answered from stale data.
func (m *ProviderMetrics) RecordStaleServe(provider, queryMode string) {
	m.staleServed.Add(context.Background(), 1, m.attrs(provider, queryMode))
}
