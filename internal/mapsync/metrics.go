package mapsync

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/autoplaza/autoplaza/internal/mapsync"

// Metrics holds the OpenTelemetry instruments for map loads.
// A nil *Metrics records nothing.
type Metrics struct {
	loads           metric.Int64Counter
	outcomes        metric.Int64Counter
	superseded      metric.Int64Counter
	emptySuppressed metric.Int64Counter
	sessions        metric.Int64UpDownCounter
}

// NewMetrics creates the map-sync instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	loads, err := meter.Int64Counter(
		"mapsync.load.started",
		metric.WithDescription("Number of station loads started"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, err
	}

	outcomes, err := meter.Int64Counter(
		"mapsync.load.finished",
		metric.WithDescription("Number of station loads finished, by status"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, err
	}

	superseded, err := meter.Int64Counter(
		"mapsync.load.superseded",
		metric.WithDescription("Number of in-flight loads canceled by a newer load"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, err
	}

	emptySuppressed, err := meter.Int64Counter(
		"mapsync.result.empty_suppressed",
		metric.WithDescription("Number of empty results replaced by the last non-empty set"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	sessions, err := meter.Int64UpDownCounter(
		"mapsync.sessions.active",
		metric.WithDescription("Number of open map sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		loads:           loads,
		outcomes:        outcomes,
		superseded:      superseded,
		emptySuppressed: emptySuppressed,
		sessions:        sessions,
	}, nil
}

func (m *Metrics) loadStarted(mode string) {
	if m == nil {
		return
	}
	m.loads.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("mapsync.mode", mode)))
}

func (m *Metrics) loadFinished(o Outcome) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("mapsync.mode", string(o.Query.Mode)),
		attribute.String("mapsync.status", string(o.Status)),
	}
	if o.Decision != "" {
		attrs = append(attrs, attribute.String("mapsync.decision", string(o.Decision)))
	}
	m.outcomes.Add(context.TODO(), 1, metric.WithAttributes(attrs...))
	if o.Decision == DecisionSuppressedEmpty {
		m.emptySuppressed.Add(context.TODO(), 1)
	}
}

func (m *Metrics) loadSuperseded() {
	if m == nil {
		return
	}
	m.superseded.Add(context.TODO(), 1)
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Add(context.TODO(), 1)
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Add(context.TODO(), -1)
}
