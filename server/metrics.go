package server

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// request results
const (
	resultOK       = "ok"
	resultInvalid  = "invalid"
	resultFail     = "fail"
	resultAbandon  = "abandoned"
	resultShutdown = "shutdown"
)

type relayMetrics struct {
	requests      metric.Int64Counter
	sessions      metric.Int64UpDownCounter
	transferBytes metric.Int64Counter
}

func newRelayMetrics(meter metric.Meter, registry *Registry) (*relayMetrics, error) {
	requests, err := meter.Int64Counter("serp_requests_total",
		metric.WithDescription("rendezvous requests by method and result"))
	if err != nil {
		return nil, err
	}

	sessions, err := meter.Int64UpDownCounter("serp_sessions_active",
		metric.WithDescription("paired connections currently being relayed"))
	if err != nil {
		return nil, err
	}

	transferBytes, err := meter.Int64Counter("serp_transfer_bytes",
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	waiting, err := meter.Int64ObservableGauge("serp_rooms_waiting",
		metric.WithDescription("hosts waiting for a partner"))
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(waiting, int64(registry.Len()))
			return nil
		},
		waiting,
	)
	if err != nil {
		return nil, err
	}

	return &relayMetrics{
		requests:      requests,
		sessions:      sessions,
		transferBytes: transferBytes,
	}, nil
}

func (m *relayMetrics) request(method, result string) {
	m.requests.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("result", result),
	))
}

func (m *relayMetrics) sessionStarted() {
	m.sessions.Add(context.Background(), 1)
}

func (m *relayMetrics) sessionEnded() {
	m.sessions.Add(context.Background(), -1)
}

func (m *relayMetrics) transferred(n int64) {
	if n > 0 {
		m.transferBytes.Add(context.Background(), n)
	}
}
