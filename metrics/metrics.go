// Package metrics exposes the relay's OpenTelemetry metrics over a Prometheus
// scrape endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	prometheus2 "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

const (
	defaultEndpoint = "/metrics"
	meterName       = "github.com/scorchedearth/scorched/metrics"
)

// Metrics is the relay's scrape endpoint together with the meter the relay
// records into.
type Metrics struct {
	Meter    api.Meter
	provider *metric.MeterProvider
	Endpoint string

	*http.Server
}

// NewServer installs a meter provider backed by a private Prometheus registry
// and prepares the endpoint on port. Only that registry is scraped, so the Go
// runtime collectors aren't. Nothing is served until ListenAndServe.
func NewServer(port int, endpoint string) (*Metrics, error) {
	registry := prometheus2.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	router := http.NewServeMux()
	router.Handle(endpoint, promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	return &Metrics{
		Meter:    provider.Meter(meterName),
		provider: provider,
		Endpoint: endpoint,
		Server:   server,
	}, nil
}

// ListenAndServe serves the endpoint until Shutdown.
func (m *Metrics) ListenAndServe() error {
	err := m.Server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops serving scrapes and flushes the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if err := m.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	if err := m.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider: %w", err)
	}

	return nil
}
