// Package metrics provides OpenTelemetry metrics instrumentation with Prometheus export
// and the tracer provider used for async attempt spans.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider manages the OpenTelemetry meter and tracer providers and the Prometheus exporter.
type Provider struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	exporter       *promexporter.Exporter
	registry       *prometheus.Registry
	namespace      string
}

// NewProvider creates and initializes a new metrics provider with Prometheus exporter.
// The namespace parameter is used as a prefix for all metric names (e.g., "eventrelay").
// Span processors are optional; without one spans are sampled but not exported.
func NewProvider(namespace string, spanProcessors ...sdktrace.SpanProcessor) (*Provider, error) {
	// Create custom Prometheus registry
	registry := prometheus.NewRegistry()

	// Create Prometheus exporter with custom registry
	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	// Create meter provider with Prometheus exporter
	meterProvider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	options := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}
	for _, processor := range spanProcessors {
		options = append(options, sdktrace.WithSpanProcessor(processor))
	}

	return &Provider{
		meterProvider:  meterProvider,
		tracerProvider: sdktrace.NewTracerProvider(options...),
		exporter:       exporter,
		registry:       registry,
		namespace:      namespace,
	}, nil
}

// Handler returns an HTTP handler that serves metrics in Prometheus exposition format.
// This handler should be exposed at the /metrics endpoint for Prometheus scraping.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// MeterProvider returns the OpenTelemetry meter provider for creating meters.
func (p *Provider) MeterProvider() *metric.MeterProvider {
	return p.meterProvider
}

// Tracer returns the tracer of the provider namespace.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer(p.namespace)
}

// Shutdown performs cleanup of the metrics provider and flushes any pending metrics and spans.
// Should be called during application shutdown to ensure all metrics are exported.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}
	if p.tracerProvider != nil {
		errs = append(errs, p.tracerProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
