// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/satori-chatbots/chatbot-dojo-sub000"

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// ExecutionMetrics records execution lifecycle instruments.
type ExecutionMetrics struct {
	started  otelmetric.Int64Counter
	finished otelmetric.Int64Counter
	duration otelmetric.Float64Histogram
	active   otelmetric.Int64UpDownCounter
}

// NewExecutionMetrics creates the instruments on the global meter provider.
func NewExecutionMetrics() (*ExecutionMetrics, error) {
	meter := otel.Meter(meterName)

	started, err := meter.Int64Counter("executions_started_total",
		otelmetric.WithDescription("Executions launched, by kind"))
	if err != nil {
		return nil, err
	}
	finished, err := meter.Int64Counter("executions_finished_total",
		otelmetric.WithDescription("Executions that reached a terminal status, by kind and status"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("execution_duration_seconds",
		otelmetric.WithDescription("Wall-clock time from launch to terminal status"),
		otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("executions_active",
		otelmetric.WithDescription("Executions with a live coordinator"))
	if err != nil {
		return nil, err
	}

	return &ExecutionMetrics{started: started, finished: finished, duration: duration, active: active}, nil
}

// Started records a launch.
func (m *ExecutionMetrics) Started(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.started.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("kind", kind)))
	m.active.Add(ctx, 1)
}

// Finished records a terminal status and its duration.
func (m *ExecutionMetrics) Finished(ctx context.Context, kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("kind", kind), attribute.String("status", status))
	m.finished.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	m.active.Add(ctx, -1)
}
