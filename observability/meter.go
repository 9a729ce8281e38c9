package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/whisper-gateway/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// MeterName is the instrumentation scope of the gateway's instruments.
const MeterName = "github.com/kbukum/whisper-gateway"

// Request outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeBusy     = "busy"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// GateStats is the view of the model gate exported as gauges.
type GateStats interface {
	Name() string
	InUse() bool
	Waiting() int
}

// Metrics holds the gateway's metric instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	requestTotal          metric.Int64Counter
	requestActive         metric.Int64UpDownCounter
	gateWait              metric.Float64Histogram
	gateRejectTotal       metric.Int64Counter
	transcriptionDuration metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requestTotal, err := meter.Int64Counter("gateway.request.total",
		metric.WithDescription("Transcription requests by route and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.request.total counter: %w", err)
	}

	requestActive, err := meter.Int64UpDownCounter("gateway.request.active",
		metric.WithDescription("Transcription requests currently being handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.request.active gauge: %w", err)
	}

	gateWait, err := meter.Float64Histogram("gateway.gate.wait",
		metric.WithDescription("Time spent waiting for the model gate"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.gate.wait histogram: %w", err)
	}

	gateRejectTotal, err := meter.Int64Counter("gateway.gate.rejected",
		metric.WithDescription("Callers turned away by the model gate"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.gate.rejected counter: %w", err)
	}

	transcriptionDuration, err := meter.Float64Histogram("gateway.transcription.duration",
		metric.WithDescription("Duration of model calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.transcription.duration histogram: %w", err)
	}

	return &Metrics{
		requestTotal:          requestTotal,
		requestActive:         requestActive,
		gateWait:              gateWait,
		gateRejectTotal:       gateRejectTotal,
		transcriptionDuration: transcriptionDuration,
	}, nil
}

// RecordRequestStart increments the active request count.
func (m *Metrics) RecordRequestStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.requestActive.Add(ctx, 1)
}

// RecordRequestEnd decrements active requests and counts the outcome.
func (m *Metrics) RecordRequestEnd(ctx context.Context, route, outcome string) {
	if m == nil {
		return
	}
	m.requestActive.Add(ctx, -1)
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("outcome", outcome),
	))
}

// RecordGateWait records how long a caller waited for the gate.
func (m *Metrics) RecordGateWait(gate string, waited time.Duration) {
	if m == nil {
		return
	}
	m.gateWait.Record(context.Background(), waited.Seconds(), metric.WithAttributes(
		attribute.String("gate", gate),
	))
}

// RecordGateReject counts a rejected gate caller.
func (m *Metrics) RecordGateReject(gate string, err error) {
	if m == nil {
		return
	}
	m.gateRejectTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("gate", gate),
		attribute.String("reason", err.Error()),
	))
}

// RecordTranscription records one model call.
func (m *Metrics) RecordTranscription(ctx context.Context, engine, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.transcriptionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("status", status),
	))
}

// ObserveGate registers gauges reporting the gate's queue depth and
// occupancy at collection time.
func ObserveGate(meter metric.Meter, gate GateStats) (metric.Registration, error) {
	waiting, err := meter.Int64ObservableGauge("gateway.gate.waiting",
		metric.WithDescription("Callers queued for the model gate"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.gate.waiting gauge: %w", err)
	}
	inUse, err := meter.Int64ObservableGauge("gateway.gate.in_use",
		metric.WithDescription("1 while the model is busy"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gateway.gate.in_use gauge: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		attrs := metric.WithAttributes(attribute.String("gate", gate.Name()))
		o.ObserveInt64(waiting, int64(gate.Waiting()), attrs)
		busy := int64(0)
		if gate.InUse() {
			busy = 1
		}
		o.ObserveInt64(inUse, busy, attrs)
		return nil
	}, waiting, inUse)
}
