// Package observability wires OpenTelemetry tracing and metrics for the
// gateway. Export is OTLP over HTTP and only starts when an endpoint is
// configured; otherwise the global no-op providers are used.
//
//	shutdown, err := observability.Init(ctx, cfg.Observability, observability.Resource{ServiceName: "whisper-gateway"})
//	defer shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter(observability.MeterName))
//	metrics.RecordRequestEnd(ctx, "/v1/audio/transcriptions", observability.OutcomeOK)
package observability
