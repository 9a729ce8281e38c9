// Package resilience provides the concurrency guards used around the
// transcription model.
//
//   - ExclusiveGate: capacity-1 semaphore serializing access to the model,
//     with optional wait and queue limits
//   - Retry: bounded retries with backoff, used for readiness polling and
//     sidecar health checks
//
//	gate := resilience.NewExclusiveGate(resilience.GateConfig{Name: "model"})
//	err := resilience.Execute(ctx, gate, func() error {
//	    return handle.Transcribe(ctx, path, opts)
//	})
package resilience
