// Package server provides the gateway's HTTP server: Gin behind a net/http
// middleware chain with h2c support, registered as a lifecycle component.
//
// # Middleware
//
// Built-in middleware (server/middleware):
//
//   - Recovery: panic recovery logged to the error stream
//   - RequestLogger: one access line per request
//   - CORS: cross-origin resource sharing
//   - RequestID: request ID generation and propagation
//   - BodySizeLimit: request body size limit
//   - APIKey: bcrypt-hashed bearer key check
//
// # Endpoints
//
// Built-in endpoints (server/endpoint):
//
//   - /health: component health aggregation
//   - /info: build and version information
//   - /metrics: runtime statistics
package server
