package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health is one component's entry in the /health report.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a part of the gateway with a start/stop lifecycle: the
// model and the HTTP server.
type Component interface {
	// Name is unique within a Registry.
	Name() string
	// Start blocks until the component is usable or has failed.
	Start(ctx context.Context) error
	// Stop releases the component's resources within ctx's deadline.
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Overall folds component states into one: any unhealthy component makes
// the service unhealthy, otherwise any degraded one makes it degraded. No
// components at all counts as healthy.
func Overall(components []Health) HealthStatus {
	status := StatusHealthy
	for _, h := range components {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
