package server

import (
	"context"

	"github.com/kbukum/whisper-gateway/component"
)

const componentName = "http-server"

var _ component.Component = (*ServerComponent)(nil)

// ServerComponent registers the HTTP listener with the component registry.
// It is registered after the model, so the port opens only once a model is
// ready and closes before the model is released.
type ServerComponent struct {
	server *Server
}

// NewComponent wraps s.
func NewComponent(s *Server) *ServerComponent {
	return &ServerComponent{server: s}
}

// Name implements component.Component.
func (sc *ServerComponent) Name() string { return componentName }

// Start binds the port.
func (sc *ServerComponent) Start(ctx context.Context) error {
	return sc.server.Start(ctx)
}

// Stop drains in-flight requests within the shutdown timeout.
func (sc *ServerComponent) Stop(ctx context.Context) error {
	return sc.server.Stop(ctx)
}

// Health is healthy while the port is bound; the message is the address.
func (sc *ServerComponent) Health(ctx context.Context) component.Health {
	h := component.Health{Name: componentName, Status: component.StatusUnhealthy, Message: "not listening"}
	if sc.server.Listening() {
		h.Status = component.StatusHealthy
		h.Message = sc.server.Addr()
	}
	return h
}
