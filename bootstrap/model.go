package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/whisper-gateway/component"
	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/resilience"
	"github.com/kbukum/whisper-gateway/transcription"
	"github.com/kbukum/whisper-gateway/workfile"
)

const modelComponentName = "model"

// ReadyTarget receives the loaded model.
type ReadyTarget interface {
	SetReady(handle *transcription.Handle, probe device.Probe)
}

// ModelComponent owns the model handle: it selects the device, loads the
// model with fallback, warms it up and hands it to the request handler.
type ModelComponent struct {
	cfg     transcription.Config
	policy  device.Policy
	prober  device.Prober
	factory transcription.Factory
	gate    resilience.Gate
	stager  *workfile.Stager
	target  ReadyTarget
	log     *logger.Logger

	mu      sync.RWMutex
	handle  *transcription.Handle
	outcome transcription.LoadOutcome
	loading bool
}

var _ component.Component = (*ModelComponent)(nil)

// Name implements component.Component.
func (m *ModelComponent) Name() string { return modelComponentName }

// Start implements component.Component. A load failure on the CPU profile
// is returned as a *transcription.ResourceInitError; a warm-up failure is
// only logged.
func (m *ModelComponent) Start(ctx context.Context) error {
	m.setLoading(true)
	defer m.setLoading(false)

	profile, probe := device.Select(ctx, m.prober, m.policy, m.log)
	device.Report(m.log, profile, probe)

	handle, outcome, err := transcription.Load(ctx, m.factory, profile, m.cfg.Model, m.log)
	if err != nil {
		return fmt.Errorf("load model %s: %w", m.cfg.Model, err)
	}

	if !m.cfg.SkipWarmUp {
		_ = handle.WarmUp(ctx, m.gate, m.stager, transcription.WarmUpOptions(m.cfg.ChunkLength, m.cfg.WarmUpVAD))
	}

	m.mu.Lock()
	m.handle = handle
	m.outcome = outcome
	m.mu.Unlock()

	m.target.SetReady(handle, probe)
	return nil
}

// Stop implements component.Component. It waits for the gate so an
// in-flight transcription finishes before the engine is closed.
func (m *ModelComponent) Stop(ctx context.Context) error {
	m.mu.Lock()
	handle := m.handle
	m.handle = nil
	m.mu.Unlock()
	if handle == nil {
		return nil
	}

	err := resilience.Execute(ctx, m.gate, handle.Close)
	if err != nil {
		m.log.Warn("Closing model without the gate", logger.ErrorFields("model.stop", err))
		return handle.Close()
	}
	return nil
}

// Health implements component.Component.
func (m *ModelComponent) Health(ctx context.Context) component.Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case m.handle == nil && m.loading:
		return component.Health{Name: modelComponentName, Status: component.StatusUnhealthy, Message: "loading"}
	case m.handle == nil:
		return component.Health{Name: modelComponentName, Status: component.StatusUnhealthy, Message: "not loaded"}
	case m.outcome == transcription.LoadedWithDowngrade:
		return component.Health{
			Name:    modelComponentName,
			Status:  component.StatusDegraded,
			Message: m.handle.Profile().Reason,
		}
	default:
		return component.Health{Name: modelComponentName, Status: component.StatusHealthy}
	}
}

// Handle returns the loaded handle, or nil.
func (m *ModelComponent) Handle() *transcription.Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle
}

func (m *ModelComponent) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}
