package device

import (
	"context"
	"fmt"

	"github.com/kbukum/whisper-gateway/logger"
)

// Config configures device selection.
type Config struct {
	// Index is the accelerator index to use.
	Index int `yaml:"index" mapstructure:"index"`
	// MinCapability is the lowest capability the inference runtime supports.
	MinCapability string `yaml:"min_capability" mapstructure:"min_capability"`
	// AncientFloor marks accelerators too old to report as merely incompatible.
	AncientFloor string `yaml:"ancient_floor" mapstructure:"ancient_floor"`
	// ForceCPU skips the probe entirely.
	ForceCPU bool `yaml:"force_cpu" mapstructure:"force_cpu"`
}

// ApplyDefaults fills in unset thresholds.
func (c *Config) ApplyDefaults() {
	if c.MinCapability == "" {
		c.MinCapability = "7.5"
	}
	if c.AncientFloor == "" {
		c.AncientFloor = "5.0"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Index < 0 {
		return fmt.Errorf("device.index must be non-negative (got: %d)", c.Index)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy converts the configured thresholds.
func (c *Config) Policy() (Policy, error) {
	minCap, err := ParseCapability(c.MinCapability)
	if err != nil {
		return Policy{}, fmt.Errorf("device.min_capability: %w", err)
	}
	floor, err := ParseCapability(c.AncientFloor)
	if err != nil {
		return Policy{}, fmt.Errorf("device.ancient_floor: %w", err)
	}
	return Policy{Index: c.Index, MinCapability: minCap, AncientFloor: floor, ForceCPU: c.ForceCPU}, nil
}

// Policy holds the capability thresholds used by Select.
type Policy struct {
	Index         int
	MinCapability Capability
	AncientFloor  Capability
	ForceCPU      bool
}

// DefaultPolicy returns the 7.5 / 5.0 thresholds on device 0.
func DefaultPolicy() Policy {
	return Policy{
		MinCapability: Capability{7, 5},
		AncientFloor:  Capability{5, 0},
	}
}

// Fallback reasons.
const (
	ReasonForced       = "cpu forced by configuration"
	ReasonNoDevice     = "no accelerator detected"
	ReasonTooOld       = "accelerator too old"
	ReasonIncompatible = "accelerator capability below runtime minimum"
)

// Select decides the profile. It never fails.
func Select(ctx context.Context, prober Prober, policy Policy, log *logger.Logger) (Profile, Probe) {
	if policy.ForceCPU {
		return CPU(ReasonForced), Probe{}
	}

	probe, err := prober.Probe(ctx, policy.Index)
	if err != nil {
		log.Warn("Accelerator probe failed, using CPU", logger.ErrorFields("device.probe", err))
		return CPU(fmt.Sprintf("probe failed: %v", err)), Probe{}
	}
	if !probe.Present {
		return CPU(ReasonNoDevice), probe
	}

	gpu := Profile{
		Backend:    Accelerated,
		Precision:  Float16,
		Index:      policy.Index,
		Name:       probe.Name,
		Capability: probe.Capability,
	}

	switch {
	case probe.Capability.Less(policy.AncientFloor):
		return gpu.Downgrade(ReasonTooOld), probe
	case probe.Capability.Less(policy.MinCapability):
		log.Warn("Accelerator is incompatible with the inference runtime, using CPU", map[string]interface{}{
			logger.FieldDevice: probe.Name,
			"capability":       probe.Capability.String(),
			"required":         policy.MinCapability.String(),
		})
		return gpu.Downgrade(ReasonIncompatible), probe
	default:
		return gpu, probe
	}
}

// Report writes the one-time device diagnostic.
func Report(log *logger.Logger, profile Profile, probe Probe) {
	fields := map[string]interface{}{
		logger.FieldDevice: string(profile.Backend),
		"compute_type":     string(profile.Precision),
	}
	if probe.Present {
		fields["gpu_name"] = probe.Name
		fields["gpu_index"] = profile.Index
		fields["capability"] = probe.Capability.String()
		fields["architecture"] = Architecture(probe.Capability)
		fields["driver"] = probe.Driver
		if probe.Runtime != "" {
			fields["cuda_version"] = probe.Runtime
		}
	}
	if profile.Reason != "" {
		fields["reason"] = profile.Reason
	}
	log.Info("Compute device selected", fields)
}
