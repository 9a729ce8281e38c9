package lifecycle

import (
	"fmt"
	"time"
)

// Supervisor kinds.
const (
	SupervisorSystemd = "systemd"
	SupervisorLog     = "log"
)

// Config configures the wrapper's supervisor handshake.
type Config struct {
	// Supervisor is systemd or log.
	Supervisor string `yaml:"supervisor" mapstructure:"supervisor"`
	// ReadyTimeout bounds the health poll before Running is signalled anyway.
	ReadyTimeout time.Duration `yaml:"ready_timeout" mapstructure:"ready_timeout"`
	// PollInterval is the time between health probes.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.Supervisor == "" {
		c.Supervisor = SupervisorSystemd
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 500 * time.Millisecond
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Supervisor {
	case SupervisorSystemd, SupervisorLog:
	default:
		return fmt.Errorf("lifecycle.supervisor must be one of [%s, %s] (got: %s)", SupervisorSystemd, SupervisorLog, c.Supervisor)
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("lifecycle.ready_timeout must be positive (got: %s)", c.ReadyTimeout)
	}
	if c.PollInterval <= 0 || c.PollInterval > c.ReadyTimeout {
		return fmt.Errorf("lifecycle.poll_interval must be positive and at most ready_timeout (got: %s)", c.PollInterval)
	}
	return nil
}
