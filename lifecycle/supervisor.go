package lifecycle

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/kbukum/whisper-gateway/logger"
)

// State is a lifecycle state reported to the supervisor.
type State int

const (
	Running State = iota
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Supervisor receives state changes from the wrapper.
type Supervisor interface {
	Notify(State) error
}

// NewSupervisor returns the supervisor for kind.
func NewSupervisor(kind string, log *logger.Logger) (Supervisor, error) {
	switch kind {
	case SupervisorSystemd:
		return &SystemdSupervisor{log: log.WithComponent("supervisor")}, nil
	case SupervisorLog:
		return &LogSupervisor{log: log.WithComponent("supervisor")}, nil
	default:
		return nil, fmt.Errorf("lifecycle: unknown supervisor %q", kind)
	}
}

// SystemdSupervisor speaks the sd_notify protocol. Outside a Type=notify
// unit there is no socket and notifications are dropped.
type SystemdSupervisor struct {
	log *logger.Logger
	// notify defaults to daemon.SdNotify.
	notify func(unsetEnv bool, state string) (bool, error)
}

// Notify implements Supervisor.
func (s *SystemdSupervisor) Notify(state State) error {
	msg := daemon.SdNotifyReady
	if state == Stopping {
		msg = daemon.SdNotifyStopping
	}
	notify := s.notify
	if notify == nil {
		notify = daemon.SdNotify
	}
	sent, err := notify(false, msg)
	if err != nil {
		return fmt.Errorf("sd_notify %s: %w", state, err)
	}
	if !sent {
		s.log.Debug("No systemd notify socket, state not sent", map[string]interface{}{"state": state.String()})
		return nil
	}
	s.log.Info("Supervisor notified", map[string]interface{}{"state": state.String()})
	return nil
}

// LogSupervisor only logs state changes.
type LogSupervisor struct {
	log *logger.Logger
}

// Notify implements Supervisor.
func (s *LogSupervisor) Notify(state State) error {
	s.log.Info("Service state changed", map[string]interface{}{"state": state.String()})
	return nil
}
