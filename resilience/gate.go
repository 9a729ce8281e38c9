package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Gate errors.
var (
	ErrGateFull    = errors.New("gate queue is full")
	ErrGateTimeout = errors.New("gate wait timeout")
)

// Gate serializes access to a resource. Every successful Acquire must be
// paired with exactly one Release.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// GateConfig configures an ExclusiveGate.
type GateConfig struct {
	// Name identifies this gate for metrics/logging.
	Name string `yaml:"name" mapstructure:"name"`
	// MaxWait bounds how long a caller waits for the token. 0 waits forever.
	MaxWait time.Duration `yaml:"max_wait" mapstructure:"max_wait"`
	// MaxQueue bounds how many callers may wait at once. 0 is unbounded.
	MaxQueue int `yaml:"max_queue" mapstructure:"max_queue"`
	// OnAcquire is called with the time spent waiting for the token.
	OnAcquire func(name string, waited time.Duration) `yaml:"-" mapstructure:"-"`
	// OnReject is called when a caller is turned away.
	OnReject func(name string, err error) `yaml:"-" mapstructure:"-"`
}

// ApplyDefaults fills in unset fields.
func (c *GateConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "model"
	}
}

// Validate checks the configuration for invalid values.
func (c *GateConfig) Validate() error {
	if c.MaxWait < 0 {
		return fmt.Errorf("gate.max_wait must be non-negative (got: %s)", c.MaxWait)
	}
	if c.MaxQueue < 0 {
		return fmt.Errorf("gate.max_queue must be non-negative (got: %d)", c.MaxQueue)
	}
	return nil
}

// ExclusiveGate is a bulkhead with exactly one slot. Waiters are not
// served in strict arrival order.
type ExclusiveGate struct {
	config  GateConfig
	sem     chan struct{}
	waiting atomic.Int64
}

// NewExclusiveGate creates a gate holding a single token.
func NewExclusiveGate(config GateConfig) *ExclusiveGate {
	config.ApplyDefaults()
	return &ExclusiveGate{
		config: config,
		sem:    make(chan struct{}, 1),
	}
}

// Acquire blocks until the token is held, the wait limit passes, the queue
// limit is hit, or ctx is done.
func (g *ExclusiveGate) Acquire(ctx context.Context) error {
	start := time.Now()

	// Try immediate acquire
	select {
	case g.sem <- struct{}{}:
		g.acquired(start)
		return nil
	default:
	}

	n := g.waiting.Add(1)
	defer g.waiting.Add(-1)
	if g.config.MaxQueue > 0 && n > int64(g.config.MaxQueue) {
		return g.reject(ErrGateFull)
	}

	var timeout <-chan time.Time
	if g.config.MaxWait > 0 {
		timer := time.NewTimer(g.config.MaxWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case g.sem <- struct{}{}:
		g.acquired(start)
		return nil
	case <-timeout:
		return g.reject(ErrGateTimeout)
	case <-ctx.Done():
		return g.reject(ctx.Err())
	}
}

// Release returns the token. Calling it without holding the token blocks.
func (g *ExclusiveGate) Release() {
	<-g.sem
}

// InUse reports whether the token is currently held.
func (g *ExclusiveGate) InUse() bool {
	return len(g.sem) == 1
}

// Waiting returns the number of callers blocked in Acquire.
func (g *ExclusiveGate) Waiting() int {
	return int(g.waiting.Load())
}

// Name returns the configured gate name.
func (g *ExclusiveGate) Name() string {
	return g.config.Name
}

// Stats is a snapshot of gate occupancy for health output.
type Stats struct {
	Name    string `json:"name"`
	InUse   bool   `json:"in_use"`
	Waiting int    `json:"waiting"`
}

// Stats returns the current occupancy.
func (g *ExclusiveGate) Stats() Stats {
	return Stats{Name: g.config.Name, InUse: g.InUse(), Waiting: g.Waiting()}
}

func (g *ExclusiveGate) acquired(start time.Time) {
	if g.config.OnAcquire != nil {
		g.config.OnAcquire(g.config.Name, time.Since(start))
	}
}

func (g *ExclusiveGate) reject(err error) error {
	if g.config.OnReject != nil {
		g.config.OnReject(g.config.Name, err)
	}
	return err
}

// Execute runs fn while holding the gate. The token is released on every
// path, including a panic in fn.
func Execute(ctx context.Context, g Gate, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

// ExecuteWithResult runs a function that returns a value while holding the gate.
func ExecuteWithResult[T any](ctx context.Context, g Gate, fn func() (T, error)) (T, error) {
	var result T
	err := Execute(ctx, g, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

// IsRejection reports whether err came from the gate turning a caller away
// because of its own limits.
func IsRejection(err error) bool {
	return errors.Is(err, ErrGateFull) || errors.Is(err, ErrGateTimeout)
}
