package bootstrap

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/transcription"
)

// Option configures the App during creation.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	streams         *logger.Streams
	prober          device.Prober
	factory         transcription.Factory
	meter           metric.Meter
	gracefulTimeout *time.Duration
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the service logger. Defaults to the global logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) {
		o.logger = l
	}
}

// WithStreams routes request logs to stdout.log and panics and engine
// diagnostics to stderr.log.
func WithStreams(s *logger.Streams) Option {
	return func(o *appOptions) {
		o.streams = s
	}
}

// WithProber replaces the nvidia-smi accelerator probe.
func WithProber(p device.Prober) Option {
	return func(o *appOptions) {
		o.prober = p
	}
}

// WithFactory replaces the engine factory chosen from whisper.backend.
func WithFactory(f transcription.Factory) Option {
	return func(o *appOptions) {
		o.factory = f
	}
}

// WithMeter sets the meter used for gateway metrics. Defaults to the
// global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(o *appOptions) {
		o.meter = m
	}
}

// WithGracefulTimeout sets the maximum duration for graceful shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) {
		o.gracefulTimeout = &d
	}
}
