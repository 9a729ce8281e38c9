package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/whisper-gateway/api"
	"github.com/kbukum/whisper-gateway/component"
	"github.com/kbukum/whisper-gateway/config"
	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/observability"
	"github.com/kbukum/whisper-gateway/resilience"
	"github.com/kbukum/whisper-gateway/server"
	"github.com/kbukum/whisper-gateway/server/middleware"
	"github.com/kbukum/whisper-gateway/transcription"
	"github.com/kbukum/whisper-gateway/transcription/whisper"
	"github.com/kbukum/whisper-gateway/transcription/whispercpp"
	"github.com/kbukum/whisper-gateway/util"
	"github.com/kbukum/whisper-gateway/version"
	"github.com/kbukum/whisper-gateway/workfile"
)

// App is the assembled gateway: one model, one gate, one HTTP server.
// Components start in registration order, so the model is loaded and
// warmed up before the listener opens, and stop in reverse.
type App struct {
	Name       string
	Version    string
	Cfg        *config.Gateway
	Components *component.Registry
	Logger     *logger.Logger
	Server     *server.Server
	Handler    *api.Handler
	Gate       *resilience.ExclusiveGate
	Model      *ModelComponent

	gateObserver    metric.Registration
	gracefulTimeout time.Duration
	onReady         []Hook
	onStop          []Hook
}

// New builds the gateway from a defaulted and validated configuration.
func New(cfg *config.Gateway, opts ...Option) (*App, error) {
	o := resolveOptions(opts)
	log := o.logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	gracefulTimeout := time.Duration(cfg.HTTP.ShutdownTimeout)*time.Second + 15*time.Second
	if o.gracefulTimeout != nil {
		gracefulTimeout = *o.gracefulTimeout
	}

	meter := o.meter
	if meter == nil {
		meter = observability.Meter(observability.MeterName)
	}
	metrics, err := observability.NewMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	gateCfg := cfg.Gate
	gateCfg.OnAcquire = metrics.RecordGateWait
	gateCfg.OnReject = metrics.RecordGateReject
	gate := resilience.NewExclusiveGate(gateCfg)
	gateObserver, err := observability.ObserveGate(meter, gate)
	if err != nil {
		return nil, fmt.Errorf("observe gate: %w", err)
	}

	stager := workfile.NewStager(cfg.WorkFile, log)
	handler := api.NewHandler(api.Deps{
		Gate:        gate,
		Stager:      stager,
		Policy:      cfg.Upload.Policy(),
		ChunkLength: cfg.Whisper.ChunkLength,
		MaxBodySize: util.ParseSize(cfg.HTTP.MaxBodySize, 0),
		Metrics:     metrics,
		Log:         log,
	})

	access, panics, engineStderr := streamOutputs(log, o.streams)

	app := &App{
		Name:            cfg.Name,
		Version:         version.Get().Version,
		Cfg:             cfg,
		Components:      component.NewRegistry(log, gracefulTimeout),
		Logger:          log,
		Handler:         handler,
		Gate:            gate,
		gateObserver:    gateObserver,
		gracefulTimeout: gracefulTimeout,
	}

	srv := server.New(cfg.HTTP, log)
	srv.ApplyMiddleware(server.Streams{Access: access, Panics: panics})
	srv.RegisterDefaultEndpoints(cfg.Name, app.Components.HealthAll, gate.Stats)
	handler.Register(srv.GinEngine(), middleware.GinWrap(middleware.APIKey(middleware.APIKeyConfig{
		Hash: cfg.Auth.APIKeyHash,
	})))
	app.Server = srv

	policy, err := cfg.Device.Policy()
	if err != nil {
		return nil, err
	}
	prober := o.prober
	if prober == nil {
		prober = device.NewSMIProber()
	}
	factory := o.factory
	if factory == nil {
		factory = EngineFactory(cfg.Whisper, engineStderr)
	}
	app.Model = &ModelComponent{
		cfg:     cfg.Whisper,
		policy:  policy,
		prober:  prober,
		factory: factory,
		gate:    gate,
		stager:  stager,
		target:  handler,
		log:     log,
	}

	for _, c := range []component.Component{app.Model, server.NewComponent(srv)} {
		if err := app.Components.Register(c); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// EngineFactory returns the factory for the configured backend. The
// whisper.cpp engine writes its diagnostics to stderr.
func EngineFactory(cfg transcription.Config, stderr io.Writer) transcription.Factory {
	if cfg.Backend == transcription.BackendSidecar {
		return whisper.Factory(whisper.Config{
			URL:   cfg.SidecarURL,
			Model: cfg.Model,
			Ready: resilience.PollConfig(time.Second, 2*time.Minute),
		})
	}
	return whispercpp.Factory(whispercpp.Config{
		Binary:   cfg.Binary,
		ModelDir: cfg.ModelDir,
		Model:    cfg.Model,
		VADModel: cfg.VADModel,
		Threads:  cfg.Threads,
		Stderr:   stderr,
	})
}

// streamOutputs picks the request, panic and engine outputs. Without log
// files everything goes to the service logger and the process stderr.
func streamOutputs(log *logger.Logger, s *logger.Streams) (access, panics *logger.Logger, engine io.Writer) {
	if s == nil {
		return log.WithComponent("http"), log.WithComponent("panic"), os.Stderr
	}
	return logger.NewWithWriter(s.Stdout, "http"), logger.NewWithWriter(s.Stderr, "panic"), s.Stderr
}

// Run starts every component, then blocks until ctx is done and shuts the
// gateway down. A model that cannot be loaded ends Run with an error
// wrapping the *transcription.ResourceInitError.
func (a *App) Run(ctx context.Context) error {
	start := time.Now()
	a.Logger.Info("Starting gateway", map[string]interface{}{
		"name":    a.Name,
		"version": a.Version,
		"addr":    a.Cfg.HTTP.Addr(),
	})

	if err := a.Components.StartAll(ctx); err != nil {
		_ = a.stop()
		return fmt.Errorf("startup failed: %w", err)
	}
	if err := runHooks(ctx, a.onReady); err != nil {
		_ = a.stop()
		return fmt.Errorf("onReady hook failed: %w", err)
	}

	a.Logger.Info("Gateway ready", map[string]interface{}{
		"addr":               a.Server.Addr(),
		logger.FieldDuration: time.Since(start).Milliseconds(),
	})
	<-ctx.Done()
	return a.stop()
}

// stop runs the stop hooks and stops all components within the graceful
// timeout.
func (a *App) stop() error {
	a.Logger.Info("Shutting down gateway", map[string]interface{}{
		"timeout": a.gracefulTimeout.String(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var shutdownErr error
	if err := runHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("OnStop hook error", logger.ErrorFields("shutdown", err))
		shutdownErr = err
	}
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Shutdown completed with errors", logger.ErrorFields("shutdown", err))
		shutdownErr = err
	}
	if err := a.gateObserver.Unregister(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}

	a.Logger.Info("Gateway shutdown complete")
	return shutdownErr
}
