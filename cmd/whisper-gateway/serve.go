package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/whisper-gateway/bootstrap"
	"github.com/kbukum/whisper-gateway/config"
	apperrors "github.com/kbukum/whisper-gateway/errors"
	"github.com/kbukum/whisper-gateway/lifecycle"
	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/observability"
	"github.com/kbukum/whisper-gateway/retention"
	"github.com/kbukum/whisper-gateway/transcription"
	"github.com/kbukum/whisper-gateway/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the model and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return err
	}

	streams, err := logger.OpenStreams(cfg.Logs.Dir, cfg.Logs.Fresh)
	if err != nil {
		return err
	}
	defer streams.Close()

	log := logger.New(&cfg.Logging, cfg.Name, streams.Service)
	logger.SetGlobalLogger(log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownTelemetry, err := observability.Init(ctx, cfg.Observability, observability.Resource{
		ServiceName:    cfg.Name,
		ServiceVersion: version.Get().Version,
		Environment:    cfg.Environment,
	})
	if err != nil {
		log.Warn("Telemetry export disabled", logger.ErrorFields("observability.init", err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	app, err := bootstrap.New(cfg, bootstrap.WithLogger(log), bootstrap.WithStreams(streams))
	if err != nil {
		return err
	}
	supervisor, err := lifecycle.NewSupervisor(cfg.Lifecycle.Supervisor, log)
	if err != nil {
		return err
	}
	guard := retention.NewGuard(streams.Paths(), cfg.Logs.Config, log)

	w := &lifecycle.Wrapper{
		Server: app.Run,
		Retention: func(ctx context.Context) error {
			guard.Run(ctx)
			return nil
		},
		HealthURL:  "http://" + cfg.HTTP.Addr() + "/v1/health",
		Supervisor: supervisor,
		Config:     cfg.Lifecycle,
		Log:        log,
	}

	return fatalError(w.Run(ctx), cfg.Whisper.Model, log)
}

// fatalError logs a failed model load loudly and reports it as a
// RESOURCE_INIT_FAILED error. Other errors pass through.
func fatalError(err error, model string, log *logger.Logger) error {
	var initErr *transcription.ResourceInitError
	if !errors.As(err, &initErr) {
		return err
	}
	log.Error("Model could not be loaded on any device, exiting", map[string]interface{}{
		logger.FieldDevice: string(initErr.Profile.Backend),
		logger.FieldModel:  model,
		logger.FieldError:  initErr.Err.Error(),
	})
	return apperrors.ResourceInit(err)
}
