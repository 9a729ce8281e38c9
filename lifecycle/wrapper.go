package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/resilience"
)

// Task is a long-running background task. It must return once ctx is done.
type Task func(ctx context.Context) error

// Wrapper runs the service as a supervised process: it starts the server
// and retention tasks, tells the supervisor when the service is up and
// shuts both tasks down on a stop signal.
type Wrapper struct {
	// Server starts the model and the HTTP listener and blocks until ctx is done.
	Server Task
	// Retention is the log retention schedule. Optional.
	Retention Task
	// HealthURL is polled until it answers 200.
	HealthURL  string
	Supervisor Supervisor
	Config     Config
	Log        *logger.Logger

	// Client performs the health probes. Defaults to a 2 s timeout client.
	Client *http.Client
	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// ErrServerExited is returned when the server task stops without an error
// before a stop was requested.
var ErrServerExited = errors.New("lifecycle: server task exited unexpectedly")

// Run blocks until a stop signal arrives, ctx is done or the server task
// fails. A server task error is returned; a requested stop returns nil.
func (w *Wrapper) Run(ctx context.Context) error {
	w.Config.ApplyDefaults()
	log := w.Log.WithComponent("lifecycle")

	signals := w.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	stopCtx, stopSignals := signal.NotifyContext(ctx, signals...)
	defer stopSignals()

	running, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	serverDone := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		serverDone <- w.Server(running)
	}()

	if w.Retention != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Retention(running); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("Retention task stopped", logger.ErrorFields("retention", err))
			}
		}()
	}

	readyDone := make(chan struct{})
	go func() {
		defer close(readyDone)
		w.awaitReady(running, log)
	}()

	var runErr error
	select {
	case <-stopCtx.Done():
		log.Info("Stop requested, shutting down")
	case err := <-serverDone:
		if err == nil {
			err = ErrServerExited
		}
		runErr = err
		log.Error("Server task failed", logger.ErrorFields("server", err))
	}

	if err := w.Supervisor.Notify(Stopping); err != nil {
		log.Warn("Supervisor notification failed", logger.ErrorFields("supervisor", err))
	}
	cancel()
	<-readyDone
	wg.Wait()

	if runErr == nil {
		select {
		case err := <-serverDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				runErr = err
			}
		default:
		}
	}
	log.Info("Service stopped")
	return runErr
}

// awaitReady polls the health URL and then signals Running. A timeout is
// reported as a warning; the service is marked running anyway so that a
// slow model load does not make the supervisor kill the process.
func (w *Wrapper) awaitReady(ctx context.Context, log *logger.Logger) {
	start := time.Now()
	err := resilience.RetryFunc(ctx, resilience.PollConfig(w.Config.PollInterval, w.Config.ReadyTimeout), func() error {
		return w.probe(ctx)
	})
	switch {
	case ctx.Err() != nil:
		return
	case err != nil:
		log.Warn("Service did not report healthy in time, signalling running anyway", map[string]interface{}{
			"url":             w.HealthURL,
			"timeout":         w.Config.ReadyTimeout.String(),
			logger.FieldError: err.Error(),
		})
	default:
		log.Info("Service healthy", map[string]interface{}{
			"url":                w.HealthURL,
			logger.FieldDuration: time.Since(start).Milliseconds(),
		})
	}
	if err := w.Supervisor.Notify(Running); err != nil {
		log.Warn("Supervisor notification failed", logger.ErrorFields("supervisor", err))
	}
}

func (w *Wrapper) probe(ctx context.Context) error {
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.HealthURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		// %v: a client timeout must stay retryable.
		return fmt.Errorf("health probe: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}
