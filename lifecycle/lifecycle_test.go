package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/kbukum/whisper-gateway/logger"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingSupervisor struct {
	states chan State
}

func newRecordingSupervisor() *recordingSupervisor {
	return &recordingSupervisor{states: make(chan State, 4)}
}

func (s *recordingSupervisor) Notify(state State) error {
	s.states <- state
	return nil
}

func (s *recordingSupervisor) expect(t *testing.T, want State) {
	t.Helper()
	select {
	case got := <-s.states:
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func blockingServer(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func healthServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastConfig() Config {
	return Config{Supervisor: SupervisorLog, ReadyTimeout: 150 * time.Millisecond, PollInterval: 20 * time.Millisecond}
}

func TestRunSignalsRunningAfterHealthTimeout(t *testing.T) {
	var out syncBuffer
	sup := newRecordingSupervisor()
	w := &Wrapper{
		Server:     blockingServer,
		HealthURL:  healthServer(t, http.StatusServiceUnavailable).URL + "/v1/health",
		Supervisor: sup,
		Config:     fastConfig(),
		Log:        logger.NewWithWriter(&out, "test"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	sup.expect(t, Running)
	if !strings.Contains(out.String(), "did not report healthy in time") {
		t.Errorf("expected a timeout warning, got %q", out.String())
	}
	if !strings.Contains(out.String(), `"level":"warn"`) {
		t.Errorf("expected warn level, got %q", out.String())
	}

	cancel()
	sup.expect(t, Stopping)
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestRunSignalsRunningWhenHealthy(t *testing.T) {
	var out syncBuffer
	sup := newRecordingSupervisor()
	w := &Wrapper{
		Server:     blockingServer,
		HealthURL:  healthServer(t, http.StatusOK).URL,
		Supervisor: sup,
		Config:     Config{Supervisor: SupervisorLog, ReadyTimeout: 5 * time.Second, PollInterval: 20 * time.Millisecond},
		Log:        logger.NewWithWriter(&out, "test"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	sup.expect(t, Running)
	if !strings.Contains(out.String(), "Service healthy") {
		t.Errorf("expected healthy log line, got %q", out.String())
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestRunStopsBothTasksOnSignal(t *testing.T) {
	sup := newRecordingSupervisor()
	var serverStopped, retentionStopped bool
	var mu sync.Mutex
	w := &Wrapper{
		Server: func(ctx context.Context) error {
			<-ctx.Done()
			mu.Lock()
			serverStopped = true
			mu.Unlock()
			return nil
		},
		Retention: func(ctx context.Context) error {
			<-ctx.Done()
			mu.Lock()
			retentionStopped = true
			mu.Unlock()
			return ctx.Err()
		},
		HealthURL:  healthServer(t, http.StatusOK).URL,
		Supervisor: sup,
		Config:     fastConfig(),
		Log:        logger.Nop(),
		Signals:    []os.Signal{syscall.SIGUSR1},
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	sup.expect(t, Running)

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	sup.expect(t, Stopping)
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !serverStopped || !retentionStopped {
		t.Errorf("tasks not stopped: server=%v retention=%v", serverStopped, retentionStopped)
	}
}

func TestRunReturnsServerError(t *testing.T) {
	loadErr := errors.New("model failed to load on cpu")
	sup := newRecordingSupervisor()
	w := &Wrapper{
		Server:     func(context.Context) error { return loadErr },
		HealthURL:  healthServer(t, http.StatusServiceUnavailable).URL,
		Supervisor: sup,
		Config:     Config{Supervisor: SupervisorLog, ReadyTimeout: 5 * time.Second, PollInterval: 20 * time.Millisecond},
		Log:        logger.Nop(),
	}

	err := w.Run(context.Background())
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected the server error, got %v", err)
	}
	sup.expect(t, Stopping)
}

func TestRunServerExitWithoutError(t *testing.T) {
	w := &Wrapper{
		Server:     func(context.Context) error { return nil },
		HealthURL:  healthServer(t, http.StatusOK).URL,
		Supervisor: newRecordingSupervisor(),
		Config:     fastConfig(),
		Log:        logger.Nop(),
	}
	if err := w.Run(context.Background()); !errors.Is(err, ErrServerExited) {
		t.Fatalf("expected ErrServerExited, got %v", err)
	}
}

func TestSystemdSupervisor(t *testing.T) {
	var sent []string
	s := &SystemdSupervisor{
		log: logger.Nop(),
		notify: func(_ bool, state string) (bool, error) {
			sent = append(sent, state)
			return true, nil
		},
	}
	if err := s.Notify(Running); err != nil {
		t.Fatal(err)
	}
	if err := s.Notify(Stopping); err != nil {
		t.Fatal(err)
	}
	if len(sent) != 2 || sent[0] != daemon.SdNotifyReady || sent[1] != daemon.SdNotifyStopping {
		t.Errorf("unexpected notifications %q", sent)
	}

	s.notify = func(bool, string) (bool, error) { return false, errors.New("socket closed") }
	if err := s.Notify(Running); err == nil {
		t.Error("expected notify error to surface")
	}
}

func TestSystemdSupervisorWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	s, err := NewSupervisor(SupervisorSystemd, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Notify(Running); err != nil {
		t.Errorf("expected silent no-op outside systemd, got %v", err)
	}
}

func TestNewSupervisor(t *testing.T) {
	if _, err := NewSupervisor(SupervisorLog, logger.Nop()); err != nil {
		t.Errorf("log supervisor: %v", err)
	}
	if _, err := NewSupervisor("upstart", logger.Nop()); err == nil {
		t.Error("expected unknown supervisor error")
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Supervisor != SupervisorSystemd || cfg.ReadyTimeout != 30*time.Second || cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}

	cfg.PollInterval = time.Minute
	if err := cfg.Validate(); err == nil {
		t.Error("expected poll interval above ready timeout to fail")
	}
}
