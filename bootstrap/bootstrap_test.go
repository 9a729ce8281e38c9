package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/kbukum/whisper-gateway/component"
	"github.com/kbukum/whisper-gateway/config"
	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/transcription"
	"github.com/kbukum/whisper-gateway/transcription/transcriptiontest"
)

func testGateway(t *testing.T) *config.Gateway {
	t.Helper()
	cfg := &config.Gateway{}
	cfg.Logs.Dir = t.TempDir()
	cfg.WorkFile.Dir = t.TempDir()
	cfg.ApplyDefaults()
	cfg.HTTP.Port = 0
	cfg.HTTP.ShutdownTimeout = 5
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

func noGPU() device.Prober {
	return device.ProberFunc(func(ctx context.Context, index int) (device.Probe, error) {
		return device.Probe{}, nil
	})
}

func capableGPU() device.Prober {
	return device.ProberFunc(func(ctx context.Context, index int) (device.Probe, error) {
		return device.Probe{
			Present:    true,
			Name:       "Tesla T4",
			Capability: device.Capability{Major: 7, Minor: 5},
			Runtime:    "12.4",
		}, nil
	})
}

func newTestApp(t *testing.T, cfg *config.Gateway, prober device.Prober, factory transcription.Factory) *App {
	t.Helper()
	app, err := New(cfg,
		WithLogger(logger.Nop()),
		WithProber(prober),
		WithFactory(factory),
		WithMeter(noop.NewMeterProvider().Meter("test")),
		WithGracefulTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return app
}

// runApp starts app.Run in the background and waits for the listener.
func runApp(t *testing.T, app *App) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !app.Server.Listening() {
		select {
		case err := <-done:
			stop()
			t.Fatalf("Run exited before listening: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			stop()
			t.Fatal("gateway did not start listening")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func TestRunServesTranscriptions(t *testing.T) {
	cfg := testGateway(t)
	engine := &transcriptiontest.Engine{Text: "hello world", Language: "en"}
	var seen []device.Profile
	app := newTestApp(t, cfg, noGPU(), transcriptiontest.Factory(engine, &seen))
	stop := runApp(t, app)

	base := "http://" + app.Server.Addr()
	resp, err := http.Get(base + "/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	var health struct {
		Status string `json:"status"`
		Device string `json:"device"`
		Model  string `json:"model"`
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || health.Status != "ok" {
		t.Fatalf("expected ready health, got %d %+v", resp.StatusCode, health)
	}
	if health.Device != "cpu" || health.Model != "small" {
		t.Errorf("unexpected health body %+v", health)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(bytes.Repeat([]byte{1}, 256))
	mw.Close()
	resp, err = http.Post(base+"/v1/audio/transcriptions", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || out.Text != "hello world" {
		t.Errorf("expected transcription, got %d %+v", resp.StatusCode, out)
	}

	// Warm-up plus the request.
	if engine.Calls() != 2 {
		t.Errorf("expected 2 engine calls, got %d", engine.Calls())
	}
	if len(seen) != 1 || seen[0].Backend != device.Fallback {
		t.Errorf("expected a single CPU load, got %+v", seen)
	}

	if err := stop(); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if !engine.Closed() {
		t.Error("expected engine closed on shutdown")
	}
}

func TestRunSkipsWarmUp(t *testing.T) {
	cfg := testGateway(t)
	cfg.Whisper.SkipWarmUp = true
	engine := &transcriptiontest.Engine{}
	app := newTestApp(t, cfg, noGPU(), transcriptiontest.Factory(engine, nil))
	stop := runApp(t, app)
	if err := stop(); err != nil {
		t.Fatal(err)
	}
	if engine.Calls() != 0 {
		t.Errorf("expected no warm-up call, got %d", engine.Calls())
	}
}

func TestRunFailsWhenCPULoadFails(t *testing.T) {
	cfg := testGateway(t)
	engine := &transcriptiontest.Engine{}
	app := newTestApp(t, cfg, noGPU(), transcriptiontest.Factory(engine, nil, device.Fallback))

	err := app.Run(context.Background())
	if err == nil {
		t.Fatal("expected startup failure")
	}
	var initErr *transcription.ResourceInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected ResourceInitError, got %v", err)
	}
	if app.Server.Listening() {
		t.Error("listener must not open when the model cannot load")
	}
}

func TestModelComponentDowngrade(t *testing.T) {
	cfg := testGateway(t)
	cfg.Whisper.SkipWarmUp = true
	engine := &transcriptiontest.Engine{}
	var seen []device.Profile
	app := newTestApp(t, cfg, capableGPU(), transcriptiontest.Factory(engine, &seen, device.Accelerated))

	if err := app.Model.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer app.Model.Stop(context.Background())

	if len(seen) != 2 || seen[0].Backend != device.Accelerated || seen[1].Backend != device.Fallback {
		t.Fatalf("expected GPU then CPU load attempts, got %+v", seen)
	}
	h := app.Model.Health(context.Background())
	if h.Status != component.StatusDegraded || h.Message == "" {
		t.Errorf("expected degraded health with a reason, got %+v", h)
	}
	if p := app.Model.Handle().Profile(); p.Backend != device.Fallback || p.Name != "Tesla T4" {
		t.Errorf("expected CPU profile keeping the GPU identity, got %+v", p)
	}
}

func TestModelComponentHealthWhileLoading(t *testing.T) {
	cfg := testGateway(t)
	cfg.Whisper.SkipWarmUp = true
	release := make(chan struct{})
	probing := make(chan struct{})
	prober := device.ProberFunc(func(ctx context.Context, index int) (device.Probe, error) {
		close(probing)
		<-release
		return device.Probe{}, nil
	})
	app := newTestApp(t, cfg, prober, transcriptiontest.Factory(&transcriptiontest.Engine{}, nil))

	if h := app.Model.Health(context.Background()); h.Status != component.StatusUnhealthy || h.Message != "not loaded" {
		t.Errorf("expected not loaded before Start, got %+v", h)
	}

	started := make(chan error, 1)
	go func() { started <- app.Model.Start(context.Background()) }()
	<-probing
	if h := app.Model.Health(context.Background()); h.Message != "loading" {
		t.Errorf("expected loading while starting, got %+v", h)
	}
	close(release)
	if err := <-started; err != nil {
		t.Fatal(err)
	}
	if h := app.Model.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy after load, got %+v", h)
	}
	if err := app.Model.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if app.Model.Handle() != nil {
		t.Error("expected handle released after Stop")
	}
}

func TestHooks(t *testing.T) {
	cfg := testGateway(t)
	cfg.Whisper.SkipWarmUp = true
	app := newTestApp(t, cfg, noGPU(), transcriptiontest.Factory(&transcriptiontest.Engine{}, nil))

	var order []string
	app.OnReady(func(ctx context.Context) error {
		order = append(order, "ready")
		return nil
	})
	app.OnStop(func(ctx context.Context) error {
		order = append(order, "stop")
		return nil
	})
	stop := runApp(t, app)
	if err := stop(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "ready" || order[1] != "stop" {
		t.Errorf("unexpected hook order %v", order)
	}
}

func TestOnReadyFailureStopsApp(t *testing.T) {
	cfg := testGateway(t)
	cfg.Whisper.SkipWarmUp = true
	engine := &transcriptiontest.Engine{}
	app := newTestApp(t, cfg, noGPU(), transcriptiontest.Factory(engine, nil))
	app.OnReady(func(ctx context.Context) error { return errors.New("boom") })

	if err := app.Run(context.Background()); err == nil {
		t.Fatal("expected hook failure")
	}
	if !engine.Closed() {
		t.Error("expected engine closed after a failed start")
	}
}

func TestEngineFactoryBackends(t *testing.T) {
	for _, backend := range []string{transcription.BackendWhisperCPP, transcription.BackendSidecar} {
		cfg := transcription.Config{Backend: backend}
		cfg.ApplyDefaults()
		if EngineFactory(cfg, nil) == nil {
			t.Errorf("%s: expected a factory", backend)
		}
	}
}
