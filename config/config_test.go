package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty config", func(t *testing.T) {
		cfg := ServiceConfig{}
		cfg.ApplyDefaults()
		if cfg.Name != "whisper-gateway" {
			t.Errorf("expected name 'whisper-gateway', got %q", cfg.Name)
		}
		if cfg.Environment != "production" {
			t.Errorf("expected 'production', got %q", cfg.Environment)
		}
		if cfg.Logging.ServiceName != "whisper-gateway" {
			t.Errorf("expected logging service name to follow name, got %q", cfg.Logging.ServiceName)
		}
	})

	t.Run("debug lowers the log level", func(t *testing.T) {
		cfg := ServiceConfig{Debug: true}
		cfg.ApplyDefaults()
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected level 'debug', got %q", cfg.Logging.Level)
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr bool
		errMsg  string
	}{
		{"valid production", ServiceConfig{Name: "svc", Environment: "production"}, false, ""},
		{"valid staging", ServiceConfig{Name: "svc", Environment: "staging"}, false, ""},
		{"missing name", ServiceConfig{Environment: "production"}, true, "config.name is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "invalid"}, true, "config.environment must be one of"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestGatewayDefaults(t *testing.T) {
	var cfg Gateway
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"model", cfg.Whisper.Model, "small"},
		{"chunk length", cfg.Whisper.ChunkLength, 15},
		{"vad model", cfg.Whisper.VADModel, filepath.Join("models", "ggml-silero-v5.1.2.bin")},
		{"host", cfg.HTTP.Host, "127.0.0.1"},
		{"port", cfg.HTTP.Port, 4444},
		{"max file size", cfg.Upload.MaxFileSize, "100MB"},
		{"max body size", cfg.HTTP.MaxBodySize, "101MB"},
		{"log max lines", cfg.Logs.MaxLines, 10000},
		{"retention interval", cfg.Logs.Interval, time.Hour},
		{"ready timeout", cfg.Lifecycle.ReadyTimeout, 30 * time.Second},
		{"poll interval", cfg.Lifecycle.PollInterval, 500 * time.Millisecond},
		{"gate name", cfg.Gate.Name, "model"},
		{"gate max wait", cfg.Gate.MaxWait, time.Duration(0)},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
	if !strings.HasSuffix(cfg.Logs.Dir, "logs") {
		t.Errorf("expected log dir under the install directory, got %q", cfg.Logs.Dir)
	}
}

func TestGatewayValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Gateway)
		errMsg string
	}{
		{"bad backend", func(c *Gateway) { c.Whisper.Backend = "onnx" }, "whisper.backend"},
		{"bad port", func(c *Gateway) { c.HTTP.Port = 70000 }, "http.port"},
		{"bad capability", func(c *Gateway) { c.Device.MinCapability = "seven" }, "device.min_capability"},
		{"bad supervisor", func(c *Gateway) { c.Lifecycle.Supervisor = "upstart" }, "lifecycle.supervisor"},
		{"body below upload", func(c *Gateway) { c.HTTP.MaxBodySize = "10MB" }, "http.max_body_size"},
		{"negative queue", func(c *Gateway) { c.Gate.MaxQueue = -1 }, "gate.max_queue"},
		{"bad sample rate", func(c *Gateway) { c.Observability.SampleRate = 2 }, "observability.sample_rate"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Gateway
			cfg.ApplyDefaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	yamlContent := `
name: test-gateway
environment: staging
whisper:
  model: base
  chunk_length: 20
http:
  port: 5555
gate:
  max_wait: 2s
  max_queue: 4
logs:
  dir: ` + filepath.Join(dir, "logs") + `
  max_lines: 500
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "test-gateway" || cfg.Environment != "staging" {
		t.Errorf("service fields not loaded: %+v", cfg.ServiceConfig)
	}
	if cfg.Whisper.Model != "base" || cfg.Whisper.ChunkLength != 20 {
		t.Errorf("whisper section not loaded: %+v", cfg.Whisper)
	}
	if cfg.HTTP.Port != 5555 {
		t.Errorf("expected port 5555, got %d", cfg.HTTP.Port)
	}
	if cfg.Gate.MaxWait != 2*time.Second || cfg.Gate.MaxQueue != 4 {
		t.Errorf("gate section not loaded: %+v", cfg.Gate)
	}
	if cfg.Logs.MaxLines != 500 {
		t.Errorf("expected squashed retention max_lines 500, got %d", cfg.Logs.MaxLines)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "environment")
	content := strings.Join([]string{
		"WHISPER_MODEL=medium",
		"CHUNK_LENGTH=10",
		"VAD_FILTER=true",
		"CUDA_DEVICE_ID=1",
		"WHISPER_PORT=4545",
		"MAX_FILE_SIZE=20MB",
		"LOG_DIR=" + filepath.Join(dir, "logs"),
		"LOG_RETENTION_INTERVAL=30m",
		"SUPERVISOR=log",
	}, "\n")
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides variables that are already set, and the
	// test must not leak them either.
	for _, k := range []string{"WHISPER_MODEL", "CHUNK_LENGTH", "VAD_FILTER", "CUDA_DEVICE_ID",
		"WHISPER_PORT", "MAX_FILE_SIZE", "LOG_DIR", "LOG_RETENTION_INTERVAL", "SUPERVISOR"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load("", envPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Whisper.Model != "medium" || cfg.Whisper.ChunkLength != 10 || !cfg.Whisper.WarmUpVAD {
		t.Errorf("whisper env not applied: %+v", cfg.Whisper)
	}
	if cfg.Device.Index != 1 {
		t.Errorf("expected device index 1, got %d", cfg.Device.Index)
	}
	if cfg.HTTP.Port != 4545 {
		t.Errorf("expected port 4545, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.MaxBodySize != "21MB" {
		t.Errorf("expected body limit derived from the upload limit, got %q", cfg.HTTP.MaxBodySize)
	}
	if cfg.Logs.Interval != 30*time.Minute {
		t.Errorf("expected 30m retention interval, got %s", cfg.Logs.Interval)
	}
	if cfg.Lifecycle.Supervisor != "log" {
		t.Errorf("expected log supervisor, got %q", cfg.Lifecycle.Supervisor)
	}
}

func TestProcessEnvWinsOverEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "environment")
	if err := os.WriteFile(envPath, []byte("WHISPER_MODEL=medium\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WHISPER_MODEL", "tiny")
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))

	cfg, err := Load("", envPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Whisper.Model != "tiny" {
		t.Errorf("expected process env to win, got %q", cfg.Whisper.Model)
	}
}

func TestLoadMissingFiles(t *testing.T) {
	t.Setenv("LOG_DIR", t.TempDir())
	if _, err := Load("/nonexistent/config.yml", "/nonexistent/environment"); err != nil {
		t.Fatalf("expected Load to succeed with missing files, got %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("LOG_DIR", t.TempDir())
	t.Setenv("WHISPER_BACKEND", "onnx")
	_, err := Load("", "")
	if err == nil || !strings.Contains(err.Error(), "config validation") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type mockFS struct {
	files  map[string]bool
	loaded []string
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error {
	m.loaded = append(m.loaded, path)
	return nil
}

func TestLoadConfigUsesFileSystem(t *testing.T) {
	fs := &mockFS{files: map[string]bool{DefaultEnvFile: true}}
	var cfg Gateway
	err := LoadConfig("whisper-gateway", &cfg,
		WithFileSystem(fs),
		WithEnvFile(DefaultEnvFile),
	)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(fs.loaded) != 1 || fs.loaded[0] != DefaultEnvFile {
		t.Errorf("expected env file loaded through the filesystem, got %v", fs.loaded)
	}

	fs = &mockFS{files: map[string]bool{}}
	if err := LoadConfig("whisper-gateway", &cfg, WithFileSystem(fs), WithEnvFile("/missing")); err != nil {
		t.Fatal(err)
	}
	if len(fs.loaded) != 0 {
		t.Errorf("missing env file should be skipped, got %v", fs.loaded)
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	WithConfigFile("/path/to/config.yml")(&lc)
	WithEnvFile("/path/to/environment")(&lc)
	WithEnvBindings(map[string]string{"whisper.model": "WHISPER_MODEL"})(&lc)
	if lc.ConfigFile != "/path/to/config.yml" {
		t.Errorf("expected config file path, got %q", lc.ConfigFile)
	}
	if lc.EnvFile != "/path/to/environment" {
		t.Errorf("expected env file path, got %q", lc.EnvFile)
	}
	if lc.EnvBindings["whisper.model"] != "WHISPER_MODEL" {
		t.Errorf("expected binding, got %v", lc.EnvBindings)
	}
}
