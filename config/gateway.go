package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kbukum/whisper-gateway/admission"
	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/lifecycle"
	"github.com/kbukum/whisper-gateway/observability"
	"github.com/kbukum/whisper-gateway/resilience"
	"github.com/kbukum/whisper-gateway/retention"
	"github.com/kbukum/whisper-gateway/server"
	"github.com/kbukum/whisper-gateway/transcription"
	"github.com/kbukum/whisper-gateway/util"
	"github.com/kbukum/whisper-gateway/workfile"
)

// Gateway is the complete service configuration.
type Gateway struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Whisper       transcription.Config  `yaml:"whisper" mapstructure:"whisper"`
	Device        device.Config         `yaml:"device" mapstructure:"device"`
	HTTP          server.Config         `yaml:"http" mapstructure:"http"`
	Upload        admission.Config      `yaml:"upload" mapstructure:"upload"`
	WorkFile      workfile.Config       `yaml:"workfile" mapstructure:"workfile"`
	Gate          resilience.GateConfig `yaml:"gate" mapstructure:"gate"`
	Logs          Logs                  `yaml:"logs" mapstructure:"logs"`
	Lifecycle     lifecycle.Config      `yaml:"lifecycle" mapstructure:"lifecycle"`
	Auth          Auth                  `yaml:"auth" mapstructure:"auth"`
	Observability observability.Config  `yaml:"observability" mapstructure:"observability"`
}

// Logs configures the three log streams and their retention.
type Logs struct {
	// Dir holds service.log, stdout.log and stderr.log.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// Fresh deletes the log files at startup.
	Fresh bool `yaml:"fresh" mapstructure:"fresh"`

	retention.Config `yaml:",inline" mapstructure:",squash"`
}

// Auth configures the optional API key check.
type Auth struct {
	// APIKeyHash is a bcrypt hash. Empty disables the check.
	APIKeyHash string `yaml:"api_key_hash" mapstructure:"api_key_hash"`
}

// GatewayEnv maps configuration keys to the environment variables the
// installer writes to the environment file.
var GatewayEnv = map[string]string{
	"environment":                 "WHISPER_ENV",
	"logging.level":               "LOG_LEVEL",
	"whisper.model":               "WHISPER_MODEL",
	"whisper.chunk_length":        "CHUNK_LENGTH",
	"whisper.warmup_vad":          "VAD_FILTER",
	"whisper.backend":             "WHISPER_BACKEND",
	"whisper.binary":              "WHISPER_BINARY",
	"whisper.model_dir":           "WHISPER_MODEL_DIR",
	"whisper.vad_model":           "WHISPER_VAD_MODEL",
	"whisper.sidecar_url":         "WHISPER_SIDECAR_URL",
	"whisper.skip_warmup":         "WHISPER_SKIP_WARMUP",
	"whisper.threads":             "WHISPER_THREADS",
	"device.index":                "CUDA_DEVICE_ID",
	"device.force_cpu":            "WHISPER_FORCE_CPU",
	"device.min_capability":       "CUDA_MIN_CAPABILITY",
	"device.ancient_floor":        "CUDA_ANCIENT_FLOOR",
	"http.host":                   "WHISPER_HOST",
	"http.port":                   "WHISPER_PORT",
	"http.shutdown_timeout":       "WHISPER_SHUTDOWN_TIMEOUT",
	"http.cors.allowed_origins":   "CORS_ALLOWED_ORIGINS",
	"http.write_timeout":          "WHISPER_WRITE_TIMEOUT",
	"http.read_timeout":           "WHISPER_READ_TIMEOUT",
	"http.idle_timeout":           "WHISPER_IDLE_TIMEOUT",
	"http.cors.allow_credentials": "CORS_ALLOW_CREDENTIALS",
	"upload.max_file_size":        "MAX_FILE_SIZE",
	"workfile.dir":                "WHISPER_WORK_DIR",
	"gate.max_wait":               "GATE_MAX_WAIT",
	"gate.max_queue":              "GATE_MAX_QUEUE",
	"logs.dir":                    "LOG_DIR",
	"logs.fresh":                  "FRESH_LOGS",
	"logs.max_lines":              "LOG_MAX_LINES",
	"logs.interval":               "LOG_RETENTION_INTERVAL",
	"logs.min_size":               "LOG_MIN_SIZE",
	"lifecycle.supervisor":        "SUPERVISOR",
	"lifecycle.ready_timeout":     "READY_TIMEOUT",
	"lifecycle.poll_interval":     "READY_POLL_INTERVAL",
	"auth.api_key_hash":           "API_KEY_HASH",
	"observability.endpoint":      "OTEL_ENDPOINT",
	"observability.insecure":      "OTEL_INSECURE",
	"observability.sample_rate":   "OTEL_SAMPLE_RATE",
	"observability.interval":      "OTEL_METRIC_INTERVAL",
}

// bodyOverhead is added to the upload limit for the multipart framing and
// the other form fields.
const bodyOverhead = 1 << 20

// ApplyDefaults fills in unset fields across every section.
func (c *Gateway) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Whisper.ApplyDefaults()
	c.Device.ApplyDefaults()
	c.Upload.ApplyDefaults()
	if c.HTTP.MaxBodySize == "" {
		limit := util.ParseSize(c.Upload.MaxFileSize, admission.DefaultMaxFileSize)
		c.HTTP.MaxBodySize = util.FormatSize(limit + bodyOverhead)
	}
	c.HTTP.ApplyDefaults()
	c.WorkFile.ApplyDefaults()
	c.Gate.ApplyDefaults()
	if c.Logs.Dir == "" {
		c.Logs.Dir = defaultLogDir()
	}
	c.Logs.Config.ApplyDefaults()
	c.Lifecycle.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate checks every section and returns the first error found.
func (c *Gateway) Validate() error {
	checks := []func() error{
		c.ServiceConfig.Validate,
		c.Whisper.Validate,
		c.Device.Validate,
		c.HTTP.Validate,
		c.Upload.Validate,
		c.WorkFile.Validate,
		c.Gate.Validate,
		c.Logs.Config.Validate,
		c.Lifecycle.Validate,
		c.Observability.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	if c.Logs.Dir == "" {
		return fmt.Errorf("logs.dir is required")
	}
	upload := util.ParseSize(c.Upload.MaxFileSize, admission.DefaultMaxFileSize)
	if body := util.ParseSize(c.HTTP.MaxBodySize, -1); body < upload {
		return fmt.Errorf("http.max_body_size (%s) must not be below upload.max_file_size (%s)",
			c.HTTP.MaxBodySize, c.Upload.MaxFileSize)
	}
	return nil
}

// Load reads the gateway configuration from the optional YAML file, the
// environment file and the process environment, then applies defaults and
// validates it.
func Load(configFile, envFile string) (*Gateway, error) {
	var cfg Gateway
	err := LoadConfig("whisper-gateway", &cfg,
		WithConfigFile(configFile),
		WithEnvFile(envFile),
		WithEnvBindings(GatewayEnv),
	)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// defaultLogDir is <install>/logs, where install is the executable's directory.
func defaultLogDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "logs"
	}
	return filepath.Join(filepath.Dir(exe), "logs")
}
