package transcription

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Backend names.
const (
	BackendWhisperCPP = "whispercpp"
	BackendSidecar    = "sidecar"
)

// DefaultVADModelFile is the Silero VAD model looked up in ModelDir when
// VADModel is unset.
const DefaultVADModelFile = "ggml-silero-v5.1.2.bin"

// Config configures the model and the engine that runs it.
type Config struct {
	// Model is the Whisper model size or name (tiny, base, small, ...).
	Model string `yaml:"model" mapstructure:"model"`
	// Backend selects the engine: whispercpp or sidecar.
	Backend string `yaml:"backend" mapstructure:"backend"`
	// ChunkLength is the decoding window in seconds.
	ChunkLength int `yaml:"chunk_length" mapstructure:"chunk_length"`
	// WarmUpVAD enables voice-activity filtering for the warm-up pass.
	WarmUpVAD bool `yaml:"warmup_vad" mapstructure:"warmup_vad"`
	// SkipWarmUp disables the warm-up pass.
	SkipWarmUp bool `yaml:"skip_warmup" mapstructure:"skip_warmup"`
	// Binary is the whisper.cpp CLI path.
	Binary string `yaml:"binary" mapstructure:"binary"`
	// ModelDir holds ggml model files.
	ModelDir string `yaml:"model_dir" mapstructure:"model_dir"`
	// VADModel is the whisper.cpp VAD model path. Defaults to
	// DefaultVADModelFile under ModelDir.
	VADModel string `yaml:"vad_model" mapstructure:"vad_model"`
	// Threads is the CPU thread count passed to the engine. 0 lets it decide.
	Threads int `yaml:"threads" mapstructure:"threads"`
	// SidecarURL is the faster-whisper sidecar base URL.
	SidecarURL string `yaml:"sidecar_url" mapstructure:"sidecar_url"`
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "small"
	}
	if c.Backend == "" {
		c.Backend = BackendWhisperCPP
	}
	if c.ChunkLength == 0 {
		c.ChunkLength = 15
	}
	if c.Binary == "" {
		c.Binary = "whisper-cli"
	}
	if c.ModelDir == "" {
		c.ModelDir = "models"
	}
	if c.VADModel == "" {
		c.VADModel = filepath.Join(c.ModelDir, DefaultVADModelFile)
	}
	if c.SidecarURL == "" {
		c.SidecarURL = "http://127.0.0.1:8387"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("whisper.model is required")
	}
	switch c.Backend {
	case BackendWhisperCPP, BackendSidecar:
	default:
		return fmt.Errorf("whisper.backend must be one of [%s, %s] (got: %s)", BackendWhisperCPP, BackendSidecar, c.Backend)
	}
	if c.ChunkLength < 1 || c.ChunkLength > 30 {
		return fmt.Errorf("whisper.chunk_length must be between 1 and 30 seconds (got: %d)", c.ChunkLength)
	}
	if c.Threads < 0 {
		return fmt.Errorf("whisper.threads must be non-negative (got: %d)", c.Threads)
	}
	return nil
}
