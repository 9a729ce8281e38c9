// Package admission decides whether an upload may enter the transcription
// pipeline. All checks run before any working file is created or the model
// gate is touched. Content is never inspected; only the declared name and
// size count.
package admission

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kbukum/whisper-gateway/errors"
	"github.com/kbukum/whisper-gateway/util"
	"github.com/kbukum/whisper-gateway/validation"
)

// DefaultExtensions is the audio allow-list.
var DefaultExtensions = []string{
	".mp3", ".mp4", ".mpeg", ".mpga", ".m4a", ".wav", ".webm", ".ogg", ".flac", ".opus",
}

const (
	// DefaultExtension is assumed when the filename has none.
	DefaultExtension = ".wav"
	// DefaultMaxFileSize is 100 MiB.
	DefaultMaxFileSize int64 = 100 * 1024 * 1024
)

// Config configures admission limits.
type Config struct {
	// MaxFileSize is a human-readable size such as "100MB".
	MaxFileSize string `yaml:"max_file_size" mapstructure:"max_file_size"`
	// Extensions overrides the allow-list.
	Extensions []string `yaml:"extensions" mapstructure:"extensions"`
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxFileSize == "" {
		c.MaxFileSize = "100MB"
	}
	if len(c.Extensions) == 0 {
		c.Extensions = DefaultExtensions
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if util.ParseSize(c.MaxFileSize, -1) <= 0 {
		return fmt.Errorf("upload.max_file_size must be a positive size (got: %q)", c.MaxFileSize)
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("upload.extensions entries must start with a dot (got: %q)", ext)
		}
	}
	return nil
}

// Policy converts the configuration.
func (c *Config) Policy() Policy {
	exts := make([]string, len(c.Extensions))
	for i, e := range c.Extensions {
		exts[i] = strings.ToLower(e)
	}
	return Policy{MaxFileSize: util.ParseSize(c.MaxFileSize, DefaultMaxFileSize), Extensions: exts}
}

// Policy holds the admission limits.
type Policy struct {
	MaxFileSize int64
	Extensions  []string
}

// DefaultPolicy returns the 100 MiB limit and the default allow-list.
func DefaultPolicy() Policy {
	return Policy{MaxFileSize: DefaultMaxFileSize, Extensions: DefaultExtensions}
}

// Upload is a received multipart file before it is staged.
type Upload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// Fields are the client-supplied form options.
type Fields struct {
	ModelName      string  `json:"model_name" form:"model_name" validate:"omitempty,max=64"`
	Language       string  `json:"language" form:"language" validate:"omitempty,language"`
	Temperature    float64 `json:"temperature" form:"temperature" validate:"gte=0,lte=1"`
	ResponseFormat string  `json:"response_format" form:"response_format" validate:"omitempty,oneof=json text"`
}

// Response formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Request is an admitted transcription request.
type Request struct {
	Upload    Upload
	Extension string
	Fields
}

// Extension returns the lower-cased extension of filename, or the default
// when it has none. Leading dots of a bare name do not count.
func Extension(filename string) string {
	base := strings.TrimLeft(filepath.Base(filename), ".")
	if ext := filepath.Ext(base); ext != "" {
		return strings.ToLower(ext)
	}
	return DefaultExtension
}

// CheckExtension returns the extension of filename, or UnsupportedFormat
// when p does not allow it.
func CheckExtension(filename string, p Policy) (string, error) {
	ext := Extension(filename)
	if !slices.Contains(p.Extensions, ext) {
		return "", errors.UnsupportedFormat(ext, p.Extensions)
	}
	return ext, nil
}

// Admit validates up and fields against p. Checks run in order and stop at
// the first failure: extension, empty payload, size, then form fields.
func Admit(up Upload, fields Fields, p Policy) (Request, error) {
	ext, err := CheckExtension(up.Filename, p)
	if err != nil {
		return Request{}, err
	}
	if up.Size <= 0 {
		return Request{}, errors.EmptyPayload()
	}
	if up.Size > p.MaxFileSize {
		return Request{}, errors.PayloadTooLarge(up.Size, p.MaxFileSize)
	}
	if err := validation.Validate(fields); err != nil {
		return Request{}, err
	}
	if fields.ResponseFormat == "" {
		fields.ResponseFormat = FormatJSON
	}
	if fields.ModelName == "" {
		fields.ModelName = "whisper-1"
	}
	return Request{Upload: up, Extension: ext, Fields: fields}, nil
}
