// Package workfile stages request payloads as short-lived files on disk.
//
// A working file exists only for the duration of the body callback passed
// to With or WithFill and is removed on every exit path, including panics.
package workfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kbukum/whisper-gateway/logger"
)

// Config configures where working files are created.
type Config struct {
	// Dir is the directory for working files. Empty uses os.TempDir().
	Dir string `yaml:"dir" mapstructure:"dir"`
	// Prefix is prepended to every generated file name.
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "whisper-"
	}
}

// Validate checks that Dir, when set, is an existing directory.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return nil
	}
	info, err := os.Stat(c.Dir)
	if err != nil {
		return fmt.Errorf("workfile.dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workfile.dir: %s is not a directory", c.Dir)
	}
	return nil
}

// Stager creates and removes working files.
type Stager struct {
	config Config
	log    *logger.Logger
}

// NewStager creates a Stager. Removal failures are logged to log.
func NewStager(cfg Config, log *logger.Logger) *Stager {
	cfg.ApplyDefaults()
	return &Stager{config: cfg, log: log.WithComponent("workfile")}
}

// With copies src into a new file ending in ext, then runs body with its
// path. The file is removed afterwards whatever body returns.
func (s *Stager) With(src io.Reader, ext string, body func(path string) error) error {
	return s.WithFill(ext, func(f *os.File) error {
		_, err := io.Copy(f, src)
		return err
	}, body)
}

// WithFill is With for payloads that need to write to the file directly,
// such as encoders that seek.
func (s *Stager) WithFill(ext string, fill func(f *os.File) error, body func(path string) error) error {
	f, err := os.CreateTemp(s.config.Dir, s.config.Prefix+"*"+ext)
	if err != nil {
		return fmt.Errorf("workfile: create: %w", err)
	}
	path := f.Name()
	defer s.remove(path)

	if err := fill(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("workfile: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("workfile: sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("workfile: close %s: %w", path, err)
	}

	return body(path)
}

func (s *Stager) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("Failed to remove working file", map[string]interface{}{
			logger.FieldPath:  path,
			logger.FieldError: err.Error(),
		})
	}
}
