// Package whispercpp runs the whisper.cpp command-line program as a
// transcription engine.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/process"
	"github.com/kbukum/whisper-gateway/transcription"
)

// EngineName is reported by Engine.Name.
const EngineName = "whispercpp"

// Config holds what the engine needs beyond the device profile.
type Config struct {
	Binary   string
	ModelDir string
	Model    string
	VADModel string
	Threads  int
	// Stderr receives the program's diagnostic output.
	Stderr io.Writer
	// Run executes the program. Defaults to process.Run.
	Run process.RunFunc
}

// Engine is one model file bound to one device.
type Engine struct {
	cfg       Config
	profile   device.Profile
	modelPath string
}

var _ transcription.Engine = (*Engine)(nil)

// ModelFile returns the ggml file name for a model at a precision.
func ModelFile(model string, precision device.Precision) string {
	if precision == device.Int8 {
		return fmt.Sprintf("ggml-%s-q8_0.bin", model)
	}
	return fmt.Sprintf("ggml-%s.bin", model)
}

// New checks that the binary, the model file and the VAD model exist. It
// does not start the program.
func New(cfg Config, profile device.Profile) (*Engine, error) {
	if cfg.Run == nil {
		cfg.Run = process.Run
		if !process.Available(cfg.Binary) {
			return nil, fmt.Errorf("whispercpp: %w: %s", process.ErrNotFound, cfg.Binary)
		}
	}
	modelPath := filepath.Join(cfg.ModelDir, ModelFile(cfg.Model, profile.Precision))
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whispercpp: model file: %w", err)
	}
	// Request decoding always enables VAD.
	if cfg.VADModel == "" {
		return nil, errors.New("whispercpp: vad model is not configured")
	}
	if _, err := os.Stat(cfg.VADModel); err != nil {
		return nil, fmt.Errorf("whispercpp: vad model: %w", err)
	}
	return &Engine{cfg: cfg, profile: profile, modelPath: modelPath}, nil
}

// Factory adapts New to transcription.Factory.
func Factory(cfg Config) transcription.Factory {
	return func(_ context.Context, profile device.Profile) (transcription.Engine, error) {
		return New(cfg, profile)
	}
}

// Name implements transcription.Engine.
func (e *Engine) Name() string { return EngineName }

// Close implements transcription.Engine. Each call runs its own process,
// so there is nothing to release.
func (e *Engine) Close() error { return nil }

// Transcribe implements transcription.Engine.
func (e *Engine) Transcribe(ctx context.Context, path string, opts transcription.Options) (*transcription.Result, error) {
	res, err := e.cfg.Run(ctx, process.Command{
		Binary:     e.cfg.Binary,
		Args:       e.args(path, opts),
		StderrSink: e.cfg.Stderr,
	})
	if err != nil {
		// ExitError already carries the stderr tail.
		var exitErr *process.ExitError
		if tail := res.StderrTail(3); tail != "" && !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("whispercpp: %w: %s", err, tail)
		}
		return nil, fmt.Errorf("whispercpp: %w", err)
	}
	return &transcription.Result{
		Text:     collapseLines(string(res.Stdout)),
		Language: detectedLanguage(res.Stderr),
	}, nil
}

func (e *Engine) args(path string, opts transcription.Options) []string {
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	args := []string{
		"-m", e.modelPath,
		"-f", path,
		"-l", lang,
		"-bs", strconv.Itoa(max(opts.BeamSize, 1)),
		"-bo", strconv.Itoa(max(opts.BestOf, 1)),
		"-tp", strconv.FormatFloat(opts.Temperature, 'f', -1, 64),
		// No -np: it silences the log that carries the detected language.
		"-nf", "-nt",
	}
	if !opts.ConditionOnPreviousText {
		args = append(args, "-mc", "0")
	}
	if e.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.cfg.Threads))
	}
	if !e.profile.IsAccelerated() {
		args = append(args, "-ng")
	} else {
		args = append(args, "-dev", strconv.Itoa(e.profile.Index))
	}
	if opts.VADFilter {
		args = append(args,
			"--vad", "-vm", e.cfg.VADModel,
			"--vad-min-speech-duration-ms", strconv.Itoa(opts.VAD.MinSpeechMS),
			"--vad-min-silence-duration-ms", strconv.Itoa(opts.VAD.MinSilenceMS),
			"--vad-speech-pad-ms", strconv.Itoa(opts.VAD.SpeechPadMS),
		)
	}
	return args
}

var languageRe = regexp.MustCompile(`auto-detected language:\s*([a-z]{2,3})`)

func detectedLanguage(stderr []byte) string {
	if m := languageRe.FindSubmatch(stderr); m != nil {
		return string(m[1])
	}
	return ""
}

// collapseLines joins the per-segment output lines with single spaces.
func collapseLines(out string) string {
	return strings.Join(strings.Fields(out), " ")
}
