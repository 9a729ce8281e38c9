// Package whisper talks to a faster-whisper HTTP sidecar. The sidecar owns
// the model; this engine forwards the working file and decoding options.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/resilience"
	"github.com/kbukum/whisper-gateway/transcription"
)

const (
	// EngineName is reported by Engine.Name.
	EngineName = "whisper-sidecar"

	defaultTimeout = 10 * time.Minute
)

// Config holds configuration for the sidecar engine.
type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
	// Ready bounds the health poll at construction. Unset means
	// resilience.DefaultRetryConfig.
	Ready resilience.RetryConfig
	// Client overrides the HTTP client.
	Client *http.Client
}

// Engine implements transcription.Engine using a faster-whisper sidecar.
type Engine struct {
	cfg     Config
	profile device.Profile
	client  *http.Client
}

var _ transcription.Engine = (*Engine)(nil)

// New creates the engine and waits for the sidecar to report healthy.
func New(ctx context.Context, cfg Config, profile device.Profile) (*Engine, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Ready.MaxAttempts == 0 && cfg.Ready.MaxElapsed == 0 {
		cfg.Ready = resilience.DefaultRetryConfig()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	e := &Engine{cfg: cfg, profile: profile, client: client}

	if err := resilience.RetryFunc(ctx, cfg.Ready, func() error { return e.ping(ctx) }); err != nil {
		return nil, fmt.Errorf("whisper sidecar at %s not ready: %w", cfg.URL, err)
	}
	return e, nil
}

// Factory adapts New to transcription.Factory.
func Factory(cfg Config) transcription.Factory {
	return func(ctx context.Context, profile device.Profile) (transcription.Engine, error) {
		return New(ctx, cfg, profile)
	}
}

// Name implements transcription.Engine.
func (e *Engine) Name() string { return EngineName }

// Close implements transcription.Engine.
func (e *Engine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *Engine) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.URL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

// Transcribe implements transcription.Engine.
func (e *Engine) Transcribe(ctx context.Context, path string, opts transcription.Options) (*transcription.Result, error) {
	body, contentType, err := e.form(path, opts)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL+"/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("whisper error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result sidecarResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}
	return result.toResult(), nil
}

func (e *Engine) form(path string, opts transcription.Options) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}

	fields := map[string]string{
		"model":                      e.cfg.Model,
		"device":                     string(e.profile.Backend),
		"device_index":               strconv.Itoa(e.profile.Index),
		"compute_type":               string(e.profile.Precision),
		"beam_size":                  strconv.Itoa(opts.BeamSize),
		"best_of":                    strconv.Itoa(opts.BestOf),
		"temperature":                strconv.FormatFloat(opts.Temperature, 'f', -1, 64),
		"condition_on_previous_text": strconv.FormatBool(opts.ConditionOnPreviousText),
		"word_timestamps":            strconv.FormatBool(opts.WordTimestamps),
		"chunk_length":               strconv.Itoa(opts.ChunkLength),
		"vad_filter":                 strconv.FormatBool(opts.VADFilter),
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.VADFilter {
		vad, _ := json.Marshal(opts.VAD)
		fields["vad_parameters"] = string(vad)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

type sidecarResponse struct {
	Text     string           `json:"text"`
	Segments []sidecarSegment `json:"segments"`
	Language string           `json:"language"`
}

type sidecarSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r *sidecarResponse) toResult() *transcription.Result {
	segments := make([]transcription.Segment, len(r.Segments))
	for i, seg := range r.Segments {
		segments[i] = transcription.Segment{Start: seg.Start, End: seg.End, Text: seg.Text}
	}
	var duration float64
	if len(r.Segments) > 0 {
		duration = r.Segments[len(r.Segments)-1].End
	}
	return &transcription.Result{
		Text:     r.Text,
		Segments: segments,
		Language: r.Language,
		Duration: duration,
	}
}
