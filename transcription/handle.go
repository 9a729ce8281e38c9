package transcription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/observability"
)

// LoadOutcome tags how the model came up.
type LoadOutcome int

const (
	// Loaded means the model runs on the selected profile.
	Loaded LoadOutcome = iota
	// LoadedWithDowngrade means the accelerated load failed and the model
	// runs on the CPU profile instead.
	LoadedWithDowngrade
)

func (o LoadOutcome) String() string {
	if o == LoadedWithDowngrade {
		return "loaded_with_downgrade"
	}
	return "loaded"
}

// ResourceInitError means no profile could load the model. The process
// must not start serving.
type ResourceInitError struct {
	Profile device.Profile
	Err     error
}

func (e *ResourceInitError) Error() string {
	return fmt.Sprintf("transcription: model failed to load on %s/%s: %v", e.Profile.Backend, e.Profile.Precision, e.Err)
}

func (e *ResourceInitError) Unwrap() error { return e.Err }

// Handle is the loaded model. It is created once per process.
type Handle struct {
	engine  Engine
	profile device.Profile
	model   string
	outcome LoadOutcome
	log     *logger.Logger
}

// Load constructs the engine for profile. An accelerated failure is retried
// once on the CPU profile; a CPU failure is a ResourceInitError.
func Load(ctx context.Context, factory Factory, profile device.Profile, model string, log *logger.Logger) (*Handle, LoadOutcome, error) {
	log = log.WithComponent("model")
	start := time.Now()

	engine, err := factory(ctx, profile)
	if err == nil {
		return newHandle(engine, profile, model, Loaded, log, start), Loaded, nil
	}
	if !profile.IsAccelerated() {
		return nil, Loaded, &ResourceInitError{Profile: profile, Err: err}
	}

	fallback := profile.Downgrade(fmt.Sprintf("accelerated load failed: %v", err))
	log.Warn("Accelerated model load failed, retrying on CPU", map[string]interface{}{
		logger.FieldModel:  model,
		logger.FieldDevice: string(profile.Backend),
		logger.FieldError:  err.Error(),
		"fallback_compute": string(fallback.Precision),
	})

	engine, err = factory(ctx, fallback)
	if err != nil {
		return nil, LoadedWithDowngrade, &ResourceInitError{Profile: fallback, Err: err}
	}
	return newHandle(engine, fallback, model, LoadedWithDowngrade, log, start), LoadedWithDowngrade, nil
}

func newHandle(engine Engine, profile device.Profile, model string, outcome LoadOutcome, log *logger.Logger, start time.Time) *Handle {
	log.Info("Model loaded", map[string]interface{}{
		logger.FieldModel:    model,
		logger.FieldEngine:   engine.Name(),
		logger.FieldDevice:   string(profile.Backend),
		"compute_type":       string(profile.Precision),
		"outcome":            outcome.String(),
		logger.FieldDuration: time.Since(start).Milliseconds(),
	})
	return &Handle{engine: engine, profile: profile, model: model, outcome: outcome, log: log}
}

// NewHandle wraps an already-constructed engine.
func NewHandle(engine Engine, profile device.Profile, model string, log *logger.Logger) *Handle {
	return &Handle{engine: engine, profile: profile, model: model, log: log.WithComponent("model")}
}

// Profile returns the profile the model actually runs on.
func (h *Handle) Profile() device.Profile { return h.profile }

// Model returns the model name.
func (h *Handle) Model() string { return h.model }

// Engine returns the engine name.
func (h *Handle) Engine() string { return h.engine.Name() }

// Outcome returns how the model was loaded.
func (h *Handle) Outcome() LoadOutcome { return h.outcome }

// Transcribe runs the model on the file at path. Segment texts are joined
// with single spaces; language falls back to the supplied hint.
// Callers must hold the model gate.
func (h *Handle) Transcribe(ctx context.Context, path string, opts Options) (text, language string, err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanTranscription)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrEngine, h.engine.Name())
	observability.SetSpanAttribute(ctx, observability.AttrModel, h.model)
	observability.SetSpanAttribute(ctx, observability.AttrLanguageHint, opts.Language)

	res, err := h.engine.Transcribe(ctx, path, opts)
	if err != nil {
		observability.SetSpanError(ctx, err)
		return "", "", err
	}

	text = joinText(res)
	language = res.Language
	if language == "" {
		language = opts.Language
	}
	observability.SetSpanAttribute(ctx, observability.AttrLanguage, language)
	return text, language, nil
}

// Close releases the engine.
func (h *Handle) Close() error {
	return h.engine.Close()
}

func joinText(res *Result) string {
	if len(res.Segments) == 0 {
		return strings.TrimSpace(res.Text)
	}
	parts := make([]string, 0, len(res.Segments))
	for _, seg := range res.Segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
