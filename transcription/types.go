package transcription

import (
	"context"

	"github.com/kbukum/whisper-gateway/device"
)

// VADParams tunes voice-activity filtering.
type VADParams struct {
	MinSpeechMS  int `json:"min_speech_duration_ms"`
	MinSilenceMS int `json:"min_silence_duration_ms"`
	SpeechPadMS  int `json:"speech_pad_ms"`
}

// Options are the decoding parameters of one transcription.
type Options struct {
	// Language is an ISO code hint. Empty means auto-detect.
	Language                string
	BeamSize                int
	BestOf                  int
	Temperature             float64
	ConditionOnPreviousText bool
	WordTimestamps          bool
	ChunkLength             int // seconds
	VADFilter               bool
	VAD                     VADParams
}

// DefaultVAD is the voice-activity tuning used for requests.
var DefaultVAD = VADParams{MinSpeechMS: 200, MinSilenceMS: 250, SpeechPadMS: 120}

// RequestOptions returns the fixed decoding configuration for client
// requests: greedy single beam at temperature 0 with VAD on.
func RequestOptions(language string, chunkLength int) Options {
	return Options{
		Language:                language,
		BeamSize:                1,
		BestOf:                  1,
		Temperature:             0,
		ConditionOnPreviousText: true,
		WordTimestamps:          false,
		ChunkLength:             chunkLength,
		VADFilter:               true,
		VAD:                     DefaultVAD,
	}
}

// WarmUpOptions returns the decoding configuration for the warm-up pass.
func WarmUpOptions(chunkLength int, vad bool) Options {
	opts := RequestOptions("", chunkLength)
	opts.VADFilter = vad
	return opts
}

// Result is an engine's output.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
}

// Segment is a time-aligned portion of a transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Engine is one loaded model. Transcribe must not be called concurrently.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, path string, opts Options) (*Result, error)
	Close() error
}

// Factory loads an engine for a device profile.
type Factory func(ctx context.Context, profile device.Profile) (Engine, error)
