// Package transcriptiontest provides an instrumented in-memory engine for
// tests of code that drives a transcription.Handle.
package transcriptiontest

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/transcription"
)

// Engine is a fake transcription.Engine. It records every call, tracks how
// many calls overlap and can be told to fail or block.
type Engine struct {
	// Text is returned for every non-silent file.
	Text string
	// Language is reported as the detected language. Empty echoes the hint.
	Language string
	// Err, when set, fails every call.
	Err error
	// Delay is slept inside each call to widen overlap windows.
	Delay time.Duration
	// Block, when set, makes each call wait until it is closed.
	Block chan struct{}
	// SilentBelow treats files smaller than this many bytes as silence
	// and returns empty text for them.
	SilentBelow int64

	inside   atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
	mu       sync.Mutex
	paths    []string
	options  []transcription.Options
	closed   atomic.Bool
	entered  chan struct{}
	enterOne sync.Once
}

var _ transcription.Engine = (*Engine)(nil)

// Name implements transcription.Engine.
func (e *Engine) Name() string { return "fake" }

// Transcribe implements transcription.Engine.
func (e *Engine) Transcribe(ctx context.Context, path string, opts transcription.Options) (*transcription.Result, error) {
	n := e.inside.Add(1)
	defer e.inside.Add(-1)
	for {
		m := e.maxSeen.Load()
		if n <= m || e.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	e.calls.Add(1)
	e.signalEntered()

	e.mu.Lock()
	e.paths = append(e.paths, path)
	e.options = append(e.options, opts)
	e.mu.Unlock()

	if e.Block != nil {
		<-e.Block
	}
	if e.Delay > 0 {
		time.Sleep(e.Delay)
	}
	if e.Err != nil {
		return nil, e.Err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	lang := e.Language
	if lang == "" {
		lang = opts.Language
	}
	if info.Size() < e.SilentBelow {
		return &transcription.Result{Language: lang}, nil
	}
	return &transcription.Result{
		Segments: []transcription.Segment{{Start: 0, End: 1, Text: " " + e.Text + " "}},
		Language: lang,
	}, nil
}

// Close implements transcription.Engine.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

// Entered returns a channel closed when the first call starts.
func (e *Engine) Entered() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enteredLocked()
}

func (e *Engine) enteredLocked() chan struct{} {
	if e.entered == nil {
		e.entered = make(chan struct{})
	}
	return e.entered
}

func (e *Engine) signalEntered() {
	e.enterOne.Do(func() {
		e.mu.Lock()
		close(e.enteredLocked())
		e.mu.Unlock()
	})
}

// Calls returns the number of Transcribe calls.
func (e *Engine) Calls() int { return int(e.calls.Load()) }

// MaxConcurrent returns the highest number of overlapping calls seen.
func (e *Engine) MaxConcurrent() int { return int(e.maxSeen.Load()) }

// Closed reports whether Close was called.
func (e *Engine) Closed() bool { return e.closed.Load() }

// Paths returns the file paths passed to Transcribe.
func (e *Engine) Paths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.paths...)
}

// Options returns the options passed to Transcribe.
func (e *Engine) Options() []transcription.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]transcription.Options(nil), e.options...)
}

// Factory returns a transcription.Factory that fails for the profiles in
// failOn and otherwise returns e. Profiles it was asked for are appended to
// seen when seen is non-nil.
func Factory(e *Engine, seen *[]device.Profile, failOn ...device.Backend) transcription.Factory {
	return func(_ context.Context, p device.Profile) (transcription.Engine, error) {
		if seen != nil {
			*seen = append(*seen, p)
		}
		for _, b := range failOn {
			if p.Backend == b {
				return nil, &LoadError{Backend: b}
			}
		}
		return e, nil
	}
}

// LoadError is returned by Factory for failing backends.
type LoadError struct{ Backend device.Backend }

func (e *LoadError) Error() string { return "fake: cannot load on " + string(e.Backend) }
