package transcription_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/kbukum/whisper-gateway/device"
	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/resilience"
	"github.com/kbukum/whisper-gateway/transcription"
	"github.com/kbukum/whisper-gateway/transcription/transcriptiontest"
	"github.com/kbukum/whisper-gateway/workfile"
)

var gpuProfile = device.Profile{
	Backend:    device.Accelerated,
	Precision:  device.Float16,
	Name:       "Test GPU",
	Capability: device.Capability{Major: 8, Minor: 6},
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		profile     device.Profile
		failOn      []device.Backend
		wantOutcome transcription.LoadOutcome
		wantBackend device.Backend
		wantCalls   int
		wantErr     bool
	}{
		{"gpu loads", gpuProfile, nil, transcription.Loaded, device.Accelerated, 1, false},
		{"cpu loads", device.CPU(device.ReasonNoDevice), nil, transcription.Loaded, device.Fallback, 1, false},
		{"gpu fails, cpu loads", gpuProfile, []device.Backend{device.Accelerated}, transcription.LoadedWithDowngrade, device.Fallback, 2, false},
		{"cpu fails", device.CPU(device.ReasonNoDevice), []device.Backend{device.Fallback}, transcription.Loaded, "", 1, true},
		{"both fail", gpuProfile, []device.Backend{device.Accelerated, device.Fallback}, transcription.LoadedWithDowngrade, "", 2, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen []device.Profile
			factory := transcriptiontest.Factory(&transcriptiontest.Engine{}, &seen, tc.failOn...)

			h, outcome, err := transcription.Load(context.Background(), factory, tc.profile, "small", logger.Nop())
			if len(seen) != tc.wantCalls {
				t.Errorf("factory called %d times, want %d", len(seen), tc.wantCalls)
			}
			if tc.wantErr {
				var initErr *transcription.ResourceInitError
				if !errors.As(err, &initErr) {
					t.Fatalf("expected ResourceInitError, got %v", err)
				}
				if h != nil {
					t.Error("expected nil handle on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if outcome != tc.wantOutcome || h.Outcome() != tc.wantOutcome {
				t.Errorf("outcome = %s, want %s", outcome, tc.wantOutcome)
			}
			if h.Profile().Backend != tc.wantBackend {
				t.Errorf("backend = %s, want %s", h.Profile().Backend, tc.wantBackend)
			}
			if h.Model() != "small" {
				t.Errorf("model = %q", h.Model())
			}
		})
	}
}

func TestLoadDowngradeUsesInt8(t *testing.T) {
	var seen []device.Profile
	factory := transcriptiontest.Factory(&transcriptiontest.Engine{}, &seen, device.Accelerated)

	h, _, err := transcription.Load(context.Background(), factory, gpuProfile, "small", logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if seen[1].Precision != device.Int8 || h.Profile().Precision != device.Int8 {
		t.Errorf("fallback must load int8, got %s", seen[1].Precision)
	}
	if h.Profile().Reason == "" {
		t.Error("downgrade reason should be recorded")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHandleTranscribe(t *testing.T) {
	engine := &transcriptiontest.Engine{Text: "hello world"}
	h := transcription.NewHandle(engine, device.CPU(""), "small", logger.Nop())

	text, lang, err := h.Transcribe(context.Background(), writeFile(t, "audio"), transcription.RequestOptions("de", 15))
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello world" {
		t.Errorf("text = %q", text)
	}
	if lang != "de" {
		t.Errorf("language should fall back to the hint, got %q", lang)
	}

	engine.Language = "en"
	if _, lang, _ = h.Transcribe(context.Background(), writeFile(t, "audio"), transcription.RequestOptions("", 15)); lang != "en" {
		t.Errorf("detected language should win, got %q", lang)
	}
}

func TestHandleTranscribeError(t *testing.T) {
	boom := errors.New("decoder crashed")
	h := transcription.NewHandle(&transcriptiontest.Engine{Err: boom}, device.CPU(""), "small", logger.Nop())
	if _, _, err := h.Transcribe(context.Background(), writeFile(t, "x"), transcription.Options{}); !errors.Is(err, boom) {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func TestRequestOptions(t *testing.T) {
	o := transcription.RequestOptions("fr", 15)
	if o.BeamSize != 1 || o.BestOf != 1 || o.Temperature != 0 || !o.ConditionOnPreviousText || o.WordTimestamps {
		t.Errorf("unexpected decoding options %+v", o)
	}
	if !o.VADFilter || o.VAD != transcription.DefaultVAD || o.VAD.MinSpeechMS != 200 || o.VAD.MinSilenceMS != 250 || o.VAD.SpeechPadMS != 120 {
		t.Errorf("unexpected VAD options %+v", o.VAD)
	}
	if w := transcription.WarmUpOptions(15, false); w.VADFilter || w.BeamSize != 1 || w.ChunkLength != 15 {
		t.Errorf("unexpected warm-up options %+v", w)
	}
}

func TestWriteSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := transcription.WriteSilence(f, time.Second, transcription.WarmUpSampleRate); err != nil {
		t.Fatal(err)
	}
	f.Close()

	in, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	dec := wav.NewDecoder(in)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 16000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("unexpected format %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(buf.Data) != 16000 {
		t.Errorf("expected 16000 samples, got %d", len(buf.Data))
	}
	for i, s := range buf.Data {
		if s != 0 {
			t.Fatalf("sample %d = %d, want silence", i, s)
		}
	}
}

func TestWarmUp(t *testing.T) {
	dir := t.TempDir()
	engine := &transcriptiontest.Engine{Text: "ignored"}
	h := transcription.NewHandle(engine, device.CPU(""), "small", logger.Nop())
	gate := resilience.NewExclusiveGate(resilience.GateConfig{})
	stager := workfile.NewStager(workfile.Config{Dir: dir}, logger.Nop())

	if err := h.WarmUp(context.Background(), gate, stager, transcription.WarmUpOptions(15, false)); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	if engine.Calls() != 1 {
		t.Fatalf("expected one warm-up call, got %d", engine.Calls())
	}
	if opts := engine.Options()[0]; opts.VADFilter || opts.BeamSize != 1 {
		t.Errorf("unexpected warm-up options %+v", opts)
	}
	if gate.InUse() {
		t.Error("gate held after warm-up")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("warm-up clip not removed: %d files left", len(entries))
	}
}

func TestWarmUpFailureIsReported(t *testing.T) {
	h := transcription.NewHandle(&transcriptiontest.Engine{Err: errors.New("cold")}, device.CPU(""), "small", logger.Nop())
	gate := resilience.NewExclusiveGate(resilience.GateConfig{})
	stager := workfile.NewStager(workfile.Config{Dir: t.TempDir()}, logger.Nop())

	if err := h.WarmUp(context.Background(), gate, stager, transcription.WarmUpOptions(15, false)); err == nil {
		t.Fatal("expected warm-up error")
	}
	if gate.InUse() {
		t.Error("gate held after failed warm-up")
	}
}

func TestConfig(t *testing.T) {
	var cfg transcription.Config
	cfg.ApplyDefaults()
	if cfg.Model != "small" || cfg.ChunkLength != 15 || cfg.Backend != transcription.BackendWhisperCPP {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.Backend = "onnx"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid backend error")
	}
}
