package transcription

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/observability"
	"github.com/kbukum/whisper-gateway/resilience"
	"github.com/kbukum/whisper-gateway/workfile"
)

// Warm-up clip format: 16 kHz mono 16-bit PCM.
const (
	WarmUpSampleRate = 16000
	warmUpBitDepth   = 16
	wavFormatPCM     = 1
)

// WriteSilence encodes d of silence as a WAV stream.
func WriteSilence(w io.WriteSeeker, d time.Duration, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, warmUpBitDepth, 1, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, int(d.Seconds()*float64(sampleRate))),
		SourceBitDepth: warmUpBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode silence: %w", err)
	}
	return enc.Close()
}

// WarmUp runs one transcription of a second of silence through the gate so
// the first client request does not pay one-time initialization cost.
// The error is logged and returned for reporting only.
func (h *Handle) WarmUp(ctx context.Context, gate resilience.Gate, stager *workfile.Stager, opts Options) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanWarmUp)
	defer span.End()

	start := time.Now()
	h.log.Info("Warming up model", map[string]interface{}{
		"chunk_length": opts.ChunkLength,
		"vad_filter":   opts.VADFilter,
	})

	err := stager.WithFill(".wav", func(f *os.File) error {
		return WriteSilence(f, time.Second, WarmUpSampleRate)
	}, func(path string) error {
		return resilience.Execute(ctx, gate, func() error {
			_, _, err := h.Transcribe(ctx, path, opts)
			return err
		})
	})
	if err != nil {
		observability.SetSpanError(ctx, err)
		h.log.Warn("Model warm-up failed", logger.ErrorFields("warmup", err))
		return err
	}

	h.log.Info("Model warm-up complete", logger.DurationFields("warmup", time.Since(start)))
	return nil
}
