// Package transcription owns the single speech-to-text model instance.
//
// An Engine is one loaded model on one device. Load builds it through a
// Factory and falls back to the CPU profile once if the accelerated load
// fails. The resulting Handle is not safe for concurrent Transcribe calls;
// callers serialize it with a resilience.Gate.
//
// # Backends
//
//   - transcription/whispercpp: whisper.cpp command-line engine
//   - transcription/whisper: faster-whisper HTTP sidecar
package transcription
