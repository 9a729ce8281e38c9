// Package process runs external binaries with process-group cancellation:
// SIGTERM on context cancel, SIGKILL after a grace period.
//
// The gateway uses it for the accelerator probe and the whisper.cpp engine.
package process
