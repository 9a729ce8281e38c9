// Package device picks the compute profile for the transcription model.
//
// Select probes the accelerator once at startup and applies a capability
// Policy. It never fails: every problem degrades to the CPU profile with a
// recorded reason.
package device
