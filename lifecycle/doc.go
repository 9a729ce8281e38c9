// Package lifecycle runs the gateway as a supervised background process.
//
// The Wrapper starts the server task and the log retention task on their
// own goroutines, polls the health endpoint and reports Running to the
// supervisor once it answers or the ready timeout passes. A stop signal
// reports Stopping, cancels the shared context and waits for both tasks.
package lifecycle
