// Package component defines the lifecycle interface shared by the gateway's
// long-lived parts and a Registry that starts them in order and stops them
// in reverse.
package component
