// Package logger provides structured logging for the gateway using zerolog.
//
// It supports console and JSON formats, log level configuration, and
// component-scoped loggers with structured fields. A running service writes
// to three append-only streams under its log directory (service events,
// request output and engine error output); see Streams.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//
// # Usage
//
//	log := logger.WithComponent("gate")
//	log.Info("permit acquired", logger.Fields("wait_ms", 12))
package logger
