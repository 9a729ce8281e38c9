// Package errors provides the gateway's error taxonomy.
// It implements structured error types with error codes, HTTP status mapping,
// and retryable detection. Admission failures, busy rejections and
// transcription failures are AppErrors; initialization failures are
// returned as plain wrapped errors and abort startup.
package errors
