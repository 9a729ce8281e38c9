package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Admission errors (never retried)
const (
	// ErrCodeUnsupportedFormat indicates the upload extension is not an allowed audio type.
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	// ErrCodeEmptyPayload indicates a zero-byte upload.
	ErrCodeEmptyPayload ErrorCode = "EMPTY_PAYLOAD"
	// ErrCodePayloadTooLarge indicates the upload exceeds the configured maximum size.
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrCodeInvalidInput indicates a form field is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Availability errors
const (
	// ErrCodeServerBusy indicates the model gate rejected the request.
	ErrCodeServerBusy ErrorCode = "SERVER_BUSY"
	// ErrCodeServiceUnavailable indicates the model is not loaded yet.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeUnauthorized indicates a missing or wrong API key.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
)

// Internal errors
const (
	// ErrCodeTranscriptionFailed indicates the model could not process a valid upload.
	ErrCodeTranscriptionFailed ErrorCode = "TRANSCRIPTION_FAILED"
	// ErrCodeResourceInit indicates the model failed to load even after fallback.
	ErrCodeResourceInit ErrorCode = "RESOURCE_INIT_FAILED"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServerBusy:         true,
	ErrCodeServiceUnavailable: true,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
