package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   ErrorCode
		wantStatus int
		retryable  bool
	}{
		{"UnsupportedFormat", UnsupportedFormat(".xyz", []string{".wav"}), ErrCodeUnsupportedFormat, http.StatusUnsupportedMediaType, false},
		{"EmptyPayload", EmptyPayload(), ErrCodeEmptyPayload, http.StatusBadRequest, false},
		{"PayloadTooLarge", PayloadTooLarge(200<<20, 100<<20), ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge, false},
		{"InvalidInput", InvalidInput("language", "bad"), ErrCodeInvalidInput, http.StatusBadRequest, false},
		{"MissingField", MissingField("file"), ErrCodeMissingField, http.StatusBadRequest, false},
		{"ServerBusy", ServerBusy("queue full"), ErrCodeServerBusy, http.StatusServiceUnavailable, true},
		{"ServiceUnavailable", ServiceUnavailable("model"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable, true},
		{"Unauthorized", Unauthorized(""), ErrCodeUnauthorized, http.StatusUnauthorized, false},
		{"TranscriptionFailed", TranscriptionFailed(fmt.Errorf("boom")), ErrCodeTranscriptionFailed, http.StatusInternalServerError, false},
		{"ResourceInit", ResourceInit(fmt.Errorf("oom")), ErrCodeResourceInit, http.StatusInternalServerError, false},
		{"Internal", Internal(nil), ErrCodeInternal, http.StatusInternalServerError, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.wantCode {
				t.Errorf("Code = %s, want %s", tc.err.Code, tc.wantCode)
			}
			if tc.err.HTTPStatus != tc.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tc.err.HTTPStatus, tc.wantStatus)
			}
			if tc.err.Retryable != tc.retryable {
				t.Errorf("Retryable = %v, want %v", tc.err.Retryable, tc.retryable)
			}
		})
	}
}

func TestUnsupportedFormatMessage(t *testing.T) {
	err := UnsupportedFormat(".xyz", []string{".mp3", ".wav"})
	want := "Unsupported audio format: .xyz. Supported formats: .mp3, .wav"
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
}

func TestPayloadTooLargeMessage(t *testing.T) {
	err := PayloadTooLarge(150<<20, 100<<20)
	if !strings.Contains(err.Message, "150.0 MB") || !strings.Contains(err.Message, "Maximum allowed: 100 MB") {
		t.Errorf("unexpected message %q", err.Message)
	}
}

func TestIsRetryableCode(t *testing.T) {
	if !IsRetryableCode(ErrCodeServerBusy) {
		t.Error("SERVER_BUSY should be retryable")
	}
	if IsRetryableCode(ErrCodeUnsupportedFormat) {
		t.Error("UNSUPPORTED_FORMAT should not be retryable")
	}
}

func TestErrorStringAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("engine exited 1")
	err := TranscriptionFailed(cause)
	if !strings.Contains(err.Error(), "engine exited 1") {
		t.Errorf("Error() missing cause: %s", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCodeInternal, "x", http.StatusInternalServerError).
		WithDetail("a", 1).
		WithDetails(map[string]any{"b": 2})
	if err.Details["a"] != 1 || err.Details["b"] != 2 {
		t.Errorf("unexpected details %v", err.Details)
	}
}

func TestToResponse(t *testing.T) {
	body, err := json.Marshal(EmptyPayload().ToResponse())
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got["detail"] != "Empty file uploaded" {
		t.Errorf("detail = %v", got["detail"])
	}
	inner, ok := got["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing error object in %s", body)
	}
	if inner["code"] != string(ErrCodeEmptyPayload) {
		t.Errorf("code = %v", inner["code"])
	}
}

func TestAsAppError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", ServerBusy("timeout"))
	if !IsAppError(wrapped) {
		t.Fatal("expected IsAppError on wrapped error")
	}
	appErr, ok := AsAppError(wrapped)
	if !ok || appErr.Code != ErrCodeServerBusy {
		t.Fatalf("AsAppError = %v, %v", appErr, ok)
	}
	if !HasCode(wrapped, ErrCodeServerBusy) {
		t.Error("HasCode should match")
	}
	if _, ok := AsAppError(fmt.Errorf("plain")); ok {
		t.Error("plain error should not convert")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
	busy := ServerBusy("x")
	if Wrap(busy) != busy {
		t.Error("Wrap should return AppError unchanged")
	}
	if got := Wrap(fmt.Errorf("disk")); got.Code != ErrCodeInternal {
		t.Errorf("Wrap(plain) code = %s", got.Code)
	}
}
