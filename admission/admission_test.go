package admission

import (
	"testing"

	"github.com/kbukum/whisper-gateway/errors"
)

func upload(name string, size int64) Upload {
	return Upload{Filename: name, Size: size}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"talk.MP3":          ".mp3",
		"meeting.final.m4a": ".m4a",
		"noext":             ".wav",
		"":                  ".wav",
		".wav":              ".wav",
		".hidden.ogg":       ".ogg",
		"dir.d/voice":       ".wav",
		"clip.xyz":          ".xyz",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAdmit(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name     string
		up       Upload
		fields   Fields
		wantCode errors.ErrorCode
	}{
		{"ok", upload("a.wav", 10), Fields{}, ""},
		{"ok at limit", upload("a.flac", p.MaxFileSize), Fields{}, ""},
		{"unsupported", upload("a.xyz", 10), Fields{}, errors.ErrCodeUnsupportedFormat},
		{"empty", upload("a.mp3", 0), Fields{}, errors.ErrCodeEmptyPayload},
		{"too large", upload("a.mp3", p.MaxFileSize+1), Fields{}, errors.ErrCodePayloadTooLarge},
		{"format checked before size", upload("a.exe", p.MaxFileSize+1), Fields{}, errors.ErrCodeUnsupportedFormat},
		{"empty checked before fields", upload("a.wav", 0), Fields{ResponseFormat: "srt"}, errors.ErrCodeEmptyPayload},
		{"bad response format", upload("a.wav", 10), Fields{ResponseFormat: "srt"}, errors.ErrCodeInvalidInput},
		{"bad temperature", upload("a.wav", 10), Fields{Temperature: 2}, errors.ErrCodeInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Admit(tc.up, tc.fields, p)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.HasCode(err, tc.wantCode) {
				t.Fatalf("expected %s, got %v", tc.wantCode, err)
			}
		})
	}
}

func TestAdmitUnsupportedListsAllowList(t *testing.T) {
	_, err := Admit(upload("clip.xyz", 10), Fields{}, DefaultPolicy())
	appErr, _ := errors.AsAppError(err)
	if appErr.HTTPStatus != 415 {
		t.Errorf("status = %d", appErr.HTTPStatus)
	}
	want := "Unsupported audio format: .xyz. Supported formats: .mp3, .mp4, .mpeg, .mpga, .m4a, .wav, .webm, .ogg, .flac, .opus"
	if appErr.Message != want {
		t.Errorf("message = %q", appErr.Message)
	}
}

func TestAdmitTooLargeReportsSize(t *testing.T) {
	p := DefaultPolicy()
	_, err := Admit(upload("a.wav", p.MaxFileSize+1), Fields{}, p)
	appErr, _ := errors.AsAppError(err)
	if appErr.HTTPStatus != 413 || appErr.Details["size"] != p.MaxFileSize+1 {
		t.Errorf("unexpected error %+v", appErr)
	}
}

func TestAdmitDefaults(t *testing.T) {
	req, err := Admit(upload("a.ogg", 5), Fields{Language: "en"}, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if req.Extension != ".ogg" || req.ResponseFormat != FormatJSON || req.ModelName != "whisper-1" || req.Language != "en" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if p := cfg.Policy(); p.MaxFileSize != DefaultMaxFileSize || len(p.Extensions) != 10 {
		t.Errorf("unexpected policy %+v", p)
	}

	cfg = Config{MaxFileSize: "25MB", Extensions: []string{".WAV"}}
	if p := cfg.Policy(); p.MaxFileSize != 25<<20 || p.Extensions[0] != ".wav" {
		t.Errorf("unexpected policy %+v", p)
	}
	if err := (&Config{MaxFileSize: "lots", Extensions: []string{".wav"}}).Validate(); err == nil {
		t.Error("expected invalid size error")
	}
	if err := (&Config{MaxFileSize: "1MB", Extensions: []string{"wav"}}).Validate(); err == nil {
		t.Error("expected invalid extension error")
	}
}
