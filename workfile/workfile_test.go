package workfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kbukum/whisper-gateway/logger"
)

func newTestStager(t *testing.T) (*Stager, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStager(Config{Dir: dir}, logger.Nop()), dir
}

func assertEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no working files, found %d", len(entries))
	}
}

func TestWithSuccess(t *testing.T) {
	s, dir := newTestStager(t)

	var seen string
	err := s.With(strings.NewReader("RIFF audio"), ".wav", func(path string) error {
		seen = path
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if string(data) != "RIFF audio" {
			t.Errorf("payload = %q", data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if filepath.Ext(seen) != ".wav" || filepath.Dir(seen) != dir {
		t.Errorf("unexpected path %q", seen)
	}
	assertEmpty(t, dir)
}

func TestWithBodyError(t *testing.T) {
	s, dir := newTestStager(t)
	boom := errors.New("model crashed")

	err := s.With(strings.NewReader("x"), ".mp3", func(string) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected body error, got %v", err)
	}
	assertEmpty(t, dir)
}

func TestWithBodyPanic(t *testing.T) {
	s, dir := newTestStager(t)

	func() {
		defer func() { _ = recover() }()
		_ = s.With(strings.NewReader("x"), ".ogg", func(string) error { panic("unexpected") })
	}()
	assertEmpty(t, dir)
}

func TestWithFillError(t *testing.T) {
	s, dir := newTestStager(t)
	called := false

	err := s.WithFill(".wav", func(*os.File) error { return errors.New("encode failed") }, func(string) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected fill error")
	}
	if called {
		t.Error("body must not run when fill fails")
	}
	assertEmpty(t, dir)
}

func TestWithBodyRemovesFileItself(t *testing.T) {
	s, dir := newTestStager(t)
	err := s.With(strings.NewReader("x"), ".wav", func(path string) error { return os.Remove(path) })
	if err != nil {
		t.Fatalf("already-removed file must not be reported: %v", err)
	}
	assertEmpty(t, dir)
}

func TestConfigValidate(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default temp dir", Config{}, false},
		{"existing dir", Config{Dir: t.TempDir()}, false},
		{"missing dir", Config{Dir: filepath.Join(t.TempDir(), "nope")}, true},
		{"not a dir", Config{Dir: file}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
