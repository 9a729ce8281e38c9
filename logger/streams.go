package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Stream file names under the log directory.
const (
	ServiceLogName = "service.log"
	StdoutLogName  = "stdout.log"
	StderrLogName  = "stderr.log"
)

// Streams holds the three append-only log files of a running service:
// service events, request output and engine/panic error output.
//
// Files are opened with O_APPEND so an in-place rewrite by the retention
// guard is picked up by the next write without reopening.
type Streams struct {
	Dir     string
	Service *os.File
	Stdout  *os.File
	Stderr  *os.File
}

// OpenStreams creates dir if needed and opens the three log files. With
// fresh set, existing files are deleted first; a delete failure is reported
// on stderr and does not prevent startup.
func OpenStreams(dir string, fresh bool) (*Streams, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir %s: %w", dir, err)
	}

	s := &Streams{Dir: dir}
	if fresh {
		for _, p := range s.Paths() {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "[logger] warning: could not delete %s: %v\n", p, err)
			}
		}
	}

	var err error
	if s.Service, err = openAppend(filepath.Join(dir, ServiceLogName)); err != nil {
		return nil, err
	}
	if s.Stdout, err = openAppend(filepath.Join(dir, StdoutLogName)); err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.Stderr, err = openAppend(filepath.Join(dir, StderrLogName)); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Paths returns the three stream paths in a fixed order.
func (s *Streams) Paths() []string {
	return []string{
		filepath.Join(s.Dir, ServiceLogName),
		filepath.Join(s.Dir, StdoutLogName),
		filepath.Join(s.Dir, StderrLogName),
	}
}

// Close closes every opened stream.
func (s *Streams) Close() error {
	var errs []error
	for _, f := range []*os.File{s.Service, s.Stdout, s.Stderr} {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	return errors.Join(errs...)
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	return f, nil
}
