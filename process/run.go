package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ErrNotFound is returned when the binary cannot be resolved.
var ErrNotFound = errors.New("process: binary not found")

// defaultGracePeriod is the SIGTERM to SIGKILL delay on cancellation.
const defaultGracePeriod = 5 * time.Second

// ExitError reports a program that ran and exited non-zero.
type ExitError struct {
	Binary string
	Code   int
	// Tail is the last stderr lines, usually the program's own diagnosis.
	Tail string
	Err  error
}

func (e *ExitError) Error() string {
	if e.Tail == "" {
		return fmt.Sprintf("process: %s exited with code %d", e.Binary, e.Code)
	}
	return fmt.Sprintf("process: %s exited with code %d: %s", e.Binary, e.Code, e.Tail)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Run executes cmd and waits for it. The process runs in its own process
// group; cancelling ctx sends SIGTERM to the group and SIGKILL after the
// grace period. The Result is returned whenever the program was started,
// also on failure.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}
	if !Available(cmd.Binary) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cmd.Binary)
	}

	var stdout, stderr bytes.Buffer
	c := command(ctx, cmd, &stdout, &stderr)

	start := time.Now()
	err := c.Run()
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: c.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return result, fmt.Errorf("process: %s stopped: %w", cmd.Binary, ctx.Err())
	default:
		return result, &ExitError{Binary: cmd.Binary, Code: result.ExitCode, Tail: result.StderrTail(3), Err: err}
	}
}

func command(ctx context.Context, cmd Command, stdout, stderr *bytes.Buffer) *exec.Cmd {
	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // running configured binaries is the purpose of this package
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)
	c.Stdin = cmd.Stdin
	c.Stdout = stdout
	c.Stderr = stderr
	if cmd.StderrSink != nil {
		c.Stderr = io.MultiWriter(stderr, cmd.StderrSink)
	}

	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = cmd.GracePeriod
	if c.WaitDelay == 0 {
		c.WaitDelay = defaultGracePeriod
	}
	return c
}

// Available reports whether binary resolves to an executable.
func Available(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

// mergeEnv appends extra to the parent environment. Nil inherits it as is.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	return append(os.Environ(), extra...)
}
