// Package retention bounds the growth of the service's log files by
// periodically keeping only their most recent lines.
package retention

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kbukum/whisper-gateway/logger"
	"github.com/kbukum/whisper-gateway/util"
)

// Config configures log retention.
type Config struct {
	// MaxLines is how many trailing lines survive a truncation.
	MaxLines int `yaml:"max_lines" mapstructure:"max_lines"`
	// MinSize skips files smaller than this, e.g. "1MB".
	MinSize string `yaml:"min_size" mapstructure:"min_size"`
	// Interval is the time between enforcement passes.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxLines == 0 {
		c.MaxLines = 10000
	}
	if c.MinSize == "" {
		c.MinSize = "1MB"
	}
	if c.Interval == 0 {
		c.Interval = time.Hour
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.MaxLines < 1 {
		return fmt.Errorf("logs.max_lines must be positive (got: %d)", c.MaxLines)
	}
	if util.ParseSize(c.MinSize, -1) < 0 {
		return fmt.Errorf("logs.min_size must be a size (got: %q)", c.MinSize)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("logs.retention_interval must be positive (got: %s)", c.Interval)
	}
	return nil
}

// Policy converts the configuration.
func (c *Config) Policy() Policy {
	return Policy{MaxLines: c.MaxLines, MinSize: util.ParseSize(c.MinSize, 1<<20)}
}

// Policy holds the truncation thresholds.
type Policy struct {
	MaxLines int
	MinSize  int64
}

// DefaultPolicy keeps 10 000 lines of files of at least 1 MiB.
func DefaultPolicy() Policy {
	return Policy{MaxLines: 10000, MinSize: 1 << 20}
}

// Result reports what Enforce did to one file.
type Result struct {
	Path      string
	Truncated bool
	Removed   int
	Kept      int
}

// markerLayout is the timestamp format of the truncation marker.
const markerLayout = "2006-01-02 15:04:05"

// Marker returns the line written at the top of a truncated file.
func Marker(at time.Time, removed, kept int) string {
	return fmt.Sprintf("[Log truncated on %s - removed %d old lines, kept last %d lines]",
		at.Format(markerLayout), removed, kept)
}

// Enforce truncates path in place to its last p.MaxLines lines when it is
// at least p.MinSize bytes and longer than that. Missing files are skipped.
// The file is rewritten in place so writers holding it open with O_APPEND
// continue at the new end.
func Enforce(path string, p Policy, now time.Time) (Result, error) {
	res := Result{Path: path}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("retention: stat %s: %w", path, err)
	}
	if info.Size() < p.MinSize {
		return res, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("retention: read %s: %w", path, err)
	}
	lines := splitLines(data)
	if len(lines) <= p.MaxLines {
		res.Kept = len(lines)
		return res, nil
	}

	kept := lines[len(lines)-p.MaxLines:]
	res.Removed = len(lines) - len(kept)
	res.Kept = len(kept)

	var buf bytes.Buffer
	buf.Grow(len(data))
	buf.WriteString(Marker(now, res.Removed, res.Kept))
	buf.WriteByte('\n')
	for _, l := range kept {
		buf.Write(l)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return res, fmt.Errorf("retention: open %s: %w", path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return res, fmt.Errorf("retention: rewrite %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return res, fmt.Errorf("retention: close %s: %w", path, err)
	}
	res.Truncated = true
	return res, nil
}

// splitLines splits data after each newline, keeping the terminators. A
// final line without a newline is kept as is.
func splitLines(data []byte) [][]byte {
	lines := make([][]byte, 0, bytes.Count(data, []byte{'\n'})+1)
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, data)
			break
		}
		lines = append(lines, data[:i+1])
		data = data[i+1:]
	}
	return lines
}

// Guard runs Enforce over a fixed set of files on a schedule.
type Guard struct {
	paths    []string
	policy   Policy
	interval time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewGuard creates a guard for paths.
func NewGuard(paths []string, cfg Config, log *logger.Logger) *Guard {
	cfg.ApplyDefaults()
	return &Guard{
		paths:    paths,
		policy:   cfg.Policy(),
		interval: cfg.Interval,
		log:      log.WithComponent("retention"),
		now:      time.Now,
	}
}

// Run enforces the policy immediately and then every interval until ctx is
// done. Per-file errors are logged and never stop the schedule.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		g.EnforceAll()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// EnforceAll runs one pass over every path.
func (g *Guard) EnforceAll() {
	for _, path := range g.paths {
		res, err := Enforce(path, g.policy, g.now())
		if err != nil {
			g.log.Warn("Log retention failed", map[string]interface{}{
				logger.FieldPath:  path,
				logger.FieldError: err.Error(),
			})
			continue
		}
		if res.Truncated {
			g.log.Info("Log file truncated", map[string]interface{}{
				logger.FieldPath: path,
				"removed":        res.Removed,
				"kept":           res.Kept,
			})
		}
	}
}
