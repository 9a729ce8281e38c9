package device

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/whisper-gateway/process"
)

// Probe is what the accelerator query found.
type Probe struct {
	Present    bool
	Name       string
	Capability Capability
	Driver     string
	Runtime    string // CUDA runtime version reported by the driver
}

// Prober queries the accelerator at a device index.
type Prober interface {
	Probe(ctx context.Context, index int) (Probe, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, index int) (Probe, error)

func (f ProberFunc) Probe(ctx context.Context, index int) (Probe, error) { return f(ctx, index) }

// SMIProber queries nvidia-smi. A missing binary means no accelerator.
type SMIProber struct {
	Binary  string
	Timeout time.Duration
	Run     process.RunFunc
}

// NewSMIProber returns a prober using nvidia-smi from PATH.
func NewSMIProber() *SMIProber {
	return &SMIProber{Binary: "nvidia-smi", Timeout: 10 * time.Second, Run: process.Run}
}

var runtimeVersionRe = regexp.MustCompile(`CUDA Version:\s*([0-9.]+)`)

// Probe implements Prober.
func (p *SMIProber) Probe(ctx context.Context, index int) (Probe, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	res, err := p.Run(ctx, process.Command{
		Binary: p.Binary,
		Args: []string{
			"--query-gpu=name,compute_cap,driver_version",
			"--format=csv,noheader",
			"-i", strconv.Itoa(index),
		},
	})
	if errors.Is(err, process.ErrNotFound) {
		return Probe{}, nil
	}
	if err != nil {
		return Probe{}, fmt.Errorf("device: query gpu %d: %w (%s)", index, err, res.StderrTail(2))
	}

	probe, err := parseQuery(string(res.Stdout))
	if err != nil {
		return Probe{}, err
	}

	// The banner is the only place the driver reports its CUDA runtime version.
	if banner, err := p.Run(ctx, process.Command{Binary: p.Binary}); err == nil {
		if m := runtimeVersionRe.FindSubmatch(banner.Stdout); m != nil {
			probe.Runtime = string(m[1])
		}
	}
	return probe, nil
}

// parseQuery reads one "name, compute_cap, driver_version" CSV line.
func parseQuery(out string) (Probe, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	if line == "" {
		return Probe{}, nil
	}
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return Probe{}, fmt.Errorf("device: unexpected nvidia-smi output %q", line)
	}
	capability, err := ParseCapability(strings.TrimSpace(fields[1]))
	if err != nil {
		return Probe{}, err
	}
	return Probe{
		Present:    true,
		Name:       strings.TrimSpace(fields[0]),
		Capability: capability,
		Driver:     strings.TrimSpace(fields[2]),
	}, nil
}

// ParseCapability parses "major.minor".
func ParseCapability(s string) (Capability, error) {
	major, minor, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		minor = "0"
	}
	ma, err := strconv.Atoi(major)
	if err != nil {
		return Capability{}, fmt.Errorf("device: invalid capability %q", s)
	}
	mi, err := strconv.Atoi(minor)
	if err != nil {
		return Capability{}, fmt.Errorf("device: invalid capability %q", s)
	}
	return Capability{Major: ma, Minor: mi}, nil
}
