package device

import "fmt"

// Backend identifies where inference runs.
type Backend string

const (
	Accelerated Backend = "cuda"
	Fallback    Backend = "cpu"
)

// Precision is the numeric compute type of the loaded model.
type Precision string

const (
	Float16 Precision = "float16"
	Int8    Precision = "int8"
)

// Capability is a GPU compute capability (major.minor).
type Capability struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// Less reports whether c is strictly below o.
func (c Capability) Less(o Capability) bool {
	if c.Major != o.Major {
		return c.Major < o.Major
	}
	return c.Minor < o.Minor
}

func (c Capability) String() string {
	return fmt.Sprintf("%d.%d", c.Major, c.Minor)
}

// Profile is the immutable device decision made at startup.
type Profile struct {
	Backend    Backend    `json:"device"`
	Precision  Precision  `json:"compute_type"`
	Index      int        `json:"device_index"`
	Name       string     `json:"gpu_name,omitempty"`
	Capability Capability `json:"capability,omitempty"`
	Reason     string     `json:"fallback_reason,omitempty"`
}

// IsAccelerated reports whether the profile targets the GPU.
func (p Profile) IsAccelerated() bool {
	return p.Backend == Accelerated
}

// CPU returns the fallback profile with the given reason.
func CPU(reason string) Profile {
	return Profile{Backend: Fallback, Precision: Int8, Reason: reason}
}

// Downgrade turns an accelerated profile into the fallback profile after a
// failed load, keeping the GPU identity for diagnostics.
func (p Profile) Downgrade(reason string) Profile {
	d := CPU(reason)
	d.Index = p.Index
	d.Name = p.Name
	d.Capability = p.Capability
	return d
}

// Architecture names the GPU generation for a capability.
func Architecture(c Capability) string {
	switch {
	case !c.Less(Capability{9, 0}):
		return "Hopper"
	case !c.Less(Capability{8, 9}):
		return "Ada Lovelace"
	case !c.Less(Capability{8, 0}):
		return "Ampere"
	case !c.Less(Capability{7, 5}):
		return "Turing"
	case !c.Less(Capability{7, 0}):
		return "Volta"
	case !c.Less(Capability{6, 0}):
		return "Pascal"
	case !c.Less(Capability{5, 0}):
		return "Maxwell"
	default:
		return "Kepler or older"
	}
}
