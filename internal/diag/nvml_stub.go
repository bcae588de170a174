//go:build !linux || !cgo

package diag

// NewProbe returns a probe that never finds an accelerator; NVML needs
// linux and cgo.
func NewProbe() Probe {
	return StaticProbe{Reason: "NVML not supported in this build"}
}
