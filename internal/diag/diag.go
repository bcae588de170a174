// Package diag collects and prints the environment report shown at startup.
package diag

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"gpuworker/pkg/types"
)

// Accelerator is what a Probe found. Available=false is a normal result,
// not an error.
type Accelerator struct {
	Available     bool
	DriverVersion string
	CUDAVersion   string
	Devices       []types.Device
	// Reason explains why no accelerator is available (driver missing, etc.).
	Reason string
}

// Probe inspects the host for accelerators.
type Probe interface {
	Probe(ctx context.Context) (Accelerator, error)
}

// StaticProbe returns a fixed result. Used for --device cpu and in tests.
type StaticProbe Accelerator

func (p StaticProbe) Probe(context.Context) (Accelerator, error) { return Accelerator(p), nil }

// NoAccelerator is the probe used when accelerators are disabled by config.
var NoAccelerator = StaticProbe{Reason: "disabled by configuration"}

// Backend names the inference backend for the report.
type Backend struct {
	Name    string
	Version string
}

// Collect builds the report. A probe error downgrades to "not available".
func Collect(ctx context.Context, p Probe, b Backend) types.Diagnostics {
	d := types.Diagnostics{
		GoVersion:      runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		NumCPU:         runtime.NumCPU(),
		Backend:        b.Name,
		BackendVersion: b.Version,
	}
	if p == nil {
		return d
	}
	acc, err := p.Probe(ctx)
	if err != nil || !acc.Available {
		return d
	}
	d.AcceleratorAvailable = true
	d.DriverVersion = acc.DriverVersion
	d.CUDAVersion = acc.CUDAVersion
	d.Devices = append([]types.Device(nil), acc.Devices...)
	return d
}

// Print writes the human-readable report. CUDA lines appear only when an
// accelerator is available.
func Print(w io.Writer, d types.Diagnostics) error {
	lines := []string{
		"Hello from your GPU worker template!",
		"Go version: " + d.GoVersion,
		"Backend: " + backendLine(d),
		fmt.Sprintf("CUDA available: %t", d.AcceleratorAvailable),
	}
	if d.AcceleratorAvailable {
		lines = append(lines,
			"CUDA version: "+orUnknown(d.CUDAVersion),
			"GPU device: "+orUnknown(d.DeviceName()),
		)
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func backendLine(d types.Diagnostics) string {
	switch {
	case d.Backend == "":
		return "none"
	case d.BackendVersion == "":
		return d.Backend
	default:
		return d.Backend + " " + d.BackendVersion
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// FormatCUDAVersion renders NVML's integer CUDA version (major*1000 + minor*10).
func FormatCUDAVersion(v int) string {
	if v <= 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}
