package diag

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpuworker/pkg/types"
)

type errProbe struct{}

func (errProbe) Probe(context.Context) (Accelerator, error) { return Accelerator{}, errors.New("boom") }

func TestCollect_WithAccelerator(t *testing.T) {
	p := StaticProbe{
		Available:     true,
		DriverVersion: "550.54",
		CUDAVersion:   "12.4",
		Devices:       []types.Device{{Index: 0, Name: "NVIDIA A100-SXM4-40GB", MemoryTotalMB: 40960}},
	}
	d := Collect(context.Background(), p, Backend{Name: "server", Version: "1.5.0"})
	assert.Equal(t, runtime.Version(), d.GoVersion)
	assert.True(t, d.AcceleratorAvailable)
	assert.Equal(t, "12.4", d.CUDAVersion)
	assert.Equal(t, "NVIDIA A100-SXM4-40GB", d.DeviceName())
	assert.Equal(t, "server", d.Backend)
}

func TestCollect_ProbeErrorMeansUnavailable(t *testing.T) {
	d := Collect(context.Background(), errProbe{}, Backend{})
	assert.False(t, d.AcceleratorAvailable)
	assert.Empty(t, d.Devices)
	d = Collect(context.Background(), nil, Backend{})
	assert.False(t, d.AcceleratorAvailable)
}

func TestPrint_CPUOnly(t *testing.T) {
	var buf bytes.Buffer
	d := Collect(context.Background(), NoAccelerator, Backend{Name: "llama", Version: "go-llama.cpp"})
	require.NoError(t, Print(&buf, d))
	out := buf.String()
	assert.Contains(t, out, "Hello from your GPU worker template!\n")
	assert.Contains(t, out, "Go version: "+runtime.Version()+"\n")
	assert.Contains(t, out, "Backend: llama go-llama.cpp\n")
	assert.Contains(t, out, "CUDA available: false\n")
	assert.NotContains(t, out, "CUDA version")
	assert.NotContains(t, out, "GPU device")
}

func TestPrint_GPU(t *testing.T) {
	var buf bytes.Buffer
	d := types.Diagnostics{
		GoVersion:            "go1.24.6",
		AcceleratorAvailable: true,
		Devices:              []types.Device{{Name: "Tesla T4"}},
	}
	require.NoError(t, Print(&buf, d))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Backend: none", lines[2])
	assert.Equal(t, "CUDA available: true", lines[3])
	assert.Equal(t, "CUDA version: unknown", lines[4])
	assert.Equal(t, "GPU device: Tesla T4", lines[5])
}

func TestFormatCUDAVersion(t *testing.T) {
	cases := map[int]string{12040: "12.4", 11080: "11.8", 12000: "12.0", 0: "", -1: ""}
	for in, want := range cases {
		assert.Equal(t, want, FormatCUDAVersion(in), "input %d", in)
	}
}

func TestNewProbeNeverErrors(t *testing.T) {
	// On CI hosts without a driver this must degrade to "not available".
	_, err := NewProbe().Probe(context.Background())
	assert.NoError(t, err)
}
