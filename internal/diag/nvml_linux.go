//go:build linux && cgo

package diag

import (
	"context"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"gpuworker/pkg/types"
)

// NewProbe returns the NVML-backed probe. NVML is loaded lazily via dlopen,
// so hosts without the NVIDIA driver simply report no accelerator.
func NewProbe() Probe { return nvmlProbe{} }

type nvmlProbe struct{}

func (nvmlProbe) Probe(ctx context.Context) (Accelerator, error) {
	if err := ctx.Err(); err != nil {
		return Accelerator{}, err
	}
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return Accelerator{Reason: "NVML init failed: " + nvml.ErrorString(ret)}, nil
	}
	defer nvml.Shutdown()

	var acc Accelerator
	if v, ret := nvml.SystemGetDriverVersion(); ret == nvml.SUCCESS {
		acc.DriverVersion = v
	}
	if v, ret := nvml.SystemGetCudaDriverVersion(); ret == nvml.SUCCESS {
		acc.CUDAVersion = FormatCUDAVersion(v)
	}
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		acc.Reason = "device count: " + nvml.ErrorString(ret)
		return acc, nil
	}
	for i := 0; i < count; i++ {
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			continue
		}
		d := types.Device{Index: i, Name: "unknown"}
		if name, ret := dev.GetName(); ret == nvml.SUCCESS {
			d.Name = name
		}
		if mem, ret := dev.GetMemoryInfo(); ret == nvml.SUCCESS {
			d.MemoryTotalMB = mem.Total / 1024 / 1024
			d.MemoryFreeMB = mem.Free / 1024 / 1024
		}
		acc.Devices = append(acc.Devices, d)
	}
	acc.Available = len(acc.Devices) > 0
	if !acc.Available {
		acc.Reason = "no devices"
	}
	return acc, nil
}
