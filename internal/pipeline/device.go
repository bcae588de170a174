package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Device identifies where the model runs. CPU is -1; accelerators are 0-based.
type Device int

const CPU Device = -1

func (d Device) IsCPU() bool { return d < 0 }

func (d Device) String() string {
	if d.IsCPU() {
		return "cpu"
	}
	return "cuda:" + strconv.Itoa(int(d))
}

// ParseDevice maps a device spec to a Device. "auto" picks accelerator 0 when
// one is available and the CPU otherwise.
func ParseDevice(spec string, acceleratorAvailable bool) (Device, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	switch {
	case s == "" || s == "auto":
		if acceleratorAvailable {
			return 0, nil
		}
		return CPU, nil
	case s == "cpu" || s == "-1":
		return CPU, nil
	case s == "cuda" || s == "gpu":
		return 0, nil
	case strings.HasPrefix(s, "cuda:"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "cuda:"))
		if err != nil || n < 0 {
			return CPU, fmt.Errorf("invalid device %q", spec)
		}
		return Device(n), nil
	default:
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return CPU, fmt.Errorf("invalid device %q (want auto|cpu|cuda|cuda:N)", spec)
		}
		return Device(n), nil
	}
}
