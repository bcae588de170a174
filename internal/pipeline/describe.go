package pipeline

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gpuworker/internal/diag"
)

// describeTimeout bounds each backend version lookup.
var describeTimeout = 5 * time.Second

// Describe reports the backend name and version for the startup banner. It
// never fails: unknown versions are reported as such.
func Describe(ctx context.Context, cfg Config) diag.Backend {
	switch cfg.Backend {
	case BackendServer:
		name := filepath.Base(cfg.Server.Bin)
		return diag.Backend{Name: name, Version: binaryVersion(ctx, cfg.Server.Bin)}
	case BackendEndpoint:
		ictx, cancel := context.WithTimeout(ctx, describeTimeout)
		defer cancel()
		info, err := newPredictClient(cfg.Endpoint, 0).Info(ictx)
		if err != nil || info.Version == "" {
			return diag.Backend{Name: "endpoint", Version: "(version unknown)"}
		}
		return diag.Backend{Name: "endpoint", Version: info.Version}
	case BackendLlama:
		if llamaBuilt {
			return diag.Backend{Name: "go-llama.cpp", Version: "(cgo)"}
		}
		return diag.Backend{Name: "go-llama.cpp", Version: "(not built)"}
	default:
		return diag.Backend{}
	}
}

// binaryVersion runs `<bin> --version` and keeps the last field of the first
// line, e.g. "text-embeddings-router 1.5.0" -> "1.5.0".
func binaryVersion(ctx context.Context, bin string) string {
	path, err := exec.LookPath(bin)
	if err != nil {
		return "(not installed)"
	}
	ctx, cancel := context.WithTimeout(ctx, describeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "(version unknown)"
	}
	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "(version unknown)"
	}
	return fields[len(fields)-1]
}
