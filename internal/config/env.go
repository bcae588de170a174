package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "GPUWORKER_"

// InvalidEnv is a GPUWORKER_* variable whose value was ignored.
type InvalidEnv struct {
	Name  string
	Value string
	Err   error
}

func (e InvalidEnv) Error() string {
	return fmt.Sprintf("%s=%q: %v", e.Name, e.Value, e.Err)
}

var errNotPositive = errors.New("must be positive")

// FromEnv builds an overlay Config from GPUWORKER_* variables. Unset values
// are left zero so Merge ignores them; unparsable ones are left zero too and
// reported in the returned slice.
func FromEnv(lookup func(string) (string, bool)) (Config, []InvalidEnv) {
	var invalid []InvalidEnv
	get := func(k string) string {
		v, ok := lookup(EnvPrefix + k)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}
	atoi := func(k string) int {
		v := get(k)
		if v == "" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			invalid = append(invalid, InvalidEnv{Name: EnvPrefix + k, Value: v, Err: err})
			return 0
		}
		return n
	}
	dur := func(k string) Duration {
		v := get(k)
		if v == "" {
			return Duration{}
		}
		d, err := time.ParseDuration(v)
		if err == nil && d <= 0 {
			err = errNotPositive
		}
		if err != nil {
			invalid = append(invalid, InvalidEnv{Name: EnvPrefix + k, Value: v, Err: err})
			return Duration{}
		}
		return Duration{d}
	}
	cfg := Config{
		LogLevel:       get("LOG_LEVEL"),
		LogFormat:      get("LOG_FORMAT"),
		ModelSource:    get("MODEL_SOURCE"),
		ModelID:        get("MODEL_ID"),
		CacheDir:       get("CACHE_DIR"),
		Revision:       get("REVISION"),
		ModelPath:      get("MODEL_PATH"),
		Backend:        get("BACKEND"),
		ServerBin:      get("SERVER_BIN"),
		ServerHost:     get("SERVER_HOST"),
		ServerPortMin:  atoi("SERVER_PORT_MIN"),
		ServerPortMax:  atoi("SERVER_PORT_MAX"),
		ServerArgs:     SplitCSV(get("SERVER_ARGS")),
		ReadyTimeout:   dur("READY_TIMEOUT"),
		Endpoint:       get("ENDPOINT"),
		RequestTimeout: dur("REQUEST_TIMEOUT"),
		LlamaCtx:       atoi("LLAMA_CTX"),
		LlamaThreads:   atoi("LLAMA_THREADS"),
		LlamaGPULayers: atoi("LLAMA_GPU_LAYERS"),
		Device:         get("DEVICE"),
		Texts:          splitLines(get("TEXTS")),
		IdleInterval:   dur("IDLE_INTERVAL"),
		MetricsAddr:    get("METRICS_ADDR"),
	}
	return cfg, invalid
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empties.
func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// example texts contain commas, so the env form is newline separated
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
