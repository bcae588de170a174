package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"gpuworker/internal/pipeline"
	"gpuworker/internal/registry"
)

// SourceNone skips model loading; the cache and local sources are
// registry.SourceCache and registry.SourceLocal.
const SourceNone = "none"

const (
	DefaultModelID      = "distilbert-base-uncased-finetuned-sst-2-english"
	DefaultModelPath    = "/app/models/distilbert-model"
	DefaultServerBin    = "text-embeddings-router"
	DefaultIdleInterval = 60 * time.Second
)

// DefaultTexts are the example inputs classified after the model loads.
var DefaultTexts = []string{
	"This is a wonderful experience!",
	"I really don't like this at all.",
	"The weather is nice today.",
}

// Duration wraps time.Duration so config files can say "30s".
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.Duration.String()), nil }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error { return d.UnmarshalText([]byte(n.Value)) }

// Config holds runtime parameters for the worker.
// Zero values mean "unspecified" and are replaced by Default() values on Merge.
type Config struct {
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	ModelSource string `json:"model_source" yaml:"model_source" toml:"model_source"`
	ModelID     string `json:"model_id" yaml:"model_id" toml:"model_id"`
	CacheDir    string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	Revision    string `json:"revision" yaml:"revision" toml:"revision"`
	ModelPath   string `json:"model_path" yaml:"model_path" toml:"model_path"`

	Backend        string   `json:"backend" yaml:"backend" toml:"backend"`
	ServerBin      string   `json:"server_bin" yaml:"server_bin" toml:"server_bin"`
	ServerHost     string   `json:"server_host" yaml:"server_host" toml:"server_host"`
	ServerPortMin  int      `json:"server_port_min" yaml:"server_port_min" toml:"server_port_min"`
	ServerPortMax  int      `json:"server_port_max" yaml:"server_port_max" toml:"server_port_max"`
	ServerArgs     []string `json:"server_args" yaml:"server_args" toml:"server_args"`
	ReadyTimeout   Duration `json:"ready_timeout" yaml:"ready_timeout" toml:"ready_timeout"`
	Endpoint       string   `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	LlamaCtx       int      `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads   int      `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	LlamaGPULayers int      `json:"llama_gpu_layers" yaml:"llama_gpu_layers" toml:"llama_gpu_layers"`

	Device       string   `json:"device" yaml:"device" toml:"device"`
	Texts        []string `json:"texts" yaml:"texts" toml:"texts"`
	IdleInterval Duration `json:"idle_interval" yaml:"idle_interval" toml:"idle_interval"`
	MetricsAddr  string   `json:"metrics_addr" yaml:"metrics_addr" toml:"metrics_addr"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		LogLevel:       "info",
		LogFormat:      "console",
		ModelSource:    registry.SourceCache,
		ModelID:        DefaultModelID,
		Revision:       "main",
		ModelPath:      DefaultModelPath,
		Backend:        pipeline.BackendServer,
		ServerBin:      DefaultServerBin,
		ServerHost:     "127.0.0.1",
		ReadyTimeout:   Duration{2 * time.Minute},
		RequestTimeout: Duration{30 * time.Second},
		LlamaCtx:       512,
		Device:         "auto",
		Texts:          append([]string(nil), DefaultTexts...),
		IdleInterval:   Duration{DefaultIdleInterval},
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse toml %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge overlays the non-zero fields of over onto c and returns the result.
func (c Config) Merge(over Config) Config {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	dur := func(dst *Duration, v Duration) {
		if v.Duration != 0 {
			*dst = v
		}
	}
	str(&c.LogLevel, over.LogLevel)
	str(&c.LogFormat, over.LogFormat)
	str(&c.ModelSource, over.ModelSource)
	str(&c.ModelID, over.ModelID)
	str(&c.CacheDir, over.CacheDir)
	str(&c.Revision, over.Revision)
	str(&c.ModelPath, over.ModelPath)
	str(&c.Backend, over.Backend)
	str(&c.ServerBin, over.ServerBin)
	str(&c.ServerHost, over.ServerHost)
	num(&c.ServerPortMin, over.ServerPortMin)
	num(&c.ServerPortMax, over.ServerPortMax)
	if len(over.ServerArgs) > 0 {
		c.ServerArgs = append([]string(nil), over.ServerArgs...)
	}
	dur(&c.ReadyTimeout, over.ReadyTimeout)
	str(&c.Endpoint, over.Endpoint)
	dur(&c.RequestTimeout, over.RequestTimeout)
	num(&c.LlamaCtx, over.LlamaCtx)
	num(&c.LlamaThreads, over.LlamaThreads)
	num(&c.LlamaGPULayers, over.LlamaGPULayers)
	str(&c.Device, over.Device)
	if len(over.Texts) > 0 {
		c.Texts = append([]string(nil), over.Texts...)
	}
	dur(&c.IdleInterval, over.IdleInterval)
	str(&c.MetricsAddr, over.MetricsAddr)
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.ModelSource {
	case registry.SourceCache:
		if strings.TrimSpace(c.ModelID) == "" {
			return fmt.Errorf("model_id is required for model_source=cache")
		}
	case registry.SourceLocal:
		if strings.TrimSpace(c.ModelPath) == "" {
			return fmt.Errorf("model_path is required for model_source=local")
		}
	case SourceNone:
	default:
		return fmt.Errorf("unknown model_source %q (want cache|local|none)", c.ModelSource)
	}
	if c.ModelSource != SourceNone {
		switch c.Backend {
		case pipeline.BackendServer:
			if strings.TrimSpace(c.ServerBin) == "" {
				return fmt.Errorf("server_bin is required for backend=server")
			}
		case pipeline.BackendEndpoint:
			if strings.TrimSpace(c.Endpoint) == "" {
				return fmt.Errorf("endpoint is required for backend=endpoint")
			}
		case pipeline.BackendLlama:
		default:
			return fmt.Errorf("unknown backend %q (want server|endpoint|llama)", c.Backend)
		}
	}
	if c.ServerPortMin < 0 || c.ServerPortMax < 0 || (c.ServerPortMax > 0 && c.ServerPortMax < c.ServerPortMin) {
		return fmt.Errorf("invalid server port range %d-%d", c.ServerPortMin, c.ServerPortMax)
	}
	if c.IdleInterval.Duration <= 0 {
		return fmt.Errorf("idle_interval must be positive")
	}
	if len(c.Texts) == 0 && c.ModelSource != SourceNone {
		return fmt.Errorf("at least one example text is required")
	}
	return nil
}
