package pipeline

import (
	"time"

	"github.com/rs/zerolog"
)

// Task is the only pipeline task this package implements.
const Task = "sentiment-analysis"

// Backend names.
const (
	BackendServer   = "server"
	BackendEndpoint = "endpoint"
	BackendLlama    = "llama"
)

const defaultRequestTimeout = 30 * time.Second

// Config encapsulates all tunables for pipeline construction.
type Config struct {
	// Source selects the loading strategy: registry.SourceCache or
	// registry.SourceLocal.
	Source   string
	ModelID  string
	CacheDir string
	Revision string
	// ModelPath is the directory (or file) for registry.SourceLocal.
	ModelPath string

	Backend  string
	Device   Device
	Server   ServerConfig
	Endpoint string
	// RequestTimeout bounds each classification call for HTTP backends.
	RequestTimeout time.Duration
	Threads        int
	CtxSize        int
	GPULayers      int
	Prototypes     []LabelPrototype

	Logger    *zerolog.Logger
	Publisher EventPublisher
	// Adapter overrides Backend when set (tests, embedding).
	Adapter Adapter
}

func (c Config) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}

func (c Config) publisher() EventPublisher {
	if c.Publisher == nil {
		return noopPublisher{}
	}
	return c.Publisher
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return c.RequestTimeout
}
