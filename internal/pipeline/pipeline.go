package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gpuworker/internal/registry"
	"gpuworker/pkg/types"
)

// Pipeline is a loaded text-classification model. It bundles model
// resolution, backend session and post-processing behind Classify.
type Pipeline struct {
	mu      sync.RWMutex
	model   types.Model
	device  Device
	adapter Adapter
	sess    Session
	log     zerolog.Logger
	pub     EventPublisher
}

// processReaper is implemented by adapters that own child processes.
type processReaper interface {
	StopAll()
}

// New resolves the model with the configured strategy, starts the backend
// on cfg.Device and returns a ready pipeline. Errors from resolution keep
// their identity (see IsNotCached, IsNotFound, IsDependencyUnavailable).
func New(ctx context.Context, cfg Config) (*Pipeline, error) {
	log := cfg.logger().With().Str("component", "pipeline").Logger()
	pub := cfg.publisher()
	start := time.Now()

	label := cfg.ModelID
	if cfg.Source == registry.SourceLocal {
		label = cfg.ModelPath
	}
	pub.Publish(Event{Name: EventLoadStart, ModelID: label, Fields: map[string]any{"source": cfg.Source, "backend": cfg.Backend}})
	loadErr := func(err error) (*Pipeline, error) {
		log.Error().Err(err).Str("model", label).Msg("model load failed")
		pub.Publish(Event{Name: EventLoadError, ModelID: label, Fields: map[string]any{"error": err.Error()}})
		return nil, err
	}

	model, err := Resolve(cfg)
	if err != nil {
		return loadErr(err)
	}
	adapter, err := adapterFor(cfg, log, pub)
	if err != nil {
		return loadErr(err)
	}
	log.Info().Str("model", model.ID).Str("path", model.Path).Str("source", model.Source).Str("device", cfg.Device.String()).Msg("loading model")
	sess, err := adapter.Start(ctx, model, LoadParams{
		Device:    cfg.Device,
		Threads:   cfg.Threads,
		CtxSize:   cfg.CtxSize,
		GPULayers: cfg.GPULayers,
	})
	if err != nil {
		return loadErr(fmt.Errorf("start %s backend: %w", backendName(cfg), err))
	}
	dur := time.Since(start)
	log.Info().Str("model", model.ID).Dur("took", dur).Msg("model loaded")
	pub.Publish(Event{Name: EventLoadReady, ModelID: model.ID, Fields: map[string]any{"seconds": dur.Seconds(), "device": cfg.Device.String()}})
	return &Pipeline{model: model, device: cfg.Device, adapter: adapter, sess: sess, log: log, pub: pub}, nil
}

// Resolve applies the configured loading strategy without starting a backend.
func Resolve(cfg Config) (types.Model, error) {
	switch cfg.Source {
	case registry.SourceCache:
		dir := cfg.CacheDir
		if dir == "" {
			dir = registry.DefaultCacheDir(os.Getenv)
		}
		return registry.ResolveCache(dir, cfg.ModelID, cfg.Revision)
	case registry.SourceLocal:
		return registry.ResolveLocal(cfg.ModelPath)
	default:
		return types.Model{}, fmt.Errorf("unknown model source %q", cfg.Source)
	}
}

func backendName(cfg Config) string {
	if cfg.Adapter != nil && cfg.Backend == "" {
		return "custom"
	}
	return cfg.Backend
}

func adapterFor(cfg Config, log zerolog.Logger, pub EventPublisher) (Adapter, error) {
	if cfg.Adapter != nil {
		return cfg.Adapter, nil
	}
	switch cfg.Backend {
	case BackendServer:
		sc := cfg.Server
		if sc.RequestTimeout <= 0 {
			sc.RequestTimeout = cfg.requestTimeout()
		}
		return NewServerAdapter(sc, log, pub), nil
	case BackendEndpoint:
		return NewEndpointAdapter(cfg.Endpoint, cfg.requestTimeout()), nil
	case BackendLlama:
		return NewLlamaAdapter(cfg.Prototypes), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Model returns the resolved model.
func (p *Pipeline) Model() types.Model { return p.model }

// Device returns the device the model runs on.
func (p *Pipeline) Device() Device { return p.device }

// Classify returns the top prediction for text.
func (p *Pipeline) Classify(ctx context.Context, text string) (types.Prediction, error) {
	p.mu.RLock()
	sess := p.sess
	p.mu.RUnlock()
	if sess == nil {
		return types.Prediction{}, errClosed
	}
	start := time.Now()
	preds, err := sess.Classify(ctx, text)
	if err == nil && len(preds) == 0 {
		err = fmt.Errorf("backend returned no predictions")
	}
	if err != nil {
		p.pub.Publish(Event{Name: EventClassifyErr, ModelID: p.model.ID, Fields: map[string]any{"error": err.Error()}})
		return types.Prediction{}, fmt.Errorf("classify: %w", err)
	}
	top := Normalize(preds)[0]
	p.log.Debug().Str("label", top.Label).Float64("score", top.Score).Dur("took", time.Since(start)).Msg("classified")
	p.pub.Publish(Event{Name: EventClassify, ModelID: p.model.ID, Fields: map[string]any{"label": top.Label, "score": top.Score, "seconds": time.Since(start).Seconds()}})
	return top, nil
}

// ClassifyAll classifies texts in order and stops at the first error. each,
// when non-nil, is called with every result as soon as it is available. The
// returned slice holds the results produced before any error, so
// texts[len(results)] is the text that failed.
func (p *Pipeline) ClassifyAll(ctx context.Context, texts []string, each func(types.ExampleResult)) ([]types.ExampleResult, error) {
	out := make([]types.ExampleResult, 0, len(texts))
	for _, t := range texts {
		pred, err := p.Classify(ctx, t)
		if err != nil {
			return out, err
		}
		r := types.ExampleResult{Text: t, Prediction: pred}
		out = append(out, r)
		if each != nil {
			each(r)
		}
	}
	return out, nil
}

// Close releases the backend and any processes its adapter still owns. It is
// safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	sess := p.sess
	p.sess = nil
	p.mu.Unlock()
	if sess == nil {
		return nil
	}
	err := sess.Close()
	if r, ok := p.adapter.(processReaper); ok {
		r.StopAll()
	}
	return err
}

// Normalize upper-cases labels, clamps scores into [0,1] and sorts by score,
// highest first. The input slice is not modified.
func Normalize(preds []types.Prediction) []types.Prediction {
	out := make([]types.Prediction, len(preds))
	for i, pr := range preds {
		s := pr.Score
		switch {
		case math.IsNaN(s) || s < 0:
			s = 0
		case s > 1:
			s = 1
		}
		out[i] = types.Prediction{Label: strings.ToUpper(strings.TrimSpace(pr.Label)), Score: s}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
