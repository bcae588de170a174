//go:build llama

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"gpuworker/internal/registry"
	"gpuworker/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = true

// llamaAdapter classifies in-process with a GGUF model: the input and every
// label prototype are embedded, then scored by zeroShot.
type llamaAdapter struct {
	prototypes []LabelPrototype
}

func NewLlamaAdapter(prototypes []LabelPrototype) Adapter {
	if len(prototypes) == 0 {
		prototypes = SentimentPrototypes
	}
	return &llamaAdapter{prototypes: prototypes}
}

// llamaSession owns the loaded model. go-llama.cpp contexts are not safe for
// concurrent use, so calls are serialized.
type llamaSession struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
	labels  []string
	protos  [][]float32
}

func (a *llamaAdapter) Start(ctx context.Context, model types.Model, params LoadParams) (Session, error) {
	path, err := ggufPath(model.Path)
	if err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{
		llama.EnableEmbeddings,
		llama.SetContext(max(params.CtxSize, 128)),
	}
	if !params.Device.IsCPU() {
		layers := params.GPULayers
		if layers <= 0 {
			layers = 999 // offload everything
		}
		mo = append(mo, llama.SetGPULayers(layers), llama.SetMainGPU(fmt.Sprint(int(params.Device))))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, fmt.Errorf("load gguf %s: %w", path, err)
	}
	s := &llamaSession{model: m, threads: max(params.Threads, 1)}
	for _, p := range a.prototypes {
		if err := ctx.Err(); err != nil {
			_ = s.Close()
			return nil, err
		}
		vec, err := m.Embeddings(p.Text, llama.SetThreads(s.threads))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("embed prototype %s: %w", p.Label, err)
		}
		s.labels = append(s.labels, p.Label)
		s.protos = append(s.protos, vec)
	}
	return s, nil
}

func (s *llamaSession) Classify(ctx context.Context, text string) ([]types.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	vec, err := s.model.Embeddings(text, llama.SetThreads(s.threads))
	if err != nil {
		return nil, err
	}
	return zeroShot(vec, s.protos, s.labels, zeroShotTemperature), nil
}

func (s *llamaSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}

// ggufPath accepts a .gguf file or a directory holding exactly one.
func ggufPath(p string) (string, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		if !strings.HasSuffix(strings.ToLower(p), ".gguf") {
			return "", fmt.Errorf("not a gguf file: %s", p)
		}
		return p, nil
	}
	models, err := registry.ScanGGUF(p)
	if err != nil {
		return "", err
	}
	switch len(models) {
	case 0:
		return "", fmt.Errorf("no .gguf file in %s", p)
	case 1:
		return models[0].Path, nil
	default:
		return "", fmt.Errorf("%d .gguf files in %s; point model_path at one", len(models), p)
	}
}
