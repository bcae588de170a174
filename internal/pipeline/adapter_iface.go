package pipeline

import (
	"context"

	"gpuworker/pkg/types"
)

// Adapter abstracts the model runtime used by the Pipeline.
// Concrete implementations (server subprocess, remote endpoint, llama.cpp)
// satisfy this interface.
type Adapter interface {
	// Start loads model on the requested device and returns a ready session.
	Start(ctx context.Context, model types.Model, params LoadParams) (Session, error)
}

// Session is a loaded model able to classify text.
type Session interface {
	// Classify returns every label the backend scored for text, in any order.
	// Implementations must return when the context is canceled.
	Classify(ctx context.Context, text string) ([]types.Prediction, error)
	// Close releases any resources associated with the session.
	Close() error
}

// LoadParams captures load-time options passed to the adapter.
type LoadParams struct {
	Device    Device
	Threads   int
	CtxSize   int
	GPULayers int
}
