//go:build !llama

package pipeline

// This file provides a no-CGO stub for the llama adapter. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds CGO-free.

import (
	"context"

	"gpuworker/pkg/types"
)

const llamaBuilt = false

type llamaAdapter struct{}

func NewLlamaAdapter([]LabelPrototype) Adapter { return llamaAdapter{} }

func (llamaAdapter) Start(context.Context, types.Model, LoadParams) (Session, error) {
	// Fail fast: llama runtime not available in this build.
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
