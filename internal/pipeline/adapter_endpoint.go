package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gpuworker/pkg/types"
)

// endpointAdapter uses a classification server that somebody else runs. The
// resolved model is only checked for existence; the server owns the weights.
type endpointAdapter struct {
	url     string
	timeout time.Duration
}

// NewEndpointAdapter constructs an adapter for an already running server.
func NewEndpointAdapter(url string, requestTimeout time.Duration) Adapter {
	return &endpointAdapter{url: strings.TrimSpace(url), timeout: requestTimeout}
}

type endpointSession struct{ c *predictClient }

func (a *endpointAdapter) Start(ctx context.Context, _ types.Model, _ LoadParams) (Session, error) {
	if a.url == "" {
		return nil, fmt.Errorf("endpoint url is empty")
	}
	c := newPredictClient(a.url, a.timeout)
	if !c.Healthy(ctx, 5*time.Second) {
		return nil, ErrDependencyUnavailable("classification endpoint not healthy: " + a.url)
	}
	return &endpointSession{c: c}, nil
}

func (s *endpointSession) Classify(ctx context.Context, text string) ([]types.Prediction, error) {
	return s.c.Predict(ctx, text)
}

func (s *endpointSession) Close() error { return nil }
