package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gpuworker/pkg/types"
)

// fakeAdapter is a lightweight in-memory adapter used for tests.
type fakeAdapter struct {
	mu        sync.Mutex
	startErr  error
	classErr  error
	preds     []types.Prediction
	started   types.Model
	params    LoadParams
	closed    int
	callTexts []string
}

func (f *fakeAdapter) Start(_ context.Context, model types.Model, params LoadParams) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = model
	f.params = params
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &fakeSession{f: f}, nil
}

type fakeSession struct{ f *fakeAdapter }

func (s *fakeSession) Classify(ctx context.Context, text string) ([]types.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.callTexts = append(s.f.callTexts, text)
	if s.f.classErr != nil {
		return nil, s.f.classErr
	}
	return append([]types.Prediction(nil), s.f.preds...), nil
}

func (s *fakeSession) Close() error {
	s.f.mu.Lock()
	s.f.closed++
	s.f.mu.Unlock()
	return nil
}

// makeModelDir creates a local model directory with a config file.
func makeModelDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "distilbert-model")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"architectures":["DistilBertForSequenceClassification"]}`), 0o644))
	return dir
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
