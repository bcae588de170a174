package worker

import (
	"sync"
	"time"

	"gpuworker/pkg/types"
)

// Worker lifecycle states reported by /status.
const (
	StateStarting = "starting"
	StateLoading  = "loading"
	StateRunning  = "running"
	StateIdle     = "idle"
	StateStopping = "stopping"
	StateError    = "error"
)

// Status is the snapshot the ops listener serves. Safe for concurrent use.
type Status struct {
	mu      sync.RWMutex
	runID   string
	started time.Time
	state   string
	model   *types.Model
	device  string
	diag    types.Diagnostics
	results []types.ExampleResult
	lastErr string
	ready   bool
}

// NewStatus returns a status in StateStarting.
func NewStatus(runID string) *Status {
	return &Status{runID: runID, started: time.Now(), state: StateStarting}
}

func (s *Status) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Status) setDiagnostics(d types.Diagnostics) {
	s.mu.Lock()
	s.diag = d
	s.mu.Unlock()
}

func (s *Status) setModel(m types.Model, device string) {
	s.mu.Lock()
	s.model = &m
	s.device = device
	s.mu.Unlock()
}

func (s *Status) addResult(r types.ExampleResult) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

func (s *Status) setError(err error) {
	s.mu.Lock()
	s.state = StateError
	s.lastErr = err.Error()
	s.mu.Unlock()
}

// markReady flips readiness once the examples have run.
func (s *Status) markReady() {
	s.mu.Lock()
	s.ready = true
	s.state = StateIdle
	s.mu.Unlock()
}

// Ready reports whether the example run finished.
func (s *Status) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Snapshot returns a copy of the current state.
func (s *Status) Snapshot() types.StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		RunID:          s.runID,
		State:          s.state,
		Device:         s.device,
		Diagnostics:    s.diag,
		Results:        append([]types.ExampleResult(nil), s.results...),
		LastError:      s.lastErr,
		UptimeSeconds:  int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	if s.model != nil {
		m := *s.model
		resp.Model = &m
	}
	return resp
}
