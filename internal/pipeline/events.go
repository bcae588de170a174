package pipeline

import (
	"sync"

	"github.com/rs/zerolog"
)

// Event represents a pipeline lifecycle event.
// Minimal and stable: name + model ID and optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// Event names.
const (
	EventLoadStart    = "load_start"
	EventLoadReady    = "load_ready"
	EventLoadError    = "load_error"
	EventSpawnStart   = "spawn_start"
	EventSpawnReady   = "spawn_ready"
	EventSpawnExit    = "spawn_exit"
	EventSpawnTimeout = "spawn_timeout"
	EventSpawnStop    = "spawn_stop"
	EventClassify     = "classify"
	EventClassifyErr  = "classify_error"
	// EventDiagnostics carries the startup accelerator probe result.
	EventDiagnostics = "diagnostics"
)

// EventPublisher receives events from the pipeline. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns just the event names, in publish order.
func (p *MemoryPublisher) Names() []string {
	evs := p.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Name
	}
	return out
}

// MultiPublisher fans an event out to several publishers.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}

// LogPublisher writes events to a logger at debug level.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (l LogPublisher) Publish(e Event) {
	l.Logger.Debug().Str("event", e.Name).Str("model", e.ModelID).Fields(e.Fields).Msg("pipeline event")
}
