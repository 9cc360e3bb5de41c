package sandbox

import (
	"sync"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
)

// Event is one entry of the sandbox event log.
type Event = audit.Event

// EventType classifies an event; see the audit.Event* constants.
type EventType = audit.EventType

// Sink receives every event appended to an EventLog, e.g. for persistence.
type Sink interface {
	Log(event audit.Event) error
}

// EventLog is an append-only, concurrency-safe list of events.
type EventLog struct {
	mu      sync.RWMutex
	sandbox string
	events  []Event
	sinks   []Sink
}

// NewEventLog creates an empty event log for a sandbox.
func NewEventLog(sandbox string, sinks ...Sink) *EventLog {
	return &EventLog{sandbox: sandbox, sinks: sinks}
}

// Append records a new event and forwards it to every sink. Sink failures
// are logged and never lose the in-memory entry.
func (l *EventLog) Append(eventType EventType, detail string) Event {
	event := audit.NewEvent(eventType, l.sandbox, detail)

	l.mu.Lock()
	l.events = append(l.events, event)
	sinks := l.sinks
	l.mu.Unlock()

	for _, s := range sinks {
		if err := s.Log(event); err != nil {
			logging.Warn("failed to persist sandbox event", "type", eventType, "error", err)
		}
	}
	return event
}

// Events returns a copy of all events in append order.
func (l *EventLog) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Filter returns the events of one type in append order.
func (l *EventLog) Filter(eventType EventType) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
