// Package audit provides structured event logging for sandbox lifecycle events.
// Events are stored as JSON Lines (JSONL) files, one per sandbox, and are
// never rewritten: the log only grows until the sandbox's state is purged.
package audit

import (
	"bufio"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/oklog/ulid/v2"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventContainerStart  EventType = "container_start"
	EventContainerStop   EventType = "container_stop"
	EventContainerRemove EventType = "container_remove"
	EventOrphanCleanup   EventType = "orphan_cleanup"
	EventImagePull       EventType = "image_pull"
	EventHealthCheck     EventType = "health_check"
	EventStateChange     EventType = "state_change"
	EventBrowserStart    EventType = "browser_start"
	EventRecover         EventType = "recover"
	EventError           EventType = "error"
)

// Event represents a single audit log entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Sandbox   string    `json:"sandbox"`
	Detail    string    `json:"detail,omitempty"`
}

// NewEvent returns an event stamped with a fresh id and the current time.
func NewEvent(eventType EventType, sandbox, detail string) Event {
	now := time.Now()
	return Event{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Timestamp: now,
		Type:      eventType,
		Sandbox:   sandbox,
		Detail:    detail,
	}
}

// Logger writes and reads audit events for sandboxes.
// Events are stored in {stateDir}/sandboxes/{name}.events.jsonl.
type Logger struct {
	stateDir string
}

// NewLogger creates a new audit logger rooted at stateDir.
func NewLogger(stateDir string) *Logger {
	return &Logger{stateDir: stateDir}
}

// eventPath returns the path to the JSONL event log for a sandbox. The
// sandbox name cannot escape the state directory.
func (l *Logger) eventPath(sandbox string) (string, error) {
	path, err := securejoin.SecureJoin(l.stateDir, filepath.Join("sandboxes", sandbox+".events.jsonl"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve audit log path: %w", err)
	}
	return path, nil
}

// Log appends an event to the sandbox's audit log.
func (l *Logger) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = ulid.MustNew(ulid.Timestamp(event.Timestamp), rand.Reader).String()
	}

	path, err := l.eventPath(event.Sandbox)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogEvent is a convenience method that creates and logs an event.
func (l *Logger) LogEvent(eventType EventType, sandbox, detail string) error {
	return l.Log(NewEvent(eventType, sandbox, detail))
}

// Events reads all events for a sandbox in chronological order.
func (l *Logger) Events(sandbox string) ([]Event, error) {
	path, err := l.eventPath(sandbox)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading audit log: %w", err)
	}

	return events, nil
}

// Tail returns the last n events for a sandbox. n <= 0 returns all events.
func (l *Logger) Tail(sandbox string, n int) ([]Event, error) {
	events, err := l.Events(sandbox)
	if err != nil || n <= 0 || len(events) <= n {
		return events, err
	}
	return events[len(events)-n:], nil
}

// Remove deletes the audit log for a sandbox.
func (l *Logger) Remove(sandbox string) error {
	path, err := l.eventPath(sandbox)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
