package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLogger_LogAndEvents(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	now := time.Now().Truncate(time.Millisecond)

	events := []Event{
		{Timestamp: now, Type: EventImagePull, Sandbox: "test-sandbox", Detail: "alpine:3"},
		{Timestamp: now.Add(time.Second), Type: EventContainerStart, Sandbox: "test-sandbox"},
		{Timestamp: now.Add(2 * time.Second), Type: EventHealthCheck, Sandbox: "test-sandbox", Detail: "healthy"},
		{Timestamp: now.Add(3 * time.Second), Type: EventContainerStop, Sandbox: "test-sandbox"},
	}

	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	result, err := logger.Events("test-sandbox")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}

	if len(result) != len(events) {
		t.Fatalf("got %d events, want %d", len(result), len(events))
	}

	for i, e := range result {
		if e.Type != events[i].Type {
			t.Errorf("event %d: type = %q, want %q", i, e.Type, events[i].Type)
		}
		if e.Sandbox != events[i].Sandbox {
			t.Errorf("event %d: sandbox = %q, want %q", i, e.Sandbox, events[i].Sandbox)
		}
		if e.Detail != events[i].Detail {
			t.Errorf("event %d: detail = %q, want %q", i, e.Detail, events[i].Detail)
		}
		if e.ID == "" {
			t.Errorf("event %d: id should be assigned", i)
		}
	}
}

func TestLogger_EventsEmpty(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	result, err := logger.Events("nonexistent")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}

	if len(result) != 0 {
		t.Errorf("got %d events, want 0", len(result))
	}
}

func TestLogger_LogEvent(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	if err := logger.LogEvent(EventError, "my-sandbox", "Browser container start failed: boom"); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	events, err := logger.Events("my-sandbox")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	e := events[0]
	if e.Type != EventError {
		t.Errorf("type = %q, want %q", e.Type, EventError)
	}
	if e.Sandbox != "my-sandbox" {
		t.Errorf("sandbox = %q, want %q", e.Sandbox, "my-sandbox")
	}
	if e.Detail != "Browser container start failed: boom" {
		t.Errorf("detail = %q", e.Detail)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp should be set automatically")
	}
}

func TestLogger_FileLocation(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	if err := logger.LogEvent(EventRecover, "located", ""); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "sandboxes", "located.events.jsonl")); err != nil {
		t.Errorf("expected event file: %v", err)
	}
}

func TestLogger_PathStaysInStateDir(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(filepath.Join(dir, "state"))

	if err := logger.LogEvent(EventRecover, "../../escape", ""); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "escape.events.jsonl")); !os.IsNotExist(err) {
		t.Error("event file escaped the state directory")
	}
}

func TestLogger_Tail(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	for i := 0; i < 5; i++ {
		logger.LogEvent(EventHealthCheck, "tail", string(rune('A'+i)))
	}

	events, err := logger.Tail("tail", 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(events) != 2 || events[0].Detail != "D" || events[1].Detail != "E" {
		t.Errorf("Tail(2) = %+v", events)
	}

	all, _ := logger.Tail("tail", 0)
	if len(all) != 5 {
		t.Errorf("Tail(0) returned %d events, want 5", len(all))
	}
}

func TestLogger_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	logger.LogEvent(EventRecover, "mixed", "first")
	path := filepath.Join(dir, "sandboxes", "mixed.events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n\n")
	f.Close()
	logger.LogEvent(EventRecover, "mixed", "second")

	events, err := logger.Events("mixed")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestLogger_Remove(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	logger.LogEvent(EventContainerStart, "removable", "")

	if err := logger.Remove("removable"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	events, err := logger.Events("removable")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events after remove, want 0", len(events))
	}
}

func TestLogger_RemoveNonexistent(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	if err := logger.Remove("nonexistent"); err != nil {
		t.Errorf("Remove should not error for nonexistent: %v", err)
	}
}

func TestLogger_EventOrder(t *testing.T) {
	dir := t.TempDir()
	logger := NewLogger(dir)

	base := time.Now()
	for i := 0; i < 5; i++ {
		logger.Log(Event{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Type:      EventStateChange,
			Sandbox:   "order-test",
			Detail:    string(rune('A' + i)),
		})
	}

	events, _ := logger.Events("order-test")
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}

	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Errorf("event %d timestamp before event %d", i, i-1)
		}
	}
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventRecover, "x", "d")
	b := NewEvent(EventRecover, "x", "d")

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids should be unique: %q %q", a.ID, b.ID)
	}
	if a.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}
