package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEventPublisher_Sync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 10})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}
	defer ep.Shutdown(context.Background())

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, nil)

	if err := ep.PublishNodeStarted("run-1", "wf", "fetch"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("Expected 1 event delivered inline, got %d", len(got))
	}
	if got[0].ID == "" {
		t.Error("Expected an event ID to be assigned")
	}
	if got[0].Timestamp.IsZero() {
		t.Error("Expected a timestamp to be assigned")
	}
	if got[0].Node != "fetch" {
		t.Errorf("Expected node fetch, got %s", got[0].Node)
	}
}

func TestEventPublisher_Async(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:       true,
		EnableAsync:   true,
		BufferSize:    100,
		MaxBatchSize:  50,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}
	defer ep.Shutdown(context.Background())

	log := &eventLog{}
	ep.Subscribe(log.record, nil)

	for i := 0; i < 3; i++ {
		if err := ep.PublishNodeRetry("run-1", "wf", "parse", i, time.Second, "boom"); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if n := len(log.types()); n != 3 {
		t.Errorf("Expected 3 events after flush, got %d", n)
	}
}

func TestEventPublisher_ShutdownDrains(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:       true,
		EnableAsync:   true,
		BufferSize:    10,
		MaxBatchSize:  10,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	log := &eventLog{}
	ep.Subscribe(log.record, nil)

	_ = ep.PublishRunStarted("run-1", "wf", 2)
	_ = ep.PublishRunCompleted("run-1", "wf", "completed", time.Second)

	if err := ep.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if n := len(log.types()); n != 2 {
		t.Errorf("Expected 2 events delivered on shutdown, got %d", n)
	}

	if err := ep.PublishRunStarted("run-2", "wf", 1); !errors.Is(err, ErrPublisherStopped) {
		t.Errorf("Expected ErrPublisherStopped after shutdown, got %v", err)
	}
}

func TestEventPublisher_BufferFull(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:       true,
		EnableAsync:   true,
		BufferSize:    1,
		MaxBatchSize:  10,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}
	defer ep.Shutdown(context.Background())

	block := make(chan struct{})
	ep.Subscribe(func(Event) { <-block }, nil)
	defer close(block)

	// The first event may be picked up by the processing goroutine; keep
	// publishing until the buffer rejects one.
	var dropped bool
	for i := 0; i < 100 && !dropped; i++ {
		if err := ep.PublishNodeStarted("run-1", "wf", "n"); err != nil {
			dropped = true
		}
	}
	if !dropped {
		t.Error("Expected an event to be dropped when the buffer is full")
	}
}

func TestEventPublisher_Disabled(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	called := false
	ep.Subscribe(func(Event) { called = true }, nil)

	if err := ep.PublishRunStarted("run-1", "wf", 1); err != nil {
		t.Errorf("Expected nil error from a disabled publisher, got %v", err)
	}
	if called {
		t.Error("Expected no delivery from a disabled publisher")
	}
	if err := ep.Flush(context.Background()); err != nil {
		t.Errorf("Expected nil error from Flush, got %v", err)
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected nil error from Shutdown, got %v", err)
	}
}

func TestEventFilters(t *testing.T) {
	info := Event{Type: EventTypeNodeStarted, Level: EventLevelInfo, RunID: "r1", Node: "a"}
	warn := Event{Type: EventTypeNodeRetry, Level: EventLevelWarning, RunID: "r1", Node: "b"}
	fail := Event{Type: EventTypeNodeFailed, Level: EventLevelError, RunID: "r2", Node: "a"}

	tests := []struct {
		name     string
		filter   EventFilter
		expected []bool
	}{
		{"level warning", FilterByLevel(EventLevelWarning), []bool{false, true, true}},
		{"level error", FilterByLevel(EventLevelError), []bool{false, false, true}},
		{"type", FilterByType(EventTypeNodeStarted, EventTypeNodeFailed), []bool{true, false, true}},
		{"run id", FilterByRunID("r1"), []bool{true, true, false}},
		{"node", FilterByNode("a"), []bool{true, false, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, event := range []Event{info, warn, fail} {
				if got := tt.filter(event); got != tt.expected[i] {
					t.Errorf("Event %s: expected %v, got %v", event.Type, tt.expected[i], got)
				}
			}
		})
	}
}

func TestEventPublisher_GlobalFilter(t *testing.T) {
	ep, _ := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 10})
	defer ep.Shutdown(context.Background())

	ep.AddFilter(FilterByLevel(EventLevelWarning))

	log := &eventLog{}
	ep.Subscribe(log.record, nil)

	_ = ep.PublishNodeStarted("run-1", "wf", "a")
	_ = ep.PublishNodeSkipped("run-1", "wf", "b", "skipped: dependency a failed")
	_ = ep.PublishPolicyViolation("wf", "c", "node-naming", "error", "bad name")

	got := log.types()
	if len(got) != 2 || got[0] != EventTypeNodeSkipped || got[1] != EventTypePolicyViolation {
		t.Errorf("Expected [node.skipped policy.violation], got %v", got)
	}
}
