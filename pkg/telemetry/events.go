package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a lifecycle notification emitted while a workflow runs.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Workflow is the workflow name, if known.
	Workflow string `json:"workflow,omitempty"`

	// Node is the associated graph node, if applicable.
	Node string `json:"node,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeRunStarted      = "run.started"
	EventTypeRunCompleted    = "run.completed"
	EventTypeRunFailed       = "run.failed"
	EventTypeNodeStarted     = "node.started"
	EventTypeNodeCompleted   = "node.completed"
	EventTypeNodeFailed      = "node.failed"
	EventTypeNodeRetry       = "node.retry"
	EventTypeNodeSkipped     = "node.skipped"
	EventTypeNodeCancelled   = "node.cancelled"
	EventTypePolicyViolation = "policy.violation"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// ErrPublisherStopped is returned when publishing after Shutdown.
var ErrPublisherStopped = errors.New("event publisher stopped")

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, either inline or from a
// background goroutine that delivers in batches.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	flushReq    chan chan struct{}
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.EnableAsync && cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.flushReq = make(chan chan struct{})
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}
	if ep.ctx.Err() != nil {
		return ErrPublisherStopped
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if !ep.config.EnableAsync {
		ep.deliverEvent(event)
		return nil
	}

	select {
	case ep.buffer <- event:
		return nil
	case <-ep.ctx.Done():
		return ErrPublisherStopped
	default:
		return fmt.Errorf("event buffer full, %s event dropped", event.Type)
	}
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID, workflow string, nodes int) error {
	return ep.Publish(Event{
		Type:     EventTypeRunStarted,
		Source:   "executor",
		RunID:    runID,
		Workflow: workflow,
		Message:  fmt.Sprintf("Run %s started with %d nodes", runID, nodes),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"nodes": nodes,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, workflow, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeRunCompleted,
		Source:   "executor",
		RunID:    runID,
		Workflow: workflow,
		Message:  fmt.Sprintf("Run %s completed with status: %s", runID, status),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishRunFailed publishes a run failed event.
func (ep *EventPublisher) PublishRunFailed(runID, workflow string, failed []string) error {
	return ep.Publish(Event{
		Type:     EventTypeRunFailed,
		Source:   "executor",
		RunID:    runID,
		Workflow: workflow,
		Message:  fmt.Sprintf("Run %s failed: %d node(s) failed", runID, len(failed)),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"failed": failed,
		},
	})
}

// PublishNodeStarted publishes a node started event.
func (ep *EventPublisher) PublishNodeStarted(runID, workflow, node string) error {
	return ep.Publish(Event{
		Type:     EventTypeNodeStarted,
		Source:   "executor",
		RunID:    runID,
		Workflow: workflow,
		Node:     node,
		Message:  fmt.Sprintf("Node %s started", node),
		Level:    EventLevelInfo,
	})
}

// PublishNodeCompleted publishes a node completed event.
func (ep *EventPublisher) PublishNodeCompleted(runID, workflow, node string, retries int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeNodeCompleted,
		Source:   "executor",
		RunID:    runID,
		Workflow: workflow,
		Node:     node,
		Message:  fmt.Sprintf("Node %s completed", node),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"retries":  retries,
			"duration": duration.Seconds(),
		},
	})
}

// PublishNodeFailed publishes a node failed event.
func (ep *EventPublisher) PublishNodeFailed(runID, workflow, node, code, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeNodeFailed,
		Source:   "executor",
		RunID:    runID,
		Workflow: workflow,
		Node:     node,
		Message:  fmt.Sprintf("Node %s failed: %s", node, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"code":   code,
			"reason": reason,
		},
	})
}

// PublishNodeRetry publishes an event for a scheduled retry.
func (ep *EventPublisher) PublishNodeRetry(runID, workflow, node string, attempt int, delay time.Duration, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeNodeRetry,
		Source:   "executor",
		RunID:    runID,
		Workflow: workflow,
		Node:     node,
		Message:  fmt.Sprintf("Node %s attempt %d failed, retrying in %s", node, attempt+1, delay),
		Level:    EventLevelWarning,
		Data: map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.Seconds(),
			"reason":  reason,
		},
	})
}

// PublishNodeSkipped publishes an event for a node skipped after a dependency failed.
func (ep *EventPublisher) PublishNodeSkipped(runID, workflow, node, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeNodeSkipped,
		Source:   "executor",
		RunID:    runID,
		Workflow: workflow,
		Node:     node,
		Message:  fmt.Sprintf("Node %s %s", node, reason),
		Level:    EventLevelWarning,
	})
}

// PublishNodeCancelled publishes an event for a node that never started.
func (ep *EventPublisher) PublishNodeCancelled(runID, workflow, node, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeNodeCancelled,
		Source:   "executor",
		RunID:    runID,
		Workflow: workflow,
		Node:     node,
		Message:  fmt.Sprintf("Node %s %s", node, reason),
		Level:    EventLevelWarning,
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(workflow, node, policyName, severity, reason string) error {
	level := EventLevelWarning
	if severity == "error" || severity == "critical" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:     EventTypePolicyViolation,
		Source:   "policy",
		Workflow: workflow,
		Node:     node,
		Message:  fmt.Sprintf("Policy %s violated: %s", policyName, reason),
		Level:    level,
		Data: map[string]interface{}{
			"policy":   policyName,
			"severity": severity,
			"reason":   reason,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter receives every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents batches buffered events and delivers them when the batch is
// full, on every flush tick, on Flush and on shutdown.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		ep.flushBatch(batch)
		batch = batch[:0]
	}
	drain := func() {
		for {
			select {
			case event := <-ep.buffer:
				batch = append(batch, event)
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case done := <-ep.flushReq:
			drain()
			close(done)

		case <-ep.ctx.Done():
			drain()
			return
		}
	}
}

// Flush blocks until every buffered event has been delivered.
func (ep *EventPublisher) Flush(ctx context.Context) error {
	if !ep.config.Enabled || !ep.config.EnableAsync {
		return nil
	}

	done := make(chan struct{})
	select {
	case ep.flushReq <- done:
	case <-ep.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all matching subscribers, in subscription order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	entries := make([]subscriberEntry, len(ep.subscribers))
	copy(entries, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range entries {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// FilterByNode creates a filter that only allows events for one node.
func FilterByNode(node string) EventFilter {
	return func(event Event) bool {
		return event.Node == node
	}
}
