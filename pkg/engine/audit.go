package engine

import (
	"encoding/json"
	"sync"
	"time"
)

// AuditEvent is one timestamped entry in an audit trail.
type AuditEvent struct {
	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Type is the kind of event.
	Type AuditEventType `json:"type"`

	// Attempt is the zero-based attempt the event belongs to.
	Attempt int `json:"attempt"`

	// Message is a human-readable description.
	Message string `json:"message,omitempty"`

	// Key is the output key for output_set events.
	Key string `json:"key,omitempty"`
}

// AuditTrail is the append-only record of everything that happened to one node
// across all of its attempts. Once sealed it no longer accepts events.
type AuditTrail struct {
	mu     sync.Mutex
	skill  string
	events []AuditEvent
	status ExecutionStatus
	output map[string]interface{}
	sealed bool
}

// NewAuditTrail creates an empty trail for the named node.
func NewAuditTrail(skill string) *AuditTrail {
	return &AuditTrail{
		skill:  skill,
		events: make([]AuditEvent, 0),
		status: StatusPending,
	}
}

// Record appends an event. It reports false if the trail is already sealed.
func (a *AuditTrail) Record(eventType AuditEventType, attempt int, message string) bool {
	return a.append(AuditEvent{
		Timestamp: time.Now(),
		Type:      eventType,
		Attempt:   attempt,
		Message:   message,
	})
}

func (a *AuditTrail) recordOutput(attempt int, key string) bool {
	return a.append(AuditEvent{
		Timestamp: time.Now(),
		Type:      AuditOutputSet,
		Attempt:   attempt,
		Key:       key,
	})
}

func (a *AuditTrail) append(ev AuditEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return false
	}
	a.events = append(a.events, ev)
	return true
}

// Seal records the terminal status and final output and makes the trail immutable.
// Sealing twice is a no-op.
func (a *AuditTrail) Seal(status ExecutionStatus, output map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return
	}
	a.events = append(a.events, AuditEvent{
		Timestamp: time.Now(),
		Type:      AuditComplete,
		Message:   string(status),
	})
	a.status = status
	a.output = output
	a.sealed = true
}

// Sealed reports whether the trail has reached a terminal state.
func (a *AuditTrail) Sealed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sealed
}

// Status returns the terminal status, or pending while the trail is open.
func (a *AuditTrail) Status() ExecutionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Events returns a copy of the recorded events.
func (a *AuditTrail) Events() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]AuditEvent, len(a.events))
	copy(out, a.events)
	return out
}

// Count returns the number of events of the given type.
func (a *AuditTrail) Count(eventType AuditEventType) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, ev := range a.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

// MarshalJSON serializes the trail with its events, status and final output.
func (a *AuditTrail) MarshalJSON() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return json.Marshal(struct {
		Skill  string                 `json:"skill"`
		Status ExecutionStatus        `json:"status"`
		Sealed bool                   `json:"sealed"`
		Events []AuditEvent           `json:"events"`
		Output map[string]interface{} `json:"output,omitempty"`
	}{a.skill, a.status, a.sealed, a.events, a.output})
}

// UnmarshalJSON restores a trail produced by MarshalJSON, for consumers that
// read persisted results back.
func (a *AuditTrail) UnmarshalJSON(data []byte) error {
	var raw struct {
		Skill  string                 `json:"skill"`
		Status ExecutionStatus        `json:"status"`
		Sealed bool                   `json:"sealed"`
		Events []AuditEvent           `json:"events"`
		Output map[string]interface{} `json:"output,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.skill = raw.Skill
	a.status = raw.Status
	a.sealed = raw.Sealed
	a.events = raw.Events
	a.output = raw.Output
	return nil
}
