package engine

import (
	"encoding/json"
	"fmt"
)

// ExecutionStatus represents the lifecycle state of a skill execution or of a whole run.
//
//	pending -> running -> {completed | failed | retry}
//	failed (after exhausting retries) -> skipped for every transitive dependent
type ExecutionStatus string

const (
	// StatusPending indicates the node has not been started yet.
	StatusPending ExecutionStatus = "pending"

	// StatusRunning indicates an attempt is in progress.
	StatusRunning ExecutionStatus = "running"

	// StatusCompleted indicates the skill finished successfully.
	StatusCompleted ExecutionStatus = "completed"

	// StatusFailed indicates the skill failed and no attempts remain.
	StatusFailed ExecutionStatus = "failed"

	// StatusRetry indicates an attempt failed and another one is scheduled.
	StatusRetry ExecutionStatus = "retry"

	// StatusSkipped indicates the node was not executed because an ancestor failed.
	StatusSkipped ExecutionStatus = "skipped"

	// StatusCancelled indicates the node never started because the run was cancelled
	// or its deadline expired.
	StatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed ||
		s == StatusSkipped || s == StatusCancelled
}

// IsActive returns true if the node is pending, running or waiting to retry.
func (s ExecutionStatus) IsActive() bool {
	return s == StatusPending || s == StatusRunning || s == StatusRetry
}

// Validate checks if the execution status is valid.
func (s ExecutionStatus) Validate() error {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed,
		StatusRetry, StatusSkipped, StatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid execution status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s ExecutionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *ExecutionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ExecutionStatus(str)
	return s.Validate()
}

// ExecutionMode controls how chatty an execution context is.
type ExecutionMode string

const (
	// ModeQuiet records debug events in the audit trail without logging them.
	ModeQuiet ExecutionMode = "quiet"

	// ModeVerbose additionally logs every debug event at debug level.
	ModeVerbose ExecutionMode = "verbose"
)

// Validate checks if the execution mode is valid.
func (m ExecutionMode) Validate() error {
	switch m {
	case ModeQuiet, ModeVerbose:
		return nil
	default:
		return fmt.Errorf("invalid execution mode: %s", m)
	}
}

// AuditEventType is the kind of an audit trail entry.
type AuditEventType string

const (
	// AuditStart is recorded when an attempt begins.
	AuditStart AuditEventType = "start"

	// AuditDebug is a free-form diagnostic message from the skill or executor.
	AuditDebug AuditEventType = "debug"

	// AuditError records a failure reported by the skill or recovered from a panic.
	AuditError AuditEventType = "error"

	// AuditOutputSet records an output key being written.
	AuditOutputSet AuditEventType = "output_set"

	// AuditRetry records that another attempt has been scheduled.
	AuditRetry AuditEventType = "retry"

	// AuditComplete records the terminal status of the node.
	AuditComplete AuditEventType = "complete"
)
