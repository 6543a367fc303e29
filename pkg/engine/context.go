package engine

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ExecutionContext is the per-attempt state handed to a skill. The executor builds a
// fresh context for every attempt; only the audit trail is shared between the attempts
// of one node.
type ExecutionContext struct {
	// SkillName is the graph node name being executed.
	SkillName string

	// SkillVersion is the version reported by the skill.
	SkillVersion string

	// Inputs are the resolved inputs: global inputs, upstream outputs and config overrides.
	Inputs map[string]interface{}

	// Audit is the trail of the node this attempt belongs to.
	Audit *AuditTrail

	// Retry is the retry policy active for this node.
	Retry RetryConfig

	// Mode controls whether debug events are also logged.
	Mode ExecutionMode

	// Attempt is the zero-based attempt number.
	Attempt int

	// Logger is scoped to this node and attempt.
	Logger zerolog.Logger

	mu      sync.Mutex
	outputs map[string]interface{}
}

// NewExecutionContext creates a context for one attempt of the named node.
// A nil audit trail gets a fresh one.
func NewExecutionContext(name, version string, inputs map[string]interface{}, audit *AuditTrail) *ExecutionContext {
	if inputs == nil {
		inputs = make(map[string]interface{})
	}
	if audit == nil {
		audit = NewAuditTrail(name)
	}
	return &ExecutionContext{
		SkillName:    name,
		SkillVersion: version,
		Inputs:       inputs,
		Audit:        audit,
		Retry:        DefaultRetryConfig(),
		Mode:         ModeQuiet,
		Logger:       zerolog.Nop(),
		outputs:      make(map[string]interface{}),
	}
}

// Input returns the resolved input for key.
func (c *ExecutionContext) Input(key string) (interface{}, bool) {
	v, ok := c.Inputs[key]
	return v, ok
}

// InputString returns the input for key formatted as a string, or "" when absent.
func (c *ExecutionContext) InputString(key string) string {
	v, ok := c.Inputs[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// SetOutput stores an output value and records it in the audit trail.
func (c *ExecutionContext) SetOutput(key string, value interface{}) {
	c.mu.Lock()
	c.outputs[key] = value
	c.mu.Unlock()
	c.Audit.recordOutput(c.Attempt, key)
}

// Outputs returns a copy of the outputs accumulated so far.
func (c *ExecutionContext) Outputs() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]interface{}, len(c.outputs))
	for k, v := range c.outputs {
		out[k] = v
	}
	return out
}

// Debug records a diagnostic message. In verbose mode it is also logged.
func (c *ExecutionContext) Debug(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.Audit.Record(AuditDebug, c.Attempt, msg)
	if c.Mode == ModeVerbose {
		c.Logger.Debug().Msg(msg)
	}
}

// Error records a failure message in the audit trail.
func (c *ExecutionContext) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.Audit.Record(AuditError, c.Attempt, msg)
	c.Logger.Warn().Msg(msg)
}
