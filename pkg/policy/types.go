package policy

import (
	"time"

	"github.com/skilldag/skilldag/pkg/config"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that block the run.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that block the run.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity prevents execution.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code. The Rego module must define
// a "deny" set whose members are strings or objects with "message" and optional
// "severity" and "node" fields.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Node is the workflow node the violation refers to, if any.
	Node string `json:"node,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policies were evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as "input".
type Input struct {
	// Workflow is the workflow as written.
	Workflow *config.WorkflowSpec `json:"workflow"`

	// Graph describes the assembled graph; nil when evaluating before assembly.
	Graph *GraphInfo `json:"graph,omitempty"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}

// GraphInfo is the shape of an assembled graph.
type GraphInfo struct {
	// Order is the topological order.
	Order []string `json:"order"`

	// Layers groups nodes by depth; index 0 holds the roots.
	Layers [][]string `json:"layers"`

	// Depth is the number of layers.
	Depth int `json:"depth"`

	// Edges maps each node to its dependencies.
	Edges map[string][]string `json:"edges"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// User is the user running the workflow.
	User string `json:"user,omitempty"`

	// Environment is the deployment environment (e.g., "production").
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation is the CLI operation (e.g., "run", "validate").
	Operation string `json:"operation,omitempty"`
}
