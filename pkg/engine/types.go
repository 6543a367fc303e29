package engine

import (
	"time"
)

// SkillResult is the outcome of executing one node, or of one attempt when returned
// by a skill. The executor owns the final result recorded for a node.
type SkillResult struct {
	// SkillName is the node name.
	SkillName string `json:"skill_name"`

	// SkillVersion is the version reported by the skill.
	SkillVersion string `json:"skill_version,omitempty"`

	// Status is the terminal status. Anything other than completed counts as a failure
	// for retry purposes.
	Status ExecutionStatus `json:"status"`

	// Output is the structured output of a completed skill.
	Output map[string]interface{} `json:"output,omitempty"`

	// Error is the last error message for failed, skipped or cancelled nodes.
	Error string `json:"error,omitempty"`

	// ErrorCode is the engine error code matching Error, if any.
	ErrorCode string `json:"error_code,omitempty"`

	// RetryCount is the number of retries consumed.
	RetryCount int `json:"retry_count"`

	// Duration is the elapsed time across all attempts and backoff waits.
	Duration time.Duration `json:"duration"`

	// StartedAt is when the first attempt started. Zero for nodes that never ran.
	StartedAt time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the node reached its terminal state.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Audit is the node's audit trail. Nil for nodes that never ran.
	Audit *AuditTrail `json:"audit_trail,omitempty"`
}

// Succeeded reports whether the result status is completed.
func (r *SkillResult) Succeeded() bool {
	return r != nil && r.Status == StatusCompleted
}

// Completed returns a completed result carrying output.
func Completed(output map[string]interface{}) *SkillResult {
	return &SkillResult{Status: StatusCompleted, Output: output}
}

// Failed returns a failed result carrying the error message of err.
func Failed(err error) *SkillResult {
	r := &SkillResult{Status: StatusFailed}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// DAGExecutionResult is the only artifact returned from a run. It contains no
// handles and is fully JSON serializable.
type DAGExecutionResult struct {
	// RunID uniquely identifies this execution.
	RunID string `json:"run_id"`

	// Status is completed only when no node failed and nothing was cancelled.
	Status ExecutionStatus `json:"status"`

	// Order is the topological order the nodes were visited in.
	Order []string `json:"order"`

	// Results holds one result per node, in Order.
	Results []*SkillResult `json:"results"`

	// Failed lists the nodes that exhausted their retries.
	Failed []string `json:"failed"`

	// Skipped lists the nodes not executed because an ancestor failed.
	Skipped []string `json:"skipped"`

	// Cancelled lists the nodes not started because the run was cancelled.
	Cancelled []string `json:"cancelled,omitempty"`

	// Duration is the total elapsed time.
	Duration time.Duration `json:"duration"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`
}

// Result returns the result recorded for the named node.
func (r *DAGExecutionResult) Result(name string) (*SkillResult, bool) {
	for _, res := range r.Results {
		if res.SkillName == name {
			return res, true
		}
	}
	return nil, false
}

// Completed returns the names of nodes that completed, in execution order.
func (r *DAGExecutionResult) Completed() []string {
	names := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Status == StatusCompleted {
			names = append(names, res.SkillName)
		}
	}
	return names
}

// Succeeded reports whether the run completed.
func (r *DAGExecutionResult) Succeeded() bool {
	return r.Status == StatusCompleted
}

// Summary counts results by status.
func (r *DAGExecutionResult) Summary() RunSummary {
	s := RunSummary{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusCancelled:
			s.Cancelled++
		}
		s.Retries += res.RetryCount
	}
	return s
}

// RunSummary provides aggregate counts for a run.
type RunSummary struct {
	// Total is the total number of nodes.
	Total int `json:"total"`

	// Completed is the number of completed nodes.
	Completed int `json:"completed"`

	// Failed is the number of failed nodes.
	Failed int `json:"failed"`

	// Skipped is the number of skipped nodes.
	Skipped int `json:"skipped"`

	// Cancelled is the number of cancelled nodes.
	Cancelled int `json:"cancelled"`

	// Retries is the total number of retries consumed.
	Retries int `json:"retries"`
}
