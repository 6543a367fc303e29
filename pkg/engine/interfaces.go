package engine

import (
	"context"
	"time"
)

// Skill is the capability every schedulable unit implements.
type Skill interface {
	// Name returns the skill's default node name.
	Name() string

	// Version returns the skill version recorded in results.
	Version() string

	// Description returns a short human-readable description.
	Description() string

	// ValidateInputs checks the resolved inputs before execution.
	// A non-nil error fails the attempt.
	ValidateInputs(inputs map[string]interface{}) error

	// Execute runs one attempt. Implementations must honor ctx cancellation
	// and report failures through the returned result's status.
	Execute(ctx context.Context, ec *ExecutionContext) *SkillResult
}

// Runner is the reduced contract wrapped by Adapt: implementers supply Run and
// the adapter performs validation, timing, panic recovery and result translation.
type Runner interface {
	Name() string
	Version() string
	Description() string
	ValidateInputs(inputs map[string]interface{}) error

	// Run returns the skill outputs, or an error to fail the attempt.
	Run(ctx context.Context, ec *ExecutionContext) (map[string]interface{}, error)
}

// Observer receives execution lifecycle callbacks. The returned contexts are
// passed to subsequent calls for the same run or node, which lets tracing
// implementations nest spans.
type Observer interface {
	// RunStarted is called once per Execute, before any node runs.
	RunStarted(ctx context.Context, runID string, order []string) context.Context

	// NodeStarted is called before the first attempt of a node.
	NodeStarted(ctx context.Context, runID, node string) context.Context

	// AttemptFailed is called after a failed attempt. delay is zero when no
	// attempts remain.
	AttemptFailed(ctx context.Context, runID, node string, attempt int, err error, delay time.Duration)

	// NodeFinished is called once per node with its terminal result, including
	// skipped and cancelled nodes.
	NodeFinished(ctx context.Context, runID string, result *SkillResult)

	// RunFinished is called once with the aggregate result.
	RunFinished(ctx context.Context, result *DAGExecutionResult)
}

// NopObserver implements Observer with no-ops. Embed it to implement a subset.
type NopObserver struct{}

// RunStarted implements Observer.
func (NopObserver) RunStarted(ctx context.Context, _ string, _ []string) context.Context {
	return ctx
}

// NodeStarted implements Observer.
func (NopObserver) NodeStarted(ctx context.Context, _, _ string) context.Context {
	return ctx
}

// AttemptFailed implements Observer.
func (NopObserver) AttemptFailed(context.Context, string, string, int, error, time.Duration) {}

// NodeFinished implements Observer.
func (NopObserver) NodeFinished(context.Context, string, *SkillResult) {}

// RunFinished implements Observer.
func (NopObserver) RunFinished(context.Context, *DAGExecutionResult) {}
