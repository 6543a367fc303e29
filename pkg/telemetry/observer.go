package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/skilldag/skilldag/pkg/engine"
)

// RunObserver reports executor lifecycle callbacks as spans, metrics and events.
// One observer may serve concurrent runs of the same workflow.
type RunObserver struct {
	tel      *Telemetry
	workflow string

	mu    sync.Mutex
	nodes map[string]trace.Span
}

var _ engine.Observer = (*RunObserver)(nil)

// NewRunObserver creates an observer that labels everything with workflow.
func NewRunObserver(tel *Telemetry, workflow string) *RunObserver {
	return &RunObserver{
		tel:      tel,
		workflow: workflow,
		nodes:    make(map[string]trace.Span),
	}
}

func nodeKey(runID, node string) string {
	return runID + "/" + node
}

// RunStarted opens the run span.
func (o *RunObserver) RunStarted(ctx context.Context, runID string, order []string) context.Context {
	ctx, span := o.tel.Tracer.StartRunSpan(ctx, runID, len(order))
	span.SetAttributes(AttrWorkflow.String(o.workflow))

	o.tel.Metrics.RecordRunStarted(o.workflow)
	_ = o.tel.Events.PublishRunStarted(runID, o.workflow, len(order))
	return ctx
}

// NodeStarted opens a node span under the run span.
func (o *RunObserver) NodeStarted(ctx context.Context, runID, node string) context.Context {
	ctx, span := o.tel.Tracer.StartNodeSpan(ctx, runID, node)
	span.SetAttributes(AttrWorkflow.String(o.workflow))

	o.mu.Lock()
	o.nodes[nodeKey(runID, node)] = span
	o.mu.Unlock()

	_ = o.tel.Events.PublishNodeStarted(runID, o.workflow, node)
	return ctx
}

// AttemptFailed records the failed attempt on the node span.
func (o *RunObserver) AttemptFailed(ctx context.Context, runID, node string, attempt int, err error, delay time.Duration) {
	AddEvent(trace.SpanFromContext(ctx), "attempt.failed",
		AttrAttempt.Int(attempt),
		AttrErrorMessage.String(err.Error()),
		AttrBackoff.Int64(delay.Milliseconds()),
	)

	retrying := delay > 0
	o.tel.Metrics.RecordAttemptFailed(o.workflow, node, retrying)
	if retrying {
		_ = o.tel.Events.PublishNodeRetry(runID, o.workflow, node, attempt, delay, err.Error())
	}
}

// NodeFinished closes the node span. Nodes that never started get a span of
// their own so skips and cancellations show up in the trace.
func (o *RunObserver) NodeFinished(ctx context.Context, runID string, result *engine.SkillResult) {
	key := nodeKey(runID, result.SkillName)

	o.mu.Lock()
	span, ok := o.nodes[key]
	delete(o.nodes, key)
	o.mu.Unlock()

	if !ok {
		_, span = o.tel.Tracer.StartNodeSpan(ctx, runID, result.SkillName)
		span.SetAttributes(AttrWorkflow.String(o.workflow))
	}

	span.SetAttributes(
		AttrNodeStatus.String(string(result.Status)),
		AttrSkillVersion.String(result.SkillVersion),
		AttrRetryCount.Int(result.RetryCount),
	)
	if result.Succeeded() {
		RecordSuccess(span)
	} else {
		span.SetAttributes(AttrErrorCode.String(result.ErrorCode))
		RecordError(span, fmt.Errorf("%s", result.Error))
	}
	span.End()

	ran := !result.StartedAt.IsZero()
	o.tel.Metrics.RecordNodeFinished(o.workflow, result.SkillName, string(result.Status), result.Duration, ran)

	switch result.Status {
	case engine.StatusCompleted:
		_ = o.tel.Events.PublishNodeCompleted(runID, o.workflow, result.SkillName, result.RetryCount, result.Duration)
	case engine.StatusFailed:
		_ = o.tel.Events.PublishNodeFailed(runID, o.workflow, result.SkillName, result.ErrorCode, result.Error)
	case engine.StatusSkipped:
		_ = o.tel.Events.PublishNodeSkipped(runID, o.workflow, result.SkillName, result.Error)
	case engine.StatusCancelled:
		_ = o.tel.Events.PublishNodeCancelled(runID, o.workflow, result.SkillName, result.Error)
	}
}

// RunFinished closes the run span opened by RunStarted.
func (o *RunObserver) RunFinished(ctx context.Context, result *engine.DAGExecutionResult) {
	span := trace.SpanFromContext(ctx)
	summary := result.Summary()
	span.SetAttributes(
		AttrRunStatus.String(string(result.Status)),
		AttrRetryCount.Int(summary.Retries),
	)
	if result.Succeeded() {
		RecordSuccess(span)
	} else {
		RecordError(span, fmt.Errorf("run %s: %d failed, %d skipped, %d cancelled",
			result.Status, summary.Failed, summary.Skipped, summary.Cancelled))
	}
	span.End()

	o.tel.Metrics.RecordRunCompleted(o.workflow, string(result.Status), result.Duration)
	if result.Status == engine.StatusFailed {
		_ = o.tel.Events.PublishRunFailed(result.RunID, o.workflow, result.Failed)
	} else {
		_ = o.tel.Events.PublishRunCompleted(result.RunID, o.workflow, string(result.Status), result.Duration)
	}
}
