package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Executor runs a built graph node by node in topological order, retrying
// failed nodes and skipping the dependents of nodes that exhaust their retries.
//
// An Executor holds no per-run state; concurrent calls to Execute are independent.
type Executor struct {
	graph       *Graph
	logger      zerolog.Logger
	observer    Observer
	mode        ExecutionMode
	retry       *RetryConfig
	timeout     time.Duration
	nodeTimeout time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor logger. The default discards everything.
func WithLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithObserver registers lifecycle callbacks.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithMode sets the execution mode passed to every skill.
func WithMode(mode ExecutionMode) ExecutorOption {
	return func(e *Executor) { e.mode = mode }
}

// WithRetryConfig replaces the graph's default retry policy. Per-node overrides still apply.
func WithRetryConfig(cfg RetryConfig) ExecutorOption {
	return func(e *Executor) { e.retry = &cfg }
}

// WithTimeout bounds the whole run. Nodes not started before the deadline are cancelled.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithNodeTimeout bounds every single attempt. A timed-out attempt counts as a failure.
func WithNodeTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.nodeTimeout = d }
}

// NewExecutor creates an executor for graph.
func NewExecutor(graph *Graph, opts ...ExecutorOption) *Executor {
	e := &Executor{
		graph:    graph,
		logger:   zerolog.Nop(),
		observer: NopObserver{},
		mode:     ModeQuiet,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runState is the bookkeeping of one Execute call.
type runState struct {
	id        string
	global    map[string]interface{}
	outputs   map[string]map[string]interface{}
	skippedBy map[string]string
	results   []*SkillResult
	failed    []string
	skipped   []string
	cancelled []string
}

// Execute runs the graph with the given global inputs. A non-nil error is
// returned only when the graph itself is invalid; node failures are reported
// through the result status.
func (e *Executor) Execute(ctx context.Context, globalInputs map[string]interface{}) (*DAGExecutionResult, error) {
	if e.graph == nil {
		return nil, NewPermanentError("graph is nil", nil).WithCode(ErrCodeValidation)
	}
	if err := e.graph.Validate(); err != nil {
		return nil, err
	}
	order, err := e.graph.TopologicalSort()
	if err != nil {
		return nil, err
	}
	if e.retry != nil {
		if err := e.retry.Validate(); err != nil {
			return nil, NewPermanentError("invalid retry config", err).WithCode(ErrCodeValidation)
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	run := &runState{
		id:        uuid.New().String(),
		global:    globalInputs,
		outputs:   make(map[string]map[string]interface{}),
		skippedBy: make(map[string]string),
		results:   make([]*SkillResult, 0, len(order)),
	}
	logger := e.logger.With().Str("run_id", run.id).Logger()
	startedAt := time.Now()

	ctx = e.observer.RunStarted(ctx, run.id, order)
	logger.Info().Int("nodes", len(order)).Strs("order", order).Msg("Run started")

	for _, name := range order {
		node := e.graph.nodes[name]

		if ancestor, ok := run.skippedBy[name]; ok {
			res := &SkillResult{
				SkillName:    name,
				SkillVersion: node.Skill.Version(),
				Status:       StatusSkipped,
				Error:        fmt.Sprintf("skipped: dependency %s failed", ancestor),
				ErrorCode:    ErrCodeDependencyFailed,
				CompletedAt:  time.Now(),
			}
			run.skipped = append(run.skipped, name)
			e.record(ctx, run, res)
			logger.Warn().Str("node", name).Str("failed_ancestor", ancestor).Msg("Node skipped")
			continue
		}

		if err := ctx.Err(); err != nil {
			res := &SkillResult{
				SkillName:    name,
				SkillVersion: node.Skill.Version(),
				Status:       StatusCancelled,
				Error:        fmt.Sprintf("not started: %v", err),
				ErrorCode:    contextErrorCode(err),
				CompletedAt:  time.Now(),
			}
			run.cancelled = append(run.cancelled, name)
			e.record(ctx, run, res)
			logger.Warn().Str("node", name).Msg("Node cancelled")
			continue
		}

		res := e.executeNode(ctx, run, node, logger)
		if res.Status == StatusCompleted {
			run.outputs[name] = res.Output
		} else {
			run.failed = append(run.failed, name)
			// Cascade before moving on so later nodes observe the skip.
			for _, dependent := range e.graph.AllDependents(name) {
				if _, already := run.skippedBy[dependent]; !already {
					run.skippedBy[dependent] = name
				}
			}
		}
		e.record(ctx, run, res)
	}

	completedAt := time.Now()
	result := &DAGExecutionResult{
		RunID:       run.id,
		Status:      StatusCompleted,
		Order:       order,
		Results:     run.results,
		Failed:      nonNil(run.failed),
		Skipped:     nonNil(run.skipped),
		Cancelled:   run.cancelled,
		Duration:    completedAt.Sub(startedAt),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}
	switch {
	case len(run.failed) > 0:
		result.Status = StatusFailed
	case len(run.cancelled) > 0:
		result.Status = StatusCancelled
	}

	e.observer.RunFinished(ctx, result)
	logger.Info().
		Str("status", string(result.Status)).
		Int("failed", len(result.Failed)).
		Int("skipped", len(result.Skipped)).
		Int("cancelled", len(result.Cancelled)).
		Dur("duration", result.Duration).
		Msg("Run finished")

	return result, nil
}

func (e *Executor) record(ctx context.Context, run *runState, res *SkillResult) {
	run.results = append(run.results, res)
	e.observer.NodeFinished(ctx, run.id, res)
}

// executeNode runs the retry loop for one node and returns its terminal result.
func (e *Executor) executeNode(ctx context.Context, run *runState, node *Node, runLogger zerolog.Logger) *SkillResult {
	retry := e.retryFor(node)
	audit := NewAuditTrail(node.Name)
	inputs := e.resolveInputs(node, run)
	logger := runLogger.With().Str("node", node.Name).Logger()
	start := time.Now()

	ctx = e.observer.NodeStarted(ctx, run.id, node.Name)
	logger.Debug().Int("max_retries", retry.MaxRetries).Msg("Node started")

	result := &SkillResult{
		SkillName:    node.Name,
		SkillVersion: node.Skill.Version(),
		StartedAt:    start,
		Audit:        audit,
	}

	attempt := 0
	for {
		ec := NewExecutionContext(node.Name, node.Skill.Version(), copyInputs(inputs), audit)
		ec.Retry = retry
		ec.Mode = e.mode
		ec.Attempt = attempt
		ec.Logger = logger.With().Int("attempt", attempt).Logger()

		audit.Record(AuditStart, attempt, fmt.Sprintf("attempt %d of %d", attempt+1, retry.MaxRetries))
		res := e.invoke(ctx, node, ec)

		if res.Status == StatusCompleted {
			output := res.Output
			if output == nil {
				output = ec.Outputs()
			}
			result.Status = StatusCompleted
			result.Output = output
			result.RetryCount = attempt
			break
		}

		result.Error = res.Error
		if result.Error == "" {
			result.Error = fmt.Sprintf("skill reported status %s", res.Status)
		}
		result.ErrorCode = res.ErrorCode
		if result.ErrorCode == "" {
			result.ErrorCode = ErrCodeSkillFailed
		}
		audit.Record(AuditError, attempt, result.Error)
		attempt++

		if err := ctx.Err(); err != nil {
			result.Error = fmt.Sprintf("%s (%v)", result.Error, err)
			result.ErrorCode = contextErrorCode(err)
			e.observer.AttemptFailed(ctx, run.id, node.Name, attempt-1, errors.New(result.Error), 0)
			break
		}
		if attempt >= retry.MaxRetries {
			e.observer.AttemptFailed(ctx, run.id, node.Name, attempt-1, errors.New(result.Error), 0)
			break
		}

		delay := retry.Delay(attempt)
		audit.Record(AuditRetry, attempt, fmt.Sprintf("retrying in %s", delay))
		e.observer.AttemptFailed(ctx, run.id, node.Name, attempt-1, errors.New(result.Error), delay)
		logger.Warn().
			Int("attempt", attempt).
			Int("max_retries", retry.MaxRetries).
			Dur("backoff", delay).
			Str("error", result.Error).
			Msg("Retrying after failure")

		if err := wait(ctx, delay); err != nil {
			result.Error = fmt.Sprintf("%s (%v)", result.Error, err)
			result.ErrorCode = contextErrorCode(err)
			break
		}
	}

	if result.Status != StatusCompleted {
		result.Status = StatusFailed
		result.RetryCount = attempt
		logger.Error().Int("retry_count", attempt).Str("error", result.Error).Msg("Node failed")
	} else {
		result.Error = ""
		result.ErrorCode = ""
		logger.Debug().Int("retry_count", result.RetryCount).Msg("Node completed")
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(start)
	audit.Seal(result.Status, result.Output)
	return result
}

// invoke runs a single attempt. The skill runs in its own goroutine so that an
// expired deadline fails the attempt even if the skill ignores its context.
func (e *Executor) invoke(ctx context.Context, node *Node, ec *ExecutionContext) *SkillResult {
	attemptCtx := ctx
	if e.nodeTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.nodeTimeout)
		defer cancel()
	}

	done := make(chan *SkillResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ec.Logger.Error().Str("stack", string(debug.Stack())).Msgf("skill panicked: %v", r)
				done <- &SkillResult{
					Status:    StatusFailed,
					Error:     fmt.Sprintf("panic: %v", r),
					ErrorCode: ErrCodeSkillPanic,
				}
			}
		}()
		res := node.Skill.Execute(attemptCtx, ec)
		if res == nil {
			res = &SkillResult{
				Status:    StatusFailed,
				Error:     "skill returned no result",
				ErrorCode: ErrCodeInternal,
			}
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res
	case <-attemptCtx.Done():
		err := attemptCtx.Err()
		return &SkillResult{
			Status:    StatusFailed,
			Error:     fmt.Sprintf("attempt aborted: %v", err),
			ErrorCode: contextErrorCode(err),
		}
	}
}

// resolveInputs merges global inputs, dependency outputs and config overrides,
// in increasing order of precedence.
func (e *Executor) resolveInputs(node *Node, run *runState) map[string]interface{} {
	inputs := copyInputs(run.global)

	mappingKeys := sortedKeys(node.InputMapping)
	for _, dep := range e.graph.reverseAdjacency[node.Name] {
		outputs := run.outputs[dep]

		if len(node.InputMapping) == 0 {
			for k, v := range outputs {
				inputs[dep+"_"+k] = v
			}
			continue
		}

		for _, src := range mappingKeys {
			dst := node.InputMapping[src]
			if v, ok := outputs[src]; ok {
				inputs[dst] = v
				continue
			}
			if key, ok := strings.CutPrefix(src, dep+"."); ok {
				if v, ok := outputs[key]; ok {
					inputs[dst] = v
				}
			}
		}
	}

	for k, v := range node.ConfigOverrides {
		inputs[k] = v
	}
	return inputs
}

func (e *Executor) retryFor(node *Node) RetryConfig {
	if node.Retry != nil {
		return *node.Retry
	}
	if e.retry != nil {
		return *e.retry
	}
	return e.graph.retry
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func contextErrorCode(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}
	return ErrCodeCancelled
}

func copyInputs(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// SortedNames returns a sorted copy of names.
func SortedNames(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.Strings(out)
	return out
}
