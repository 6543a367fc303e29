// Package engine provides the skill DAG engine: a dependency-graph scheduler that
// sequences independently implemented work units ("skills") and executes them with
// bounded per-node retry, deterministic ordering and cascade-stop failure propagation.
//
// # Overview
//
// Skills are wired into a Graph by a Builder and run by an Executor:
//
//  1. Skill - the unit of work (describe, validate inputs, execute)
//  2. Builder - fluent, order-independent assembly with per-node overrides
//  3. Graph - nodes, cycle-safe edges, topological order, layers
//  4. Executor - runs nodes in topological order with retry and cascade-stop
//  5. DAGExecutionResult - the serializable report of one run
//
// # Skills
//
// Implement Skill directly, or implement Runner and wrap it with Adapt, or build one
// from a function with NewSkill. The adapters validate inputs, time the run, recover
// panics and translate errors into a failed SkillResult:
//
//	fetch := engine.NewSkill("fetch", func(ctx context.Context, ec *engine.ExecutionContext) (map[string]interface{}, error) {
//	    return map[string]interface{}{"body": "..."}, nil
//	}, engine.WithRequiredInputs("url"))
//
// Only a result with status completed counts as success. Anything else, a returned
// error, or a panic fails the attempt.
//
// # Assembly
//
// Builder calls may come in any order; everything is resolved in Build, which reports
// every structural problem at once as a *ValidationError:
//
//	graph, err := engine.NewBuilder().
//	    AddSkill(fetch).
//	    AddSkill(render).
//	    AddDependency("fetch", "render").
//	    MapInput("render", map[string]string{"body": "content"}).
//	    ConfigureSkill("render", map[string]interface{}{"format": "html"}).
//	    SetRetryConfig(engine.DefaultRetryConfig()).
//	    Build()
//
// Graph.AddEdge rejects an edge that would close a cycle before mutating anything,
// so a graph is a DAG at all times. Built graphs are frozen.
//
// # Execution
//
// Nodes run one at a time in topological order. A failed attempt is retried after
// RetryConfig.Delay(attempt); a node that exhausts MaxRetries is failed and all of its
// transitive dependents are skipped without running. Independent branches continue.
//
// Inputs of a node are resolved in increasing precedence:
//
//   - global inputs passed to Execute
//   - outputs of each dependency, either renamed through the input mapping or, when the
//     node has no mapping, prefixed as "<dependency>_<key>"
//   - config overrides
//
// The run status is completed only if no node failed or was cancelled. Execute returns
// an error only for an invalid graph; callers must inspect the result status.
//
// # Deadlines
//
// WithTimeout bounds the run and WithNodeTimeout bounds each attempt. When the run
// context ends the in-flight node is failed with ErrCodeTimeout or ErrCodeCancelled,
// its dependents are skipped and every node not yet started is cancelled.
//
// # Thread Safety
//
// Graph assembly is single-threaded. A built graph is read-only and an Executor keeps
// all per-run bookkeeping local to Execute, so concurrent executions of the same graph
// do not share state.
package engine
