// Package policy gates workflow runs with Open Policy Agent (OPA) Rego policies.
//
// Before a workflow runs (or when it is validated) the engine evaluates every enabled
// policy against an input document built from the workflow file, the assembled graph
// and the caller's context. Violations with severity error or critical block the run;
// info and warning violations are reported and the run proceeds.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//
//	result, err := eng.EvaluateWorkflow(ctx, wf, graph, &policy.Context{Environment: "production"})
//	if err != nil {
//	    return err
//	}
//	if !result.Allowed {
//	    fmt.Print(policy.FormatViolations(result.Violations))
//	}
//
// # Input Document
//
//	input.workflow   the workflow as written (name, timeout, inputs, retry, skills)
//	input.graph      order, layers, depth and edges (absent before assembly)
//	input.context    user, environment, operation and timestamp
//
// # Built-in Policies
//
//	node-naming     warning   node names should be snake_case
//	skill-sources   error     file references must be relative and must not contain ".."
//	retry-bounds    warning   retry budgets above 10 attempts
//	run-timeout     info      workflow has no run timeout
//	graph-shape     warning   more than 20 layers or 200 nodes
//	test-skills     critical  builtin::fail and builtin::flaky in production
//
// # Custom Policies
//
// A policy module defines a "deny" set. Members are strings or objects with a
// "message" and optional "node" and "severity":
//
//	# Forbid the echo skill.
//	# severity: error
//	package custom.echo
//
//	deny contains msg if {
//	    some skill in input.workflow.skills
//	    skill.uses == "builtin::echo"
//	    msg := sprintf("%s uses echo", [skill.name])
//	}
//
// Policies are loaded from .rego files (named after the file, described by the leading
// comment block) or from .json files holding a Policy document. Loader.Watch reloads
// them when they change.
package policy
