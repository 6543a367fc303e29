// Package config reads workflow definition files and turns them into engine graphs.
//
// # Overview
//
// A workflow file names a set of skills, their dependencies, per-node configuration
// overrides and input mappings, and the retry and timeout policy of the run. Files may
// be written in YAML, JSON or CUE; the format is chosen by extension.
//
// # Components
//
// Parser: decodes a workflow file into a WorkflowSpec and validates it twice, first
// against the struct constraints (go-playground/validator) and then against the
// built-in CUE schema. Every problem is reported with its file position where the
// decoder provides one.
//
// SchemaRegistry: named CUE definitions used for validation. The built-in schemas are
// "workflow", "skill" and "retry"; callers may register more.
//
// Assemble: resolves every "uses" reference through a loader.Loader and wires the
// result into an engine.Builder. Structural problems (unknown dependencies, cycles)
// are reported by the builder.
//
// Watcher: calls back whenever the workflow file changes, for "run --watch".
//
// # Workflow Structure
//
//	name: publish
//	timeout: 5m
//	inputs:
//	  url: https://example.com
//	retry:
//	  max_retries: 3
//	  strategy: exponential
//	  base_delay: 1s
//	skills:
//	  - name: fetch
//	    uses: builtin::echo
//	  - name: render
//	    uses: skills/render.star::render
//	    depends_on: [fetch]
//	    map_input:
//	      url: source
//	    config:
//	      format: html
//
// In CUE the same document is placed under a top-level "workflow" field, which lets the
// file define hidden helpers alongside it.
package config
