package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/skilldag/skilldag/pkg/engine"
)

// Format identifies the encoding of a workflow file.
type Format string

const (
	// FormatYAML is a YAML workflow file (.yaml, .yml).
	FormatYAML Format = "yaml"

	// FormatJSON is a JSON workflow file (.json).
	FormatJSON Format = "json"

	// FormatCUE is a CUE workflow file (.cue).
	FormatCUE Format = "cue"
)

// WorkflowSpec is the declarative description of a skill graph.
type WorkflowSpec struct {
	// Name identifies the workflow in logs and run history.
	Name string `json:"name" yaml:"name" validate:"required,identifier"`

	// Description is a short human-readable description.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Mode is the execution mode (quiet, verbose).
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=quiet verbose"`

	// Timeout bounds the whole run (e.g., "5m").
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"omitempty,duration"`

	// NodeTimeout bounds every attempt of every node.
	NodeTimeout string `json:"node_timeout,omitempty" yaml:"node_timeout,omitempty" validate:"omitempty,duration"`

	// Inputs are the global inputs visible to every node.
	Inputs map[string]interface{} `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Retry is the graph default retry policy.
	Retry *RetrySpec `json:"retry,omitempty" yaml:"retry,omitempty"`

	// Skills are the nodes of the graph.
	Skills []SkillSpec `json:"skills" yaml:"skills" validate:"required,min=1,unique=Name,dive"`
}

// SkillSpec declares one node of a workflow.
type SkillSpec struct {
	// Name is the node name, unique within the workflow.
	Name string `json:"name" yaml:"name" validate:"required,identifier"`

	// Uses is the loader reference of the skill (e.g., "builtin::echo", "skills/render.star").
	Uses string `json:"uses" yaml:"uses" validate:"required"`

	// DependsOn lists the nodes that must complete before this one.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty" validate:"omitempty,unique,dive,required"`

	// Config overrides are applied last and win over every other input.
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`

	// MapInput maps upstream output keys to input keys of this node.
	MapInput map[string]string `json:"map_input,omitempty" yaml:"map_input,omitempty"`

	// Retry overrides the workflow retry policy for this node.
	Retry *RetrySpec `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// RetrySpec is the file form of engine.RetryConfig. Zero fields keep the defaults.
type RetrySpec struct {
	// MaxRetries is the total number of attempts.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"omitempty,min=1,max=100"`

	// Strategy is the backoff strategy (exponential, linear, fixed).
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty" validate:"omitempty,oneof=exponential linear fixed"`

	// BaseDelay is the first backoff delay (e.g., "1s").
	BaseDelay string `json:"base_delay,omitempty" yaml:"base_delay,omitempty" validate:"omitempty,duration"`

	// MaxDelay caps every backoff delay.
	MaxDelay string `json:"max_delay,omitempty" yaml:"max_delay,omitempty" validate:"omitempty,duration"`
}

// ToRetryConfig converts r into an engine.RetryConfig on top of the defaults.
func (r *RetrySpec) ToRetryConfig() (engine.RetryConfig, error) {
	cfg := engine.DefaultRetryConfig()
	if r == nil {
		return cfg, nil
	}

	if r.MaxRetries != 0 {
		cfg.MaxRetries = r.MaxRetries
	}
	if r.Strategy != "" {
		cfg.Strategy = engine.BackoffStrategy(r.Strategy)
	}
	if r.BaseDelay != "" {
		d, err := time.ParseDuration(r.BaseDelay)
		if err != nil {
			return cfg, fmt.Errorf("invalid base_delay: %w", err)
		}
		cfg.BaseDelay = d
	}
	if r.MaxDelay != "" {
		d, err := time.ParseDuration(r.MaxDelay)
		if err != nil {
			return cfg, fmt.Errorf("invalid max_delay: %w", err)
		}
		cfg.MaxDelay = d
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Skill returns the named skill spec.
func (w *WorkflowSpec) Skill(name string) (*SkillSpec, bool) {
	for i := range w.Skills {
		if w.Skills[i].Name == name {
			return &w.Skills[i], true
		}
	}
	return nil, false
}

// References maps every node name to its loader reference.
func (w *WorkflowSpec) References() map[string]string {
	refs := make(map[string]string, len(w.Skills))
	for _, s := range w.Skills {
		refs[s.Name] = s.Uses
	}
	return refs
}

// ParsedWorkflow is the result of parsing one workflow source.
type ParsedWorkflow struct {
	// Workflow is the decoded workflow; nil when decoding failed.
	Workflow *WorkflowSpec `json:"workflow,omitempty"`

	// Source is the file path, or "inline".
	Source string `json:"source"`

	// Format is the detected encoding.
	Format Format `json:"format"`

	// ParsedAt is when the source was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists every problem found.
	Errors []ValidationError `json:"errors,omitempty"`
}

// Err returns the problems as a single error, or nil.
func (p *ParsedWorkflow) Err() error {
	if len(p.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(p.Errors))
	for i, e := range p.Errors {
		msgs[i] = e.String()
	}
	return fmt.Errorf("%s: %d problem(s):\n  %s", p.Source, len(p.Errors), strings.Join(msgs, "\n  "))
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path of the error (e.g., "skills[1].retry.strategy").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// String renders the error as "file:line:col: path: message", omitting empty parts.
func (v ValidationError) String() string {
	var b strings.Builder
	if v.File != "" {
		b.WriteString(v.File)
		if v.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", v.Line, v.Column)
		}
		b.WriteString(": ")
	}
	if v.Path != "" {
		b.WriteString(v.Path)
		b.WriteString(": ")
	}
	b.WriteString(v.Message)
	return b.String()
}
