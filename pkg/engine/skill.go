package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"
)

// RunFunc is the body of a skill built with NewSkill.
type RunFunc func(ctx context.Context, ec *ExecutionContext) (map[string]interface{}, error)

// SkillOption configures a skill built with NewSkill.
type SkillOption func(*funcSkill)

// WithVersion sets the skill version. The default is "0.0.0".
func WithVersion(version string) SkillOption {
	return func(s *funcSkill) { s.version = version }
}

// WithDescription sets the skill description.
func WithDescription(description string) SkillOption {
	return func(s *funcSkill) { s.description = description }
}

// WithRequiredInputs fails validation when any of the keys is missing.
func WithRequiredInputs(keys ...string) SkillOption {
	return func(s *funcSkill) { s.required = append(s.required, keys...) }
}

// WithValidator adds a custom input validator run after the required-key check.
func WithValidator(fn func(inputs map[string]interface{}) error) SkillOption {
	return func(s *funcSkill) { s.validator = fn }
}

// NewSkill builds a skill from a run function.
func NewSkill(name string, run RunFunc, opts ...SkillOption) Skill {
	s := &funcSkill{
		name:    name,
		version: "0.0.0",
		run:     run,
	}
	for _, opt := range opts {
		opt(s)
	}
	return Adapt(s)
}

type funcSkill struct {
	name        string
	version     string
	description string
	required    []string
	validator   func(map[string]interface{}) error
	run         RunFunc
}

func (s *funcSkill) Name() string        { return s.name }
func (s *funcSkill) Version() string     { return s.version }
func (s *funcSkill) Description() string { return s.description }

func (s *funcSkill) ValidateInputs(inputs map[string]interface{}) error {
	if err := RequireInputs(inputs, s.required...); err != nil {
		return err
	}
	if s.validator != nil {
		return s.validator(inputs)
	}
	return nil
}

func (s *funcSkill) Run(ctx context.Context, ec *ExecutionContext) (map[string]interface{}, error) {
	if s.run == nil {
		return nil, fmt.Errorf("skill %s has no run function", s.name)
	}
	return s.run(ctx, ec)
}

// RequireInputs returns an error naming every key missing from inputs.
func RequireInputs(inputs map[string]interface{}, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := inputs[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required inputs: %v", missing)
}

// Adapt wraps a Runner into a Skill.
func Adapt(r Runner) Skill {
	if s, ok := r.(Skill); ok {
		return s
	}
	return &adaptedSkill{runner: r}
}

type adaptedSkill struct {
	runner Runner
}

func (a *adaptedSkill) Name() string        { return a.runner.Name() }
func (a *adaptedSkill) Version() string     { return a.runner.Version() }
func (a *adaptedSkill) Description() string { return a.runner.Description() }

func (a *adaptedSkill) ValidateInputs(inputs map[string]interface{}) error {
	return a.runner.ValidateInputs(inputs)
}

// Execute validates inputs, runs the skill and translates the outcome into a result.
// Panics inside Run are converted into a failed result.
func (a *adaptedSkill) Execute(ctx context.Context, ec *ExecutionContext) (result *SkillResult) {
	start := time.Now()
	result = &SkillResult{
		SkillName:    ec.SkillName,
		SkillVersion: a.runner.Version(),
		StartedAt:    start,
	}
	defer func() {
		if r := recover(); r != nil {
			ec.Logger.Error().Str("stack", string(debug.Stack())).Msgf("skill panicked: %v", r)
			result.Status = StatusFailed
			result.Error = fmt.Sprintf("panic: %v", r)
			result.ErrorCode = ErrCodeSkillPanic
		}
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(start)
	}()

	if err := a.runner.ValidateInputs(ec.Inputs); err != nil {
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("invalid inputs: %v", err)
		result.ErrorCode = ErrCodeValidation
		return result
	}

	out, err := a.runner.Run(ctx, ec)
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		result.ErrorCode = ErrCodeSkillFailed
		return result
	}

	merged := ec.Outputs()
	for k, v := range out {
		merged[k] = v
	}
	result.Status = StatusCompleted
	result.Output = merged
	return result
}
