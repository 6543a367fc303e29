package skills

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/skilldag/skilldag/pkg/loader"
)

func execute(skill engine.Skill, attempt int, inputs map[string]interface{}) *engine.SkillResult {
	ec := engine.NewExecutionContext(skill.Name(), skill.Version(), inputs, nil)
	ec.Attempt = attempt
	return skill.Execute(context.Background(), ec)
}

func TestRegister(t *testing.T) {
	reg := loader.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Equal(t, []string{
		"builtin::echo", "builtin::fail", "builtin::flaky", "builtin::sleep", "builtin::transform",
	}, reg.List())

	assert.Error(t, Register(reg), "second registration must fail")

	l := loader.New(reg)
	for _, name := range Names() {
		skill, err := l.Load(context.Background(), Namespace+"::"+name)
		require.NoError(t, err)
		assert.Equal(t, name, skill.Name())
		assert.Equal(t, Version, skill.Version())
		assert.NotEmpty(t, skill.Description())
	}
}

func TestEcho(t *testing.T) {
	ec := engine.NewExecutionContext("echo", Version, map[string]interface{}{"b": 2, "a": "x"}, nil)
	res := NewEcho().Execute(context.Background(), ec)

	require.Equal(t, engine.StatusCompleted, res.Status)
	assert.Equal(t, map[string]interface{}{"a": "x", "b": 2}, res.Output)
	assert.Equal(t, 2, ec.Audit.Count(engine.AuditOutputSet))
}

func TestFail(t *testing.T) {
	res := execute(NewFail(), 0, nil)
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.Equal(t, "intentional failure", res.Error)
	assert.Equal(t, engine.ErrCodeSkillFailed, res.ErrorCode)

	res = execute(NewFail(), 0, map[string]interface{}{"message": "disk full"})
	assert.Equal(t, "disk full", res.Error)
}

func TestFlaky(t *testing.T) {
	tests := []struct {
		name     string
		failures interface{}
		attempt  int
		want     engine.ExecutionStatus
	}{
		{name: "default fails first attempt", failures: nil, attempt: 0, want: engine.StatusFailed},
		{name: "default succeeds second attempt", failures: nil, attempt: 1, want: engine.StatusCompleted},
		{name: "yaml int", failures: 2, attempt: 1, want: engine.StatusFailed},
		{name: "json float", failures: float64(2), attempt: 2, want: engine.StatusCompleted},
		{name: "zero never fails", failures: 0, attempt: 0, want: engine.StatusCompleted},
		{name: "negative rejected", failures: -1, attempt: 5, want: engine.StatusFailed},
		{name: "fractional rejected", failures: 1.5, attempt: 5, want: engine.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := map[string]interface{}{}
			if tt.failures != nil {
				inputs["failures"] = tt.failures
			}
			res := execute(NewFlaky(), tt.attempt, inputs)
			assert.Equal(t, tt.want, res.Status, res.Error)
			if tt.want == engine.StatusCompleted {
				assert.Equal(t, tt.attempt, res.Output["succeeded_on_attempt"])
			}
		})
	}
}

func TestSleep(t *testing.T) {
	res := execute(NewSleep(), 0, map[string]interface{}{"duration": "5ms"})
	require.Equal(t, engine.StatusCompleted, res.Status, res.Error)
	assert.Equal(t, "5ms", res.Output["slept"])

	res = execute(NewSleep(), 0, map[string]interface{}{"duration": 3})
	require.Equal(t, engine.StatusCompleted, res.Status, res.Error)
	assert.Equal(t, "3ms", res.Output["slept"])

	res = execute(NewSleep(), 0, map[string]interface{}{"duration": "soon"})
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.Equal(t, engine.ErrCodeValidation, res.ErrorCode)

	res = execute(NewSleep(), 0, nil)
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "missing required inputs")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ec := engine.NewExecutionContext("sleep", Version, map[string]interface{}{"duration": "1h"}, nil)
	start := time.Now()
	res = NewSleep().Execute(ctx, ec)
	assert.Equal(t, engine.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "sleep interrupted")
	assert.Less(t, time.Since(start), time.Second)
}

func TestTransform(t *testing.T) {
	tests := []struct {
		op    string
		value string
		with  string
		want  string
	}{
		{op: "upper", value: "abc", want: "ABC"},
		{op: "lower", value: "AbC", want: "abc"},
		{op: "trim", value: "  x ", want: "x"},
		{op: "reverse", value: "héllo", want: "olléh"},
		{op: "prefix", value: "world", with: "hello ", want: "hello world"},
		{op: "suffix", value: "draft", with: ".md", want: "draft.md"},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			inputs := map[string]interface{}{"op": tt.op, "value": tt.value}
			if tt.with != "" {
				inputs["with"] = tt.with
			}
			res := execute(NewTransform(), 0, inputs)
			require.Equal(t, engine.StatusCompleted, res.Status, res.Error)
			assert.Equal(t, tt.want, res.Output["value"])
		})
	}

	res := execute(NewTransform(), 0, map[string]interface{}{"op": "upper", "value": "a", "as": "shout"})
	assert.Equal(t, "A", res.Output["shout"])

	res = execute(NewTransform(), 0, map[string]interface{}{"op": "rot13", "value": "a"})
	assert.Equal(t, engine.ErrCodeValidation, res.ErrorCode)

	res = execute(NewTransform(), 0, map[string]interface{}{"op": "prefix", "value": "a"})
	assert.Equal(t, engine.ErrCodeValidation, res.ErrorCode)
}

func TestBuiltinsInAGraph(t *testing.T) {
	retry := engine.RetryConfig{
		MaxRetries: 3,
		Strategy:   engine.BackoffFixed,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	}

	graph, err := engine.NewBuilder().
		AddSkillAs("source", NewEcho()).
		AddSkillAs("shout", NewTransform()).
		AddSkillAs("unstable", NewFlaky()).
		AddSkillAs("broken", NewFail()).
		AddSkillAs("after_broken", NewEcho()).
		AddDependency("source", "shout").
		AddDependency("shout", "unstable").
		AddDependency("broken", "after_broken").
		MapInput("shout", map[string]string{"text": "value"}).
		ConfigureSkill("shout", map[string]interface{}{"op": "upper"}).
		ConfigureSkill("unstable", map[string]interface{}{"failures": 2}).
		SetRetryConfig(retry).
		Build()
	require.NoError(t, err)

	res, err := engine.NewExecutor(graph).Execute(context.Background(), map[string]interface{}{"text": "hi"})
	require.NoError(t, err)

	assert.Equal(t, engine.StatusFailed, res.Status)

	shout, ok := res.Result("shout")
	require.True(t, ok)
	assert.Equal(t, "HI", shout.Output["value"])

	unstable, ok := res.Result("unstable")
	require.True(t, ok)
	assert.Equal(t, engine.StatusCompleted, unstable.Status, unstable.Error)
	assert.Equal(t, 2, unstable.RetryCount)
	assert.Equal(t, []string{"broken"}, res.Failed)
	assert.Equal(t, []string{"after_broken"}, res.Skipped)
}
