package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilldag/skilldag/pkg/engine"
)

const publishYAML = `
name: publish
description: fetch, render and publish a page
mode: verbose
timeout: 2m
node_timeout: 30s
inputs:
  url: https://example.com
  pages: 3
retry:
  max_retries: 2
  strategy: fixed
  base_delay: 10ms
skills:
  - name: fetch
    uses: builtin::echo
  - name: render
    uses: builtin::transform
    depends_on: [fetch]
    config:
      op: upper
    map_input:
      url: value
  - name: publish
    uses: builtin::echo
    depends_on: [render]
    retry:
      max_retries: 5
      strategy: exponential
      base_delay: 1ms
      max_delay: 5ms
`

func writeWorkflow(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParser_YAML(t *testing.T) {
	path := writeWorkflow(t, "publish.yaml", publishYAML)

	parsed, err := NewParser().ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Empty(t, parsed.Errors)
	assert.Equal(t, FormatYAML, parsed.Format)
	assert.Equal(t, path, parsed.Source)

	wf := parsed.Workflow
	assert.Equal(t, "publish", wf.Name)
	assert.Equal(t, "verbose", wf.Mode)
	assert.Equal(t, 3, wf.Inputs["pages"])
	require.Len(t, wf.Skills, 3)

	render, ok := wf.Skill("render")
	require.True(t, ok)
	assert.Equal(t, []string{"fetch"}, render.DependsOn)
	assert.Equal(t, map[string]string{"url": "value"}, render.MapInput)
	assert.Equal(t, "upper", render.Config["op"])

	assert.Equal(t, map[string]string{
		"fetch":   "builtin::echo",
		"render":  "builtin::transform",
		"publish": "builtin::echo",
	}, wf.References())
}

func TestParser_JSON(t *testing.T) {
	path := writeWorkflow(t, "wf.json", `{
		"name": "numbers",
		"inputs": {"count": 2, "ratio": 0.5, "nested": {"n": 7}},
		"skills": [{"name": "only", "uses": "builtin::echo", "config": {"failures": 1}}]
	}`)

	parsed, err := NewParser().ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Empty(t, parsed.Errors)

	wf := parsed.Workflow
	assert.Equal(t, int64(2), wf.Inputs["count"])
	assert.Equal(t, 0.5, wf.Inputs["ratio"])
	assert.Equal(t, map[string]interface{}{"n": int64(7)}, wf.Inputs["nested"])
	assert.Equal(t, int64(1), wf.Skills[0].Config["failures"])
}

func TestParser_CUE(t *testing.T) {
	path := writeWorkflow(t, "wf.cue", `
package flows

_base: "builtin::"

workflow: {
	name: "cue_flow"
	retry: max_retries: 4
	skills: [
		{name: "a", uses: _base + "echo"},
		{name: "b", uses: _base + "echo", depends_on: ["a"]},
	]
}
`)

	parsed, err := NewParser().ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Empty(t, parsed.Errors)

	wf := parsed.Workflow
	assert.Equal(t, "cue_flow", wf.Name)
	assert.Equal(t, 4, wf.Retry.MaxRetries)
	require.Len(t, wf.Skills, 2)
	assert.Equal(t, "builtin::echo", wf.Skills[1].Uses)
}

func TestParser_CUERoot(t *testing.T) {
	path := writeWorkflow(t, "root.cue", `
name: "root_flow"
skills: [{name: "a", uses: "builtin::echo"}]
`)

	wf, err := LoadWorkflow(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "root_flow", wf.Name)
}

func TestParser_CUEErrorsCarryPosition(t *testing.T) {
	path := writeWorkflow(t, "bad.cue", "workflow: {\n\tname: \"x\"\n\tname: \"y\"\n}\n")

	parsed, err := NewParser().ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.NotEmpty(t, parsed.Errors)
	assert.Nil(t, parsed.Workflow)
	assert.Greater(t, parsed.Errors[0].Line, 0)
}

func TestParser_Problems(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing name",
			content: "skills:\n  - name: a\n    uses: builtin::echo\n",
			want:    "name: is required",
		},
		{
			name:    "no skills",
			content: "name: empty\n",
			want:    "skills: is required",
		},
		{
			name:    "duplicate skills",
			content: "name: dup\nskills:\n  - {name: a, uses: builtin::echo}\n  - {name: a, uses: builtin::echo}\n",
			want:    "unique name",
		},
		{
			name:    "bad strategy",
			content: "name: s\nretry: {strategy: random}\nskills:\n  - {name: a, uses: builtin::echo}\n",
			want:    "retry.strategy: must be one of",
		},
		{
			name:    "bad duration",
			content: "name: s\ntimeout: soon\nskills:\n  - {name: a, uses: builtin::echo}\n",
			want:    "invalid duration",
		},
		{
			name:    "unknown field",
			content: "name: s\nsklls: []\n",
			want:    "sklls",
		},
		{
			name:    "syntax error",
			content: "name: [s\n",
			want:    "line",
		},
		{
			name:    "too many retries",
			content: "name: s\nskills:\n  - {name: a, uses: builtin::echo, retry: {max_retries: 500}}\n",
			want:    "skills[0].retry.max_retries: must be at most 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeWorkflow(t, "wf.yaml", tt.content)
			_, err := LoadWorkflow(context.Background(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, strings.HasPrefix(err.Error(), path), "error should name the file: %v", err)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	for path, want := range map[string]Format{
		"a.yaml": FormatYAML,
		"a.YML":  FormatYAML,
		"a.json": FormatJSON,
		"a.cue":  FormatCUE,
	} {
		got, err := DetectFormat(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}

	_, err := DetectFormat("a.toml")
	assert.Error(t, err)

	_, err = NewParser().ParseFile(context.Background(), "missing.yaml")
	assert.Error(t, err)
}

func TestRetrySpec_ToRetryConfig(t *testing.T) {
	var nilSpec *RetrySpec
	cfg, err := nilSpec.ToRetryConfig()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultRetryConfig(), cfg)

	cfg, err = (&RetrySpec{MaxRetries: 7, Strategy: "linear", BaseDelay: "5ms"}).ToRetryConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, engine.BackoffLinear, cfg.Strategy)
	assert.Equal(t, 5*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, engine.DefaultRetryConfig().MaxDelay, cfg.MaxDelay)

	_, err = (&RetrySpec{BaseDelay: "fast"}).ToRetryConfig()
	assert.Error(t, err)
}

func TestValidationError_String(t *testing.T) {
	assert.Equal(t, "wf.cue:3:2: skills.a: boom",
		ValidationError{File: "wf.cue", Line: 3, Column: 2, Path: "skills.a", Message: "boom"}.String())
	assert.Equal(t, "boom", ValidationError{Message: "boom"}.String())
}
