package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestBuilder_Build_OrderIndependent(t *testing.T) {
	// Dependencies and overrides are declared before the skills exist.
	g, err := NewBuilder().
		AddDependency("fetch", "render").
		ConfigureSkill("render", map[string]interface{}{"format": "html"}).
		MapInput("render", map[string]string{"body": "content"}).
		AddSkill(noopSkill("render")).
		AddSkill(noopSkill("fetch")).
		Build()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"fetch", "render"}) {
		t.Errorf("Expected [fetch render], got %v", order)
	}

	node, _ := g.Node("render")
	if node.ConfigOverrides["format"] != "html" {
		t.Errorf("Expected format override, got %v", node.ConfigOverrides)
	}
	if node.InputMapping["body"] != "content" {
		t.Errorf("Expected body mapping, got %v", node.InputMapping)
	}
}

func TestBuilder_ConfigureSkill_LastWriteWins(t *testing.T) {
	g, err := NewBuilder().
		AddSkill(noopSkill("a")).
		ConfigureSkill("a", map[string]interface{}{"x": 1, "y": 1}).
		ConfigureSkill("a", map[string]interface{}{"y": 2}).
		MapInput("a", map[string]string{"out": "first"}).
		MapInput("a", map[string]string{"out": "second", "other": "o"}).
		Build()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	node, _ := g.Node("a")
	want := map[string]interface{}{"x": 1, "y": 2}
	if !reflect.DeepEqual(node.ConfigOverrides, want) {
		t.Errorf("Expected %v, got %v", want, node.ConfigOverrides)
	}
	wantMapping := map[string]string{"out": "second", "other": "o"}
	if !reflect.DeepEqual(node.InputMapping, wantMapping) {
		t.Errorf("Expected %v, got %v", wantMapping, node.InputMapping)
	}
}

func TestBuilder_Build_ReportsAllProblems(t *testing.T) {
	_, err := NewBuilder().
		AddSkill(noopSkill("a")).
		AddSkill(noopSkill("a")).
		AddDependency("a", "missing").
		ConfigureSkill("ghost", map[string]interface{}{"k": "v"}).
		MapInput("phantom", map[string]string{"x": "y"}).
		Build()

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got: %v", err)
	}
	if len(verr.Problems) != 4 {
		t.Errorf("Expected 4 problems, got %d: %v", len(verr.Problems), verr.Messages())
	}
	for _, code := range []string{ErrCodeDuplicateNode, ErrCodeNodeNotFound} {
		if !HasCode(err, code) {
			t.Errorf("Expected problem with code %s in %v", code, verr.Messages())
		}
	}
}

func TestBuilder_Build_Cycle(t *testing.T) {
	_, err := NewBuilder().
		AddSkill(noopSkill("a")).
		AddSkill(noopSkill("b")).
		AddDependency("a", "b").
		AddDependency("b", "a").
		Build()

	if !HasCode(err, ErrCodeCycle) {
		t.Errorf("Expected cycle error, got: %v", err)
	}
}

func TestBuilder_Build_InvalidRetryConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  RetryConfig
	}{
		{"zero retries", RetryConfig{MaxRetries: 0, Strategy: BackoffFixed}},
		{"unknown strategy", RetryConfig{MaxRetries: 1, Strategy: "random"}},
		{"negative delay", RetryConfig{MaxRetries: 1, Strategy: BackoffFixed, BaseDelay: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder().AddSkill(noopSkill("a")).SetRetryConfig(tt.cfg).Build()
			if !HasCode(err, ErrCodeValidation) {
				t.Errorf("Expected validation error, got: %v", err)
			}
		})
	}
}

func TestBuilder_SetRetryConfig(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, Strategy: BackoffLinear, BaseDelay: time.Millisecond}
	node := RetryConfig{MaxRetries: 1, Strategy: BackoffFixed}

	g, err := NewBuilder().
		AddSkill(noopSkill("a")).
		AddSkill(noopSkill("b")).
		SetRetryConfig(cfg).
		SetNodeRetryConfig("b", node).
		Build()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if g.RetryConfig() != cfg {
		t.Errorf("Expected %+v, got %+v", cfg, g.RetryConfig())
	}
	b, _ := g.Node("b")
	if b.Retry == nil || *b.Retry != node {
		t.Errorf("Expected node override %+v, got %+v", node, b.Retry)
	}
	a, _ := g.Node("a")
	if a.Retry != nil {
		t.Errorf("Expected no override on a, got %+v", a.Retry)
	}
}

func TestBuilder_SingleUse(t *testing.T) {
	b := NewBuilder().AddSkill(noopSkill("a"))
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	b.AddSkill(noopSkill("b")).ConfigureSkill("a", map[string]interface{}{"late": true})

	if g.Len() != 1 {
		t.Errorf("Expected built graph to keep 1 node, got %d", g.Len())
	}
	node, _ := g.Node("a")
	if _, ok := node.ConfigOverrides["late"]; ok {
		t.Error("Expected late override to have no effect")
	}
	if _, err := b.Build(); !HasCode(err, ErrCodeBuilderUsed) {
		t.Errorf("Expected builder-used error, got: %v", err)
	}
}

func TestBuilder_AddSkillAs_SameSkillTwice(t *testing.T) {
	s := noopSkill("echo")
	g, err := NewBuilder().
		AddSkillAs("first", s).
		AddSkillAs("second", s).
		AddDependency("first", "second").
		Build()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(g.Nodes(), []string{"first", "second"}) {
		t.Errorf("Expected [first second], got %v", g.Nodes())
	}
}

func TestBuilder_NilSkill(t *testing.T) {
	_, err := NewBuilder().AddSkill(nil).Build()
	if !HasCode(err, ErrCodeValidation) {
		t.Errorf("Expected validation error, got: %v", err)
	}
}
