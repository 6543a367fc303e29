package engine

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func noopSkill(name string) Skill {
	return NewSkill(name, func(ctx context.Context, ec *ExecutionContext) (map[string]interface{}, error) {
		return map[string]interface{}{"name": name}, nil
	})
}

func graphWith(t *testing.T, names []string, edges [][2]string) *Graph {
	t.Helper()
	g := NewGraph()
	for _, n := range names {
		if _, err := g.AddNode(noopSkill(n)); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", n, err)
		}
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("AddEdge(%s, %s) failed: %v", e[0], e[1], err)
		}
	}
	return g
}

func TestGraph_AddNode_Duplicate(t *testing.T) {
	g := NewGraph()
	if _, err := g.AddNode(noopSkill("a")); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_, err := g.AddNode(noopSkill("a"))
	if err == nil {
		t.Fatal("Expected duplicate node error, got nil")
	}
	if !HasCode(err, ErrCodeDuplicateNode) {
		t.Errorf("Expected code %s, got: %v", ErrCodeDuplicateNode, err)
	}
	if g.Len() != 1 {
		t.Errorf("Expected 1 node, got %d", g.Len())
	}
}

func TestGraph_AddNode_RegistersEmptyAdjacency(t *testing.T) {
	g := graphWith(t, []string{"a"}, nil)

	if deps := g.Dependencies("a"); len(deps) != 0 {
		t.Errorf("Expected no dependencies, got %v", deps)
	}
	if deps := g.Dependents("a"); len(deps) != 0 {
		t.Errorf("Expected no dependents, got %v", deps)
	}
	if _, ok := g.reverseAdjacency["a"]; !ok {
		t.Error("Expected reverse adjacency entry for a")
	}
}

func TestGraph_AddEdge_UnknownNode(t *testing.T) {
	g := graphWith(t, []string{"a"}, nil)

	tests := []struct {
		name   string
		source string
		target string
	}{
		{"missing source", "x", "a"},
		{"missing target", "a", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.AddEdge(tt.source, tt.target)
			if !HasCode(err, ErrCodeNodeNotFound) {
				t.Errorf("Expected code %s, got: %v", ErrCodeNodeNotFound, err)
			}
		})
	}
}

func TestGraph_AddEdge_RejectsCycleWithoutMutation(t *testing.T) {
	g := graphWith(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})

	edgesBefore := g.Edges()
	depsBefore := g.Dependencies("a")
	dependentsBefore := g.Dependents("c")

	err := g.AddEdge("c", "a")
	if err == nil {
		t.Fatal("Expected cycle error, got nil")
	}
	if !HasCode(err, ErrCodeCycle) {
		t.Errorf("Expected code %s, got: %v", ErrCodeCycle, err)
	}
	if !strings.Contains(err.Error(), "c -> a -> b -> c") {
		t.Errorf("Expected cycle path in message, got: %v", err)
	}

	if !reflect.DeepEqual(g.Edges(), edgesBefore) {
		t.Errorf("Edges changed after rejected edge: %v", g.Edges())
	}
	if !reflect.DeepEqual(g.Dependencies("a"), depsBefore) {
		t.Errorf("Dependencies of a changed: %v", g.Dependencies("a"))
	}
	if !reflect.DeepEqual(g.Dependents("c"), dependentsBefore) {
		t.Errorf("Dependents of c changed: %v", g.Dependents("c"))
	}
	if _, err := g.TopologicalSort(); err != nil {
		t.Errorf("Expected graph to remain sortable, got: %v", err)
	}
}

func TestGraph_AddEdge_SelfLoop(t *testing.T) {
	g := graphWith(t, []string{"a"}, nil)

	if err := g.AddEdge("a", "a"); !HasCode(err, ErrCodeCycle) {
		t.Errorf("Expected cycle error for self edge, got: %v", err)
	}
	if len(g.Edges()) != 0 {
		t.Errorf("Expected no edges, got %v", g.Edges())
	}
}

func TestGraph_AddEdge_FreshVisitedSetPerCall(t *testing.T) {
	// Diamond: a -> b, a -> c, b -> d, c -> d. Every check visits shared nodes.
	g := graphWith(t, []string{"a", "b", "c", "d"},
		[][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}})

	if err := g.AddEdge("d", "a"); !HasCode(err, ErrCodeCycle) {
		t.Errorf("Expected cycle for d -> a, got: %v", err)
	}
	if err := g.AddEdge("d", "b"); !HasCode(err, ErrCodeCycle) {
		t.Errorf("Expected cycle for d -> b, got: %v", err)
	}
	if err := g.AddEdge("b", "c"); err != nil {
		t.Errorf("Expected b -> c to be accepted, got: %v", err)
	}
}

func TestGraph_AddEdge_DuplicateIgnored(t *testing.T) {
	g := graphWith(t, []string{"a", "b"}, [][2]string{{"a", "b"}})

	if err := g.AddEdge("a", "b"); err != nil {
		t.Fatalf("Expected duplicate edge to be ignored, got: %v", err)
	}
	if len(g.Edges()) != 1 {
		t.Errorf("Expected 1 edge, got %d", len(g.Edges()))
	}
	if len(g.Dependencies("b")) != 1 {
		t.Errorf("Expected 1 dependency, got %v", g.Dependencies("b"))
	}
}

func TestGraph_TopologicalSort(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  []string
	}{
		{
			name:  "empty",
			nodes: nil,
			want:  []string{},
		},
		{
			name:  "linear",
			nodes: []string{"a", "b", "c"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "insertion order breaks ties",
			nodes: []string{"z", "y", "x"},
			want:  []string{"z", "y", "x"},
		},
		{
			name:  "dependency declared before its source",
			nodes: []string{"c", "b", "a"},
			edges: [][2]string{{"a", "c"}, {"b", "c"}},
			want:  []string{"b", "a", "c"},
		},
		{
			name:  "diamond",
			nodes: []string{"a", "b", "c", "d"},
			edges: [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}},
			want:  []string{"a", "b", "c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graphWith(t, tt.nodes, tt.edges)
			got, err := g.TopologicalSort()
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGraph_TopologicalSort_RespectsEveryEdge(t *testing.T) {
	names := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7"}
	edges := [][2]string{
		{"n0", "n3"}, {"n1", "n3"}, {"n3", "n5"}, {"n2", "n4"},
		{"n4", "n5"}, {"n5", "n7"}, {"n6", "n7"}, {"n0", "n6"},
	}
	g := graphWith(t, names, edges)

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(order) != len(names) {
		t.Fatalf("Expected %d nodes, got %d", len(names), len(order))
	}

	pos := make(map[string]int)
	for i, n := range order {
		if _, dup := pos[n]; dup {
			t.Fatalf("Node %s appears twice", n)
		}
		pos[n] = i
	}
	for _, e := range edges {
		if pos[e[0]] >= pos[e[1]] {
			t.Errorf("Edge %s -> %s violated in order %v", e[0], e[1], order)
		}
	}
}

func TestGraph_TopologicalSort_DetectsCorruptedCycle(t *testing.T) {
	g := graphWith(t, []string{"a", "b"}, [][2]string{{"a", "b"}})
	// Bypass AddEdge to simulate a corrupted index.
	g.adjacency["b"] = append(g.adjacency["b"], "a")
	g.reverseAdjacency["a"] = append(g.reverseAdjacency["a"], "b")

	if _, err := g.TopologicalSort(); !HasCode(err, ErrCodeCycle) {
		t.Errorf("Expected cycle error, got: %v", err)
	}
	if err := g.Validate(); err == nil {
		t.Error("Expected validation error, got nil")
	}
}

func TestGraph_AllDependents(t *testing.T) {
	g := graphWith(t, []string{"a", "b", "c", "d", "e"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"a", "d"}, {"d", "c"}})

	tests := []struct {
		node string
		want []string
	}{
		{"a", []string{"b", "c", "d"}},
		{"b", []string{"c"}},
		{"c", []string{}},
		{"e", []string{}},
	}

	for _, tt := range tests {
		got := g.AllDependents(tt.node)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("AllDependents(%s): expected %v, got %v", tt.node, tt.want, got)
		}
	}
}

func TestGraph_Layers(t *testing.T) {
	g := graphWith(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"a", "c"}})

	layers, err := g.Layers()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(layers) != 2 {
		t.Fatalf("Expected 2 layers, got %d", len(layers))
	}
	if !reflect.DeepEqual(layers[0], []string{"a"}) {
		t.Errorf("Expected layer 0 = [a], got %v", layers[0])
	}

	layer1 := append([]string(nil), layers[1]...)
	sort.Strings(layer1)
	if !reflect.DeepEqual(layer1, []string{"b", "c"}) {
		t.Errorf("Expected layer 1 = {b, c}, got %v", layers[1])
	}
}

func TestGraph_Layers_UsesDeepestDependency(t *testing.T) {
	// a -> b -> c and a -> c: c sits below b, not beside it.
	g := graphWith(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}})

	layers, err := g.Layers()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := map[int][]string{0: {"a"}, 1: {"b"}, 2: {"c"}}
	if !reflect.DeepEqual(layers, want) {
		t.Errorf("Expected %v, got %v", want, layers)
	}
}

func TestGraph_Validate_DanglingEdge(t *testing.T) {
	g := graphWith(t, []string{"a"}, nil)
	g.edges = append(g.edges, Edge{Source: "a", Target: "ghost"})

	err := g.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got: %v", err)
	}
	if !HasCode(err, ErrCodeNodeNotFound) {
		t.Errorf("Expected code %s, got: %v", ErrCodeNodeNotFound, err)
	}
}

func TestGraph_FrozenRejectsMutation(t *testing.T) {
	g, err := NewBuilder().AddSkill(noopSkill("a")).AddSkill(noopSkill("b")).Build()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := g.AddNode(noopSkill("c")); !HasCode(err, ErrCodeGraphFrozen) {
		t.Errorf("Expected frozen error from AddNode, got: %v", err)
	}
	if err := g.AddEdge("a", "b"); !HasCode(err, ErrCodeGraphFrozen) {
		t.Errorf("Expected frozen error from AddEdge, got: %v", err)
	}
}

func TestGraph_ToDOT(t *testing.T) {
	g := graphWith(t, []string{"fetch", "render"}, [][2]string{{"fetch", "render"}})

	dot := g.ToDOT()
	for _, want := range []string{
		"digraph SkillGraph {",
		"subgraph cluster_layer_0",
		"subgraph cluster_layer_1",
		`"fetch" -> "render";`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("Expected DOT output to contain %q, got:\n%s", want, dot)
		}
	}
}
