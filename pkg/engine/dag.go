package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Node wraps one skill instance in a graph.
type Node struct {
	// Name is the unique, stable identifier of the node.
	Name string

	// Skill is the implementation executed for this node.
	Skill Skill

	// ConfigOverrides are merged into the resolved inputs last and win over everything.
	ConfigOverrides map[string]interface{}

	// InputMapping renames upstream output keys to this node's input keys.
	// Keys are either a bare output key or "dependency.key".
	InputMapping map[string]string

	// Retry overrides the run-level retry policy for this node when set.
	Retry *RetryConfig
}

// Edge means Target depends on Source completing successfully.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is a directed acyclic graph of skills. Every mutation keeps the graph
// acyclic: an edge that would close a cycle is rejected before any state changes.
//
// Assembly is single-threaded. A graph returned by Builder.Build is frozen and
// safe for concurrent reads, including concurrent executions.
type Graph struct {
	// nodes maps node names to nodes
	nodes map[string]*Node

	// order records node insertion order for deterministic traversal
	order []string

	// edges in insertion order
	edges []Edge

	// adjacency maps a node to its dependents
	adjacency map[string][]string

	// reverseAdjacency maps a node to its dependencies
	reverseAdjacency map[string][]string

	// retry is the default retry policy for executions of this graph
	retry RetryConfig

	frozen bool
}

// NewGraph creates an empty graph with the default retry policy.
func NewGraph() *Graph {
	return &Graph{
		nodes:            make(map[string]*Node),
		order:            make([]string, 0),
		edges:            make([]Edge, 0),
		adjacency:        make(map[string][]string),
		reverseAdjacency: make(map[string][]string),
		retry:            DefaultRetryConfig(),
	}
}

// AddNode adds a node named after the skill.
func (g *Graph) AddNode(skill Skill) (*Node, error) {
	if skill == nil {
		return nil, NewPermanentError("skill is nil", nil).WithCode(ErrCodeValidation)
	}
	return g.AddNamedNode(skill.Name(), skill)
}

// AddNamedNode adds a node under an explicit name, which allows one skill
// implementation to appear several times in a graph.
func (g *Graph) AddNamedNode(name string, skill Skill) (*Node, error) {
	if g.frozen {
		return nil, NewPermanentError("graph is frozen", nil).WithCode(ErrCodeGraphFrozen).WithNode(name)
	}
	if skill == nil {
		return nil, NewPermanentError("skill is nil", nil).WithCode(ErrCodeValidation).WithNode(name)
	}
	if name == "" {
		return nil, NewPermanentError("node has empty name", nil).WithCode(ErrCodeValidation)
	}
	if _, exists := g.nodes[name]; exists {
		return nil, NewPermanentError(fmt.Sprintf("duplicate node name: %s", name), nil).
			WithCode(ErrCodeDuplicateNode).WithNode(name)
	}

	node := &Node{
		Name:            name,
		Skill:           skill,
		ConfigOverrides: make(map[string]interface{}),
		InputMapping:    make(map[string]string),
	}
	g.nodes[name] = node
	g.order = append(g.order, name)
	g.adjacency[name] = make([]string, 0)
	g.reverseAdjacency[name] = make([]string, 0)

	return node, nil
}

// AddEdge declares that target depends on source. It fails without mutating the
// graph if either node is missing or the edge would close a cycle.
// Adding an existing edge again is a no-op.
func (g *Graph) AddEdge(source, target string) error {
	if g.frozen {
		return NewPermanentError("graph is frozen", nil).WithCode(ErrCodeGraphFrozen).WithNode(target)
	}
	if _, ok := g.nodes[source]; !ok {
		return NewPermanentError(fmt.Sprintf("edge %s -> %s references unknown node %s", source, target, source), nil).
			WithCode(ErrCodeNodeNotFound).WithNode(source)
	}
	if _, ok := g.nodes[target]; !ok {
		return NewPermanentError(fmt.Sprintf("edge %s -> %s references unknown node %s", source, target, target), nil).
			WithCode(ErrCodeNodeNotFound).WithNode(target)
	}
	if source == target {
		return NewPermanentError(fmt.Sprintf("circular dependency detected: %s", formatCycle([]string{source, source})), nil).
			WithCode(ErrCodeCycle).WithNode(source)
	}
	for _, dep := range g.adjacency[source] {
		if dep == target {
			return nil
		}
	}

	// A path target -> ... -> source means source -> target closes a cycle.
	if path := g.findPath(target, source); path != nil {
		cycle := append([]string{source}, path...)
		return NewPermanentError(fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)), nil).
			WithCode(ErrCodeCycle).WithNode(target).WithDetail("cycle", cycle)
	}

	g.edges = append(g.edges, Edge{Source: source, Target: target})
	g.adjacency[source] = append(g.adjacency[source], target)
	g.reverseAdjacency[target] = append(g.reverseAdjacency[target], source)
	return nil
}

// findPath returns a dependents path from -> ... -> to, or nil.
// The visited set is fresh on every call.
func (g *Graph) findPath(from, to string) []string {
	visited := make(map[string]bool)
	var path []string

	var visit func(name string) bool
	visit = func(name string) bool {
		visited[name] = true
		path = append(path, name)
		if name == to {
			return true
		}
		for _, dependent := range g.adjacency[name] {
			if !visited[dependent] && visit(dependent) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if visit(from) {
		return path
	}
	return nil
}

// TopologicalSort orders all nodes so that every edge's source precedes its target.
// Roots are taken in insertion order and dependents in edge insertion order,
// so the result is deterministic.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, name := range g.order {
		inDegree[name] = len(g.reverseAdjacency[name])
	}

	queue := make([]string, 0, len(g.order))
	for _, name := range g.order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	result := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		result = append(result, name)

		for _, dependent := range g.adjacency[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.order) {
		return nil, NewPermanentError(
			fmt.Sprintf("topological sort visited %d of %d nodes - graph contains a cycle", len(result), len(g.order)),
			nil,
		).WithCode(ErrCodeCycle)
	}

	return result, nil
}

// AllDependents returns every node that transitively depends on name, sorted.
func (g *Graph) AllDependents(name string) []string {
	visited := make(map[string]bool)

	var visit func(n string)
	visit = func(n string) {
		for _, dependent := range g.adjacency[n] {
			if !visited[dependent] {
				visited[dependent] = true
				visit(dependent)
			}
		}
	}
	visit(name)

	result := make([]string, 0, len(visited))
	for n := range visited {
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}

// Layers groups nodes by depth: roots are layer 0 and every other node sits one
// layer below its deepest dependency. Nodes sharing a layer are independent.
func (g *Graph) Layers() (map[int][]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	layerOf := make(map[string]int, len(order))
	layers := make(map[int][]string)
	for _, name := range order {
		layer := 0
		for _, dep := range g.reverseAdjacency[name] {
			if layerOf[dep]+1 > layer {
				layer = layerOf[dep] + 1
			}
		}
		layerOf[name] = layer
		layers[layer] = append(layers[layer], name)
	}

	return layers, nil
}

// Validate re-checks that no edge or index references a missing node and that
// the graph can be topologically sorted. All problems are reported together.
func (g *Graph) Validate() error {
	verr := &ValidationError{}

	if len(g.order) != len(g.nodes) {
		verr.add(NewPermanentError(
			fmt.Sprintf("node index mismatch: %d ordered, %d registered", len(g.order), len(g.nodes)), nil,
		).WithCode(ErrCodeInternal))
	}

	for _, e := range g.edges {
		for _, end := range []string{e.Source, e.Target} {
			if _, ok := g.nodes[end]; !ok {
				verr.add(NewPermanentError(
					fmt.Sprintf("edge %s -> %s references unknown node %s", e.Source, e.Target, end), nil,
				).WithCode(ErrCodeNodeNotFound).WithNode(end))
			}
		}
	}

	for _, index := range []map[string][]string{g.adjacency, g.reverseAdjacency} {
		for name, refs := range index {
			if _, ok := g.nodes[name]; !ok {
				verr.add(NewPermanentError(fmt.Sprintf("adjacency entry for unknown node %s", name), nil).
					WithCode(ErrCodeNodeNotFound).WithNode(name))
			}
			for _, ref := range refs {
				if _, ok := g.nodes[ref]; !ok {
					verr.add(NewPermanentError(fmt.Sprintf("node %s references unknown node %s", name, ref), nil).
						WithCode(ErrCodeNodeNotFound).WithNode(ref))
				}
			}
		}
	}

	if len(verr.Problems) == 0 {
		if _, err := g.TopologicalSort(); err != nil {
			verr.add(err)
		}
	}

	return verr.orNil()
}

// Node returns the named node.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns node names in insertion order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Dependencies returns the direct dependencies of name.
func (g *Graph) Dependencies(name string) []string {
	out := make([]string, len(g.reverseAdjacency[name]))
	copy(out, g.reverseAdjacency[name])
	return out
}

// Dependents returns the direct dependents of name.
func (g *Graph) Dependents(name string) []string {
	out := make([]string, len(g.adjacency[name]))
	copy(out, g.adjacency[name])
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// RetryConfig returns the default retry policy of the graph.
func (g *Graph) RetryConfig() RetryConfig {
	return g.retry
}

// Frozen reports whether the graph rejects further mutation.
func (g *Graph) Frozen() bool {
	return g.frozen
}

func (g *Graph) freeze() {
	g.frozen = true
}

// ToDOT generates a DOT format representation of the graph for visualization.
// The output can be rendered with Graphviz tools.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph SkillGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	layers, err := g.Layers()
	if err == nil {
		for level := 0; level < len(layers); level++ {
			sb.WriteString(fmt.Sprintf("  subgraph cluster_layer_%d {\n", level))
			sb.WriteString(fmt.Sprintf("    label=\"Layer %d\";\n", level))
			sb.WriteString("    style=dashed;\n")

			for _, name := range layers[level] {
				node := g.nodes[name]
				label := name
				if v := node.Skill.Version(); v != "" {
					label = fmt.Sprintf("%s\\n%s", name, v)
				}
				sb.WriteString(fmt.Sprintf("    %q [label=\"%s\"];\n", name, label))
			}

			sb.WriteString("  }\n\n")
		}
	}

	for _, e := range g.edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q;\n", e.Source, e.Target))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}
