package engine

import (
	"fmt"
	"sort"
)

// Builder assembles a graph fluently. Calls may come in any order: dependencies,
// overrides and mappings are only resolved against the node set in Build.
// A builder produces at most one graph.
type Builder struct {
	skills    []namedSkill
	deps      []Edge
	config    map[string]map[string]interface{}
	mappings  map[string]map[string]string
	nodeRetry map[string]RetryConfig
	retry     *RetryConfig
	built     bool
}

type namedSkill struct {
	name  string
	skill Skill
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		skills:    make([]namedSkill, 0),
		deps:      make([]Edge, 0),
		config:    make(map[string]map[string]interface{}),
		mappings:  make(map[string]map[string]string),
		nodeRetry: make(map[string]RetryConfig),
	}
}

// AddSkill adds a node named after the skill.
func (b *Builder) AddSkill(skill Skill) *Builder {
	name := ""
	if skill != nil {
		name = skill.Name()
	}
	return b.AddSkillAs(name, skill)
}

// AddSkillAs adds a node under an explicit name.
func (b *Builder) AddSkillAs(name string, skill Skill) *Builder {
	if b.built {
		return b
	}
	b.skills = append(b.skills, namedSkill{name: name, skill: skill})
	return b
}

// AddDependency declares that target depends on source.
func (b *Builder) AddDependency(source, target string) *Builder {
	if b.built {
		return b
	}
	b.deps = append(b.deps, Edge{Source: source, Target: target})
	return b
}

// ConfigureSkill merges overrides into the node's config; the last write wins per key.
func (b *Builder) ConfigureSkill(name string, overrides map[string]interface{}) *Builder {
	if b.built {
		return b
	}
	if b.config[name] == nil {
		b.config[name] = make(map[string]interface{})
	}
	for k, v := range overrides {
		b.config[name][k] = v
	}
	return b
}

// MapInput merges a rename table (upstream output key -> input key) into the
// node's input mapping; the last write wins per key.
func (b *Builder) MapInput(name string, mapping map[string]string) *Builder {
	if b.built {
		return b
	}
	if b.mappings[name] == nil {
		b.mappings[name] = make(map[string]string)
	}
	for k, v := range mapping {
		b.mappings[name][k] = v
	}
	return b
}

// SetRetryConfig sets the default retry policy of the graph.
func (b *Builder) SetRetryConfig(cfg RetryConfig) *Builder {
	if b.built {
		return b
	}
	b.retry = &cfg
	return b
}

// SetNodeRetryConfig overrides the retry policy for one node.
func (b *Builder) SetNodeRetryConfig(name string, cfg RetryConfig) *Builder {
	if b.built {
		return b
	}
	b.nodeRetry[name] = cfg
	return b
}

// Build assembles and validates the graph. On any problem it returns a
// *ValidationError listing all of them and no graph. The returned graph is frozen.
func (b *Builder) Build() (*Graph, error) {
	if b.built {
		return nil, NewPermanentError("builder already produced a graph", nil).WithCode(ErrCodeBuilderUsed)
	}
	b.built = true

	g := NewGraph()
	verr := &ValidationError{}

	if b.retry != nil {
		if err := b.retry.Validate(); err != nil {
			verr.add(NewPermanentError("invalid retry config", err).WithCode(ErrCodeValidation))
		} else {
			g.retry = *b.retry
		}
	}

	for _, ns := range b.skills {
		if _, err := g.AddNamedNode(ns.name, ns.skill); err != nil {
			verr.add(err)
		}
	}

	for _, e := range b.deps {
		if err := g.AddEdge(e.Source, e.Target); err != nil {
			verr.add(err)
		}
	}

	for _, name := range sortedKeys(b.config) {
		if _, ok := g.nodes[name]; !ok {
			verr.add(danglingReference("config override", name))
		}
	}
	for _, name := range sortedKeys(b.mappings) {
		if _, ok := g.nodes[name]; !ok {
			verr.add(danglingReference("input mapping", name))
		}
	}
	for _, name := range sortedKeys(b.nodeRetry) {
		cfg := b.nodeRetry[name]
		if _, ok := g.nodes[name]; !ok {
			verr.add(danglingReference("retry override", name))
			continue
		}
		if err := cfg.Validate(); err != nil {
			verr.add(NewPermanentError("invalid retry override", err).WithCode(ErrCodeValidation).WithNode(name))
		}
	}

	if len(verr.Problems) > 0 {
		return nil, verr
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	for name, overrides := range b.config {
		for k, v := range overrides {
			g.nodes[name].ConfigOverrides[k] = v
		}
	}
	for name, mapping := range b.mappings {
		for k, v := range mapping {
			g.nodes[name].InputMapping[k] = v
		}
	}
	for name, cfg := range b.nodeRetry {
		cfg := cfg
		g.nodes[name].Retry = &cfg
	}

	g.freeze()
	return g, nil
}

func danglingReference(kind, name string) error {
	return NewPermanentError(fmt.Sprintf("%s references unknown node %s", kind, name), nil).
		WithCode(ErrCodeNodeNotFound).WithNode(name)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
