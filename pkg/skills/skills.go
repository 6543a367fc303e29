// Package skills provides the built-in skills shipped with skilldag. They are
// registered under the "builtin" namespace of a loader registry and referenced
// from workflows as "builtin::<name>".
package skills

import (
	"fmt"
	"sort"

	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/skilldag/skilldag/pkg/loader"
)

// Namespace is the registry namespace of the built-in skills.
const Namespace = "builtin"

// Version is reported by every built-in skill.
const Version = "1.0.0"

// builtins maps each symbol to its factory.
var builtins = map[string]loader.Factory{
	"echo":      func() (engine.Skill, error) { return NewEcho(), nil },
	"fail":      func() (engine.Skill, error) { return NewFail(), nil },
	"flaky":     func() (engine.Skill, error) { return NewFlaky(), nil },
	"sleep":     func() (engine.Skill, error) { return NewSleep(), nil },
	"transform": func() (engine.Skill, error) { return NewTransform(), nil },
}

// Register adds every built-in skill to reg.
func Register(reg *loader.Registry) error {
	for _, name := range Names() {
		if err := reg.Register(Namespace, name, builtins[name]); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}
	return nil
}

// NewRegistry returns a registry holding only the built-in skills.
func NewRegistry() *loader.Registry {
	reg := loader.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}

// Names returns the built-in symbols in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
