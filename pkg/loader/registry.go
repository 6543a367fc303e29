package loader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/skilldag/skilldag/pkg/engine"
)

// Factory creates a fresh skill instance.
type Factory func() (engine.Skill, error)

// Registry maps namespace and symbol names to skill factories registered at
// program start. Conformance to engine.Skill is enforced by the compiler; the
// registry additionally rejects nil instances at load time.
type Registry struct {
	// mu protects the registry state.
	mu sync.RWMutex

	// factories maps namespace -> symbol -> factory.
	factories map[string]map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]map[string]Factory),
	}
}

// Register adds a factory under namespace::symbol. Registering the same name twice fails.
func (r *Registry) Register(namespace, symbol string, factory Factory) error {
	if namespace == "" || symbol == "" {
		return fmt.Errorf("namespace and symbol are required")
	}
	if factory == nil {
		return fmt.Errorf("factory for %s%s%s is nil", namespace, Separator, symbol)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.factories[namespace] == nil {
		r.factories[namespace] = make(map[string]Factory)
	}
	if _, exists := r.factories[namespace][symbol]; exists {
		return fmt.Errorf("skill %s%s%s is already registered", namespace, Separator, symbol)
	}
	r.factories[namespace][symbol] = factory
	return nil
}

// MustRegister is Register for init-time registration; it panics on error.
func (r *Registry) MustRegister(namespace, symbol string, factory Factory) {
	if err := r.Register(namespace, symbol, factory); err != nil {
		panic(err)
	}
}

// HasNamespace reports whether any factory is registered under namespace.
func (r *Registry) HasNamespace(namespace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[namespace]
	return ok
}

// List returns every registered reference, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0)
	for ns, symbols := range r.factories {
		for sym := range symbols {
			refs = append(refs, ns+Separator+sym)
		}
	}
	sort.Strings(refs)
	return refs
}

// load instantiates the skill for ref.
func (r *Registry) load(ref Reference) (engine.Skill, error) {
	r.mu.RLock()
	symbols, ok := r.factories[ref.Location]
	var factory Factory
	if ok {
		factory = symbols[ref.Symbol]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, newLoadError(KindFileNotFound, ref.String(), "no registered namespace "+ref.Location, nil)
	}
	if factory == nil {
		return nil, newLoadError(KindSymbolNotFound, ref.String(),
			fmt.Sprintf("namespace %s has no skill %s", ref.Location, ref.Symbol), nil)
	}

	skill, err := factory()
	if err != nil {
		return nil, newLoadError(KindInstantiationFailed, ref.String(), "factory failed", err)
	}
	if skill == nil {
		return nil, newLoadError(KindInterfaceNotSatisfied, ref.String(), "factory returned a nil skill", nil)
	}
	return skill, nil
}
