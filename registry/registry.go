// Package registry maps CLI module names to producer constructors,
// translated from original_source/module_registry.py's ModuleRegistry.
package registry

import (
	"fmt"
	"sort"

	"github.com/antzucaro/matchr"

	"github.com/polymixer/polymixer/producer"
)

// Factory constructs a fresh producer instance. Producers are stateful
// (Setup captures parsed args), so the registry holds constructors, not
// shared instances, unlike the Python original which registered a single
// long-lived module object per name.
type Factory func() producer.Producer

// Registry is an ordered name -> Factory map.
type Registry struct {
	names     []string
	factories map[string]Factory
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a producer factory under name. Registering the same name
// twice replaces the previous factory without changing its position in
// Names().
func (r *Registry) Register(name string, factory Factory) {
	if _, exists := r.factories[name]; !exists {
		r.names = append(r.names, name)
	}
	r.factories[name] = factory
}

// Names returns every registered producer name in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// ErrUnknownModule is returned by Get for an unregistered name. Suggestion
// is the closest registered name by Jaro-Winkler similarity, empty if
// nothing registered is close enough to be worth suggesting.
type ErrUnknownModule struct {
	Name       string
	Suggestion string
}

func (e *ErrUnknownModule) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("module %q is not available", e.Name)
	}
	return fmt.Sprintf("module %q is not available (did you mean %q?)", e.Name, e.Suggestion)
}

// suggestionThreshold is the minimum Jaro-Winkler similarity (0..1) for a
// registered name to be offered as a typo suggestion.
const suggestionThreshold = 0.82

// Get returns a new producer instance for name, or *ErrUnknownModule if name
// isn't registered (original_source/module_registry.py's bare ValueError,
// now augmented with a "did you mean" suggestion).
func (r *Registry) Get(name string) (producer.Producer, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, &ErrUnknownModule{Name: name, Suggestion: r.suggest(name)}
	}
	return factory(), nil
}

func (r *Registry) suggest(name string) string {
	best := ""
	bestScore := suggestionThreshold
	for _, candidate := range r.names {
		score := matchr.JaroWinkler(name, candidate)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best
}

// sortedNames is a small helper for -list-modules output (spec.md §6).
func (r *Registry) sortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

// List renders every registered producer name, one per line, for
// -list-modules (spec.md §6).
func (r *Registry) List() []string {
	return r.sortedNames()
}
