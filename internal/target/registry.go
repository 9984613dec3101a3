package target

import (
	"fmt"
	"sort"
	"sync"
)

// Resolver maps a _target_ reference to a constructible.
type Resolver interface {
	Resolve(ref string) (Constructible, error)
}

// Registry is a concurrency-safe Resolver filled ahead of generation.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]Constructible
	enums   map[string]*Enum
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		targets: make(map[string]Constructible),
		enums:   make(map[string]*Enum),
	}
}

// Register adds a constructible under its reference.
func (r *Registry) Register(c Constructible) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := c.Reference()
	if ref == "" {
		return fmt.Errorf("register %s: empty reference", c.Kind())
	}
	if _, exists := r.targets[ref]; exists {
		return fmt.Errorf("register %s: reference %q already registered", c.Kind(), ref)
	}
	r.targets[ref] = c
	return nil
}

// MustRegister is Register for init-time tables.
func (r *Registry) MustRegister(cs ...Constructible) *Registry {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// RegisterEnum makes an enum available to manifest type expressions.
func (r *Registry) RegisterEnum(e *Enum) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.enums[e.Name]; exists {
		return fmt.Errorf("register enum: %q already registered", e.Name)
	}
	r.enums[e.Name] = e
	return nil
}

// Enum looks up a registered enum by name.
func (r *Registry) Enum(name string) (*Enum, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enums[name]
	return e, ok
}

// Resolve returns the constructible registered under ref.
func (r *Registry) Resolve(ref string) (Constructible, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.targets[ref]; ok {
		return c, nil
	}
	return nil, &UnresolvableTargetError{Reference: ref}
}

// References lists every registered reference, sorted.
func (r *Registry) References() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.targets))
	for ref := range r.targets {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}
