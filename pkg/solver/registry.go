package solver

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrDuplicateName    = errors.New("algorithm name already registered")
	ErrNotFound         = errors.New("algorithm not registered")
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	ErrInvalidName      = errors.New("invalid algorithm name")
	ErrRegistryClosed   = errors.New("registry closed")
)

// Registry maps algorithm names to descriptors. It is populated at startup
// and closed at shutdown. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	algos  map[string]Descriptor
	closed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{algos: make(map[string]Descriptor)}
}

// Register adds d. Names must be unique.
func (r *Registry) Register(d Descriptor) error {
	if len(d.Name) == 0 || len(d.Name) > MaxNameLength {
		return errors.Wrapf(ErrInvalidName, "%q", d.Name)
	}
	if d.New == nil {
		return errors.Errorf("algorithm %q has no constructor", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.algos[d.Name]; ok {
		return errors.Wrapf(ErrDuplicateName, "%q", d.Name)
	}
	r.algos[d.Name] = d
	return nil
}

// Unregister removes the descriptor registered under name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.algos[name]; !ok {
		return errors.Wrapf(ErrNotFound, "%q", name)
	}
	delete(r.algos, name)
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return Descriptor{}, ErrRegistryClosed
	}
	d, ok := r.algos[name]
	if !ok {
		return Descriptor{}, errors.Wrapf(ErrUnknownAlgorithm, "%q", name)
	}
	return d, nil
}

// Names lists the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.algos))
	for name := range r.algos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close tears the registry down. Solvers already constructed keep working;
// every later Register, Unregister or Lookup fails with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.algos = make(map[string]Descriptor)
}
