package registry

import "sync"

// Registry is an optional lookup-by-capability collaborator. When the
// host wires no registry, service validation degrades to informational
// and safe mode has nothing to unbind.
type Registry interface {
	// Resolve returns the service registered under name, or nil.
	Resolve(name string) any
	// Names lists every registered capability.
	Names() []string
	// Unbind removes a registration. Returns whether it existed.
	Unbind(name string) bool
}

// MapRegistry is a minimal in-process Registry backed by a map.
type MapRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

func NewMapRegistry() *MapRegistry {
	return &MapRegistry{services: make(map[string]any)}
}

// Register binds a service under name, replacing any prior binding.
func (r *MapRegistry) Register(name string, svc any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = svc
}

func (r *MapRegistry) Resolve(name string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services[name]
}

func (r *MapRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

func (r *MapRegistry) Unbind(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[name]; !ok {
		return false
	}
	delete(r.services, name)
	return true
}
