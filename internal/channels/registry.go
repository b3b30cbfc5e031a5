package channels

import (
	"fmt"
	"sync"

	"github.com/reanhealth/botgateway/internal/messaging"
)

// Registry maps a ChannelKind to its adapter bundle. It replaces
// class-hierarchy dispatch: the bundle for a job is selected once by kind.
type Registry struct {
	mu       sync.RWMutex
	adapters map[messaging.ChannelKind]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[messaging.ChannelKind]Adapter{}}
}

// Register adds an adapter. Registering the same kind twice is an error.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	kind := adapter.Kind()
	if kind == "" {
		return fmt.Errorf("channel kind is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("channel already registered: %s", kind)
	}
	r.adapters[kind] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given channel kind.
func (r *Registry) Get(kind messaging.ChannelKind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[kind]
	return adapter, ok
}

// Kinds returns all registered channel kinds.
func (r *Registry) Kinds() []messaging.ChannelKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]messaging.ChannelKind, 0, len(r.adapters))
	for kind := range r.adapters {
		kinds = append(kinds, kind)
	}
	return kinds
}
