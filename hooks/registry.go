package hooks

import (
	"fmt"
	"sort"
	"sync"
)

// PluginFactory installs a plugin's hooks into the broker. The returned
// closer, if any, is called when the simulation ends.
type PluginFactory func(broker *PluginBroker) (func() error, error)

type registryEntry struct {
	desc    PluginDescriptor
	factory PluginFactory
}

// Registry keeps plugin factories that can be activated via configuration.
type Registry struct {
	mu      sync.RWMutex
	broker  *PluginBroker
	entries map[string]registryEntry
	closers []func() error
}

// NewRegistry creates an empty plugin registry bound to a broker.
func NewRegistry(broker *PluginBroker) *Registry {
	if broker == nil {
		broker = NewPluginBroker()
	}
	return &Registry{
		broker:  broker,
		entries: make(map[string]registryEntry),
	}
}

// Broker returns the underlying broker associated with the registry.
func (r *Registry) Broker() *PluginBroker {
	if r == nil {
		return nil
	}
	return r.broker
}

// Register adds a named plugin factory.
func (r *Registry) Register(desc PluginDescriptor, factory PluginFactory) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if desc.Name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("plugin factory cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("plugin already registered: %s", desc.Name)
	}
	r.entries[desc.Name] = registryEntry{desc: desc, factory: factory}
	return nil
}

// Load activates the requested plugins in order.
func (r *Registry) Load(names []string) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	for _, name := range names {
		r.mu.RLock()
		entry, ok := r.entries[name]
		r.mu.RUnlock()
		if !ok {
			return fmt.Errorf("plugin not found: %s", name)
		}
		closer, err := entry.factory(r.broker)
		if err != nil {
			return fmt.Errorf("plugin %s failed: %w", name, err)
		}
		if closer != nil {
			r.mu.Lock()
			r.closers = append(r.closers, closer)
			r.mu.Unlock()
		}
		r.broker.RegisterPluginMetadata(entry.desc)
	}
	return nil
}

// Close runs plugin closers in reverse load order and returns the first error.
func (r *Registry) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Names lists the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Descriptor returns metadata registered under the provided name.
func (r *Registry) Descriptor(name string) (PluginDescriptor, bool) {
	if r == nil {
		return PluginDescriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry.desc, ok
}
