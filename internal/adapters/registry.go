// Registry manages adapter registration and lookup.
//
// DESIGN: Thread-safe map of provider name → Adapter.
// Built-in adapters are registered at startup.
package adapters

import (
	"fmt"
	"sort"
	"sync"

	"github.com/compresr/inference-gateway/internal/inference"
)

// Registry manages adapter registration.
type Registry struct {
	adapters map[string]Adapter
	mu       sync.RWMutex
}

// NewRegistry creates a new adapter registry with all built-in adapters.
// files resolves file blocks for every adapter; nil uses inline resolution.
func NewRegistry(files inference.FileResolver) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter),
	}

	// Register built-in adapters
	r.Register(NewOpenAIResponsesAdapter(files))
	r.Register(NewOpenAIAdapter(files))
	r.Register(NewOllamaAdapter(files))
	r.Register(NewAnthropicAdapter(files))
	r.Register(NewBedrockAdapter(files))
	r.Register(NewGeminiAdapter(files))

	return r
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

// Get returns an adapter by name.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// Lookup returns an adapter by name or an error naming the known adapters.
func (r *Registry) Lookup(name string) (Adapter, error) {
	if a := r.Get(name); a != nil {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownProvider, name, r.Names())
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
