package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/veridex/veridex/config"
)

// Factory constructs a ChatModel from a provider configuration.
type Factory func(cfg config.ProviderConfig) (ChatModel, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register associates a provider name with a Factory. Providers call this
// from an init() function so that importing the provider package is enough
// to make it available through New.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a ChatModel for the named provider.
func New(name string, cfg config.ProviderConfig) (ChatModel, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
	return factory(cfg)
}

// List returns the names of all registered providers, sorted alphabetically.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
