package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Client is the provider-agnostic LLM interface.
type Client interface {
	// Complete performs a blocking generation and returns the full response.
	Complete(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// ProviderConfig carries what a provider needs to build a client.
// An empty APIKey means the provider falls back to its environment variable.
type ProviderConfig struct {
	ModelName string
	APIKey    string
}

// ProviderFactory creates a Client for a given model within a provider.
type ProviderFactory func(cfg ProviderConfig) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderFactory{}
)

// RegisterProvider registers a factory function for a named provider.
// Call this from init() in provider packages. A nil factory removes the provider.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		delete(registry, name)
		return
	}
	registry[name] = factory
}

// Providers returns the names of all registered providers, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient constructs a Client for the given model ID ("provider:model-name").
// apiKey may be empty, in which case the provider reads its own environment variable.
func NewClient(modelID, apiKey string) (Client, error) {
	provider, modelName, err := ParseModelID(modelID)
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}
	registryMu.RLock()
	factory, ok := registry[provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (model ID %q); did you import the provider package?", provider, modelID)
	}
	return factory(ProviderConfig{ModelName: modelName, APIKey: apiKey})
}
