package ai

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ApiProvider implements the wire protocol for one backend family. Adapters
// register themselves from their own init functions under a single API tag
// (builtins.go registers models only); the dispatch layer picks the provider
// by Model.API.
type ApiProvider interface {
	API() API
	Stream(ctx context.Context, model Model, c Context, opts Options) *EventStream
	StreamSimple(ctx context.Context, model Model, c Context, opts SimpleOptions) *EventStream
}

var (
	ErrUnknownAPI   = fmt.Errorf("ai: unknown api")
	ErrUnknownModel = fmt.Errorf("ai: unknown model")
)

type registry struct {
	mu        sync.RWMutex
	models    map[string]Model       // key: provider + "/" + id
	providers map[API]ApiProvider
}

var globalRegistry = &registry{
	models:    make(map[string]Model),
	providers: make(map[API]ApiProvider),
}

func modelKey(provider, id string) string {
	return provider + "/" + id
}

// RegisterModel installs or replaces a Model under (provider, id). Per P8,
// re-registering with the same key replaces the prior entry.
func RegisterModel(provider string, m Model) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.models[modelKey(provider, m.ID)] = m
}

// RegisterModels installs a batch of models under one provider family.
func RegisterModels(provider string, ms map[string]Model) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	for id, m := range ms {
		if m.ID == "" {
			m.ID = id
		}
		globalRegistry.models[modelKey(provider, m.ID)] = m
	}
}

// GetModel looks up a single registered model.
func GetModel(provider, id string) (Model, error) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	m, ok := globalRegistry.models[modelKey(provider, id)]
	if !ok {
		return Model{}, fmt.Errorf("%w: %s/%s", ErrUnknownModel, provider, id)
	}
	return m, nil
}

// GetModels returns every registered model, optionally filtered by provider.
func GetModels(provider string) []Model {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	var out []Model
	for key, m := range globalRegistry.models {
		if provider == "" || (len(key) > len(provider) && key[:len(provider)+1] == provider+"/") {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetProviders returns the distinct provider-family names with registered
// models.
func GetProviders() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	seen := map[string]bool{}
	for key := range globalRegistry.models {
		for i := 0; i < len(key); i++ {
			if key[i] == '/' {
				seen[key[:i]] = true
				break
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RegisterApiProvider installs or replaces the adapter for an API tag.
func RegisterApiProvider(p ApiProvider) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.providers[p.API()] = p
}

// GetApiProvider looks up the adapter registered for an API tag.
func GetApiProvider(api API) (ApiProvider, error) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	p, ok := globalRegistry.providers[api]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAPI, api)
	}
	return p, nil
}

// WithScopedModel registers a model for the duration of fn and restores
// (or removes) the prior entry afterward. Intended for tests that need an
// ad-hoc model without polluting the global registry.
func WithScopedModel(provider string, m Model, fn func()) {
	globalRegistry.mu.Lock()
	key := modelKey(provider, m.ID)
	prior, had := globalRegistry.models[key]
	globalRegistry.models[key] = m
	globalRegistry.mu.Unlock()

	defer func() {
		globalRegistry.mu.Lock()
		defer globalRegistry.mu.Unlock()
		if had {
			globalRegistry.models[key] = prior
		} else {
			delete(globalRegistry.models, key)
		}
	}()

	fn()
}
