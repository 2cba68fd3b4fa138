package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/modelrelay/modelrelay/pkg/model"
)

// Registry maps provider identifiers to adapters. Model identifiers follow
// the "<provider>/<model>" convention: the prefix selects the adapter, only
// the remainder is sent upstream. Lookup is a closed table, never
// reflection.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register installs an adapter under the given name. Several names may share
// one adapter: OpenAI-compatible vendors all route to the same
// implementation with different configurations.
func (r *Registry) Register(name string, a Adapter) {
	r.adapters[name] = a
}

// Lookup returns the adapter for a provider name.
func (r *Registry) Lookup(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("unknown provider: %s", name))
	}
	return a, nil
}

// Names returns registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SplitModelID parses "<provider>/<model>". The model part may itself
// contain slashes (openrouter-style vendor paths).
func SplitModelID(fullID string) (providerName, modelID string, err error) {
	slash := strings.Index(fullID, "/")
	if slash <= 0 || slash == len(fullID)-1 {
		return "", "", model.NewInvalidRequestError(fmt.Sprintf(
			"invalid model ID %q: expected <provider>/<model>", fullID))
	}
	return fullID[:slash], fullID[slash+1:], nil
}

// JoinModelID builds the fully qualified "<provider>/<model>" identifier.
func JoinModelID(providerName, modelID string) string {
	return providerName + "/" + modelID
}
