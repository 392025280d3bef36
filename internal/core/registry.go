package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]DocumentType)
	registryMu sync.RWMutex
)

// Register adds a document type to the registry.
// Panics if a type with the same key is already registered or the type has no natural key.
func Register(def DocumentType) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("document type already registered: %s", def.Info.Key))
	}
	if len(def.NaturalKey) == 0 {
		panic(fmt.Sprintf("document type %s has no natural key", def.Info.Key))
	}
	for _, col := range def.NaturalKey {
		if spec, ok := def.Spec(col); !ok || !spec.Required {
			panic(fmt.Sprintf("document type %s: natural key column %q must be a required field", def.Info.Key, col))
		}
	}

	registry[def.Info.Key] = def
}

// Get returns a document type by key.
// Returns false if not found.
func Get(key string) (DocumentType, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// Lookup is Get with an error suitable for returning to callers.
func Lookup(key string) (DocumentType, error) {
	def, ok := Get(key)
	if !ok {
		return DocumentType{}, fmt.Errorf("%w: %s", ErrUnknownDocType, key)
	}
	return def, nil
}

// All returns all registered document types sorted by key.
func All() []DocumentType {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DocumentType, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Count returns the number of registered document types.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered document types.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]DocumentType)
}
