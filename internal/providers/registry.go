package providers

import (
	"fmt"
	"sort"
	"strings"

	"llmgate/internal/core"
)

// Entry is one provider client and the key it is reachable under.
type Entry struct {
	Key      string
	Type     string
	Provider core.Provider
}

// Registry maps provider keys to clients. It is built once and never
// modified, so it can be shared by concurrent calls without locking.
type Registry struct {
	entries map[string]Entry
	keys    []string
}

// NewRegistry builds a registry from entries.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.Key == "" || strings.Contains(e.Key, "/") {
			return nil, fmt.Errorf("invalid provider key %q", e.Key)
		}
		if e.Provider == nil {
			return nil, fmt.Errorf("provider %q has no client", e.Key)
		}
		if _, dup := r.entries[e.Key]; dup {
			return nil, fmt.Errorf("provider %q registered twice", e.Key)
		}
		r.entries[e.Key] = e
		r.keys = append(r.keys, e.Key)
	}
	sort.Strings(r.keys)
	return r, nil
}

// Lookup returns the client registered under key.
func (r *Registry) Lookup(key string) (core.Provider, bool) {
	e, ok := r.entries[key]
	return e.Provider, ok
}

// Keys returns the registered provider keys, sorted.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.keys)
}

// Info describes the registered providers, sorted by key.
func (r *Registry) Info() []core.ProviderInfo {
	info := make([]core.ProviderInfo, 0, len(r.keys))
	for _, k := range r.keys {
		info = append(info, core.ProviderInfo{Key: k, Type: r.entries[k].Type})
	}
	return info
}
