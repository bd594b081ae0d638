package provider

import "sync"

// Registry holds the current snapshot of configured providers. It is read
// by the resolver and the catalog manager and replaced wholesale when the
// user edits provider configuration; individual entries are never mutated
// in place, so readers always see either the old or the new list in full.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates a registry holding the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	r.Replace(providers)
	return r
}

// Replace swaps the provider list for a new snapshot.
func (r *Registry) Replace(providers []Provider) {
	snapshot := make([]Provider, len(providers))
	copy(snapshot, providers)

	r.mu.Lock()
	r.providers = snapshot
	r.mu.Unlock()
}

// Snapshot returns a copy of the current provider list.
func (r *Registry) Snapshot() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Get looks up a provider by instance id.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// Len returns the number of configured providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// MergeProviders unions persisted providers with configured ones.
// Persisted entries win on identity; a configured provider with the same
// id fills in credential and endpoint fields the persisted entry lacks
// (credentials usually live in config files or env, not in the persisted
// document). Configured providers not present in the persisted list are
// appended.
func MergeProviders(persisted, configured []Provider) []Provider {
	out := make([]Provider, len(persisted))
	copy(out, persisted)

	index := make(map[string]int, len(out))
	for i, p := range out {
		index[p.ID] = i
	}

	for _, c := range configured {
		i, ok := index[c.ID]
		if !ok {
			out = append(out, c)
			continue
		}
		if out[i].Credential == "" {
			out[i].Credential = c.Credential
		}
		if out[i].Endpoint == "" {
			out[i].Endpoint = c.Endpoint
		}
		if out[i].Label == "" {
			out[i].Label = c.Label
		}
	}

	return out
}
