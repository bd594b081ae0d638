package provider

import (
	"strings"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/debug"
)

// Identifier is the parsed form of a user-facing model identifier.
type Identifier struct {
	// Kind is the provider kind the identifier points at.
	Kind Kind

	// Name is the provider-facing model name.
	Name string

	// LegacyProviderID is set when the identifier used the retired
	// "providerId:modelName" form. It is kept for the exact-match
	// resolution tier even when the provider no longer exists.
	LegacyProviderID string
}

// Resolver turns stored model identifiers into concrete catalog entries.
// It understands the canonical "<Label>/<name>" form and the legacy
// "providerId:name" form, and applies a fixed fallback policy when the
// catalog has drifted since the identifier was written.
type Resolver struct {
	registry *Registry
	catalog  *Catalog
}

// NewResolver creates a resolver over the given registry and catalog.
func NewResolver(registry *Registry, catalog *Catalog) *Resolver {
	return &Resolver{registry: registry, catalog: catalog}
}

// ParseIdentifier splits a model identifier into its parsed form. The
// canonical form wins when both separators are present. For legacy
// identifiers the provider id is looked up in the registry to recover
// the kind; an unknown id defaults to KindStandardA but is retained for
// exact matching. Returns false for strings in neither form.
func (r *Resolver) ParseIdentifier(id string) (Identifier, bool) {
	if i := strings.Index(id, "/"); i >= 0 {
		return Identifier{
			Kind: KindFromLabel(id[:i]),
			Name: id[i+1:],
		}, true
	}

	if i := strings.Index(id, ":"); i >= 0 {
		providerID := id[:i]
		parsed := Identifier{
			Kind:             KindStandardA,
			Name:             id[i+1:],
			LegacyProviderID: providerID,
		}
		if p, ok := r.registry.Get(providerID); ok {
			parsed.Kind = p.Kind
		}
		return parsed, true
	}

	return Identifier{}, false
}

// Resolve maps an identifier to a catalog entry. Four tiers are checked
// in order, first hit wins:
//
//  1. exact catalog id match
//  2. legacy provider instance id plus model name
//  3. same provider kind plus exact model name
//  4. cross-provider base-name fallback
//
// Tier 4 runs only when the parsed kind has no catalog entries at all.
// If the intended provider is configured but lacks the model, resolution
// fails instead of silently substituting another provider's model. The
// base-name comparison strips vendor prefixes, so an aggregator's
// "openai/gpt-4" satisfies a dangling "OpenAI/gpt-4" reference.
func (r *Resolver) Resolve(id string) (Model, error) {
	parsed, ok := r.ParseIdentifier(id)
	if !ok {
		return Model{}, api.NewModelNotFoundError(id)
	}

	models, _ := r.catalog.Snapshot()

	for _, m := range models {
		if m.ID == id {
			return m, nil
		}
	}

	if parsed.LegacyProviderID != "" {
		for _, m := range models {
			if m.ProviderID == parsed.LegacyProviderID && m.Name == parsed.Name {
				return m, nil
			}
		}
	}

	kindHasEntries := false
	for _, m := range models {
		if m.Kind != parsed.Kind {
			continue
		}
		kindHasEntries = true
		if m.Name == parsed.Name {
			return m, nil
		}
	}

	if !kindHasEntries {
		base := BaseModelName(parsed.Name)
		for _, m := range models {
			if BaseModelName(m.Name) == base {
				debug.Log("provider", "cross-provider fallback",
					"id", id, "matched", m.ID)
				return m, nil
			}
		}
	}

	return Model{}, api.NewModelNotFoundError(id)
}

// Canonicalize re-renders an identifier in the canonical form of the
// entry it currently resolves to. Identifiers that do not resolve are
// returned unchanged, so repeated canonicalization is a no-op on unknown
// ids and persisted references are never corrupted by a failed lookup.
func (r *Resolver) Canonicalize(id string) string {
	m, err := r.Resolve(id)
	if err != nil {
		return id
	}
	return CanonicalModelID(m.Kind, m.Name)
}

// Hydrate resolves an identifier and overlays the owning provider's
// current credential and endpoint onto any the entry lacks. Models
// cached before a credential was added still invoke correctly after
// hydration; values stamped at refresh time are never overwritten.
func (r *Resolver) Hydrate(id string) (Model, error) {
	m, err := r.Resolve(id)
	if err != nil {
		return Model{}, err
	}

	if m.Credential != "" && m.Endpoint != "" {
		return m, nil
	}

	if p, ok := r.registry.Get(m.ProviderID); ok {
		if m.Credential == "" {
			m.Credential = p.Credential
		}
		if m.Endpoint == "" {
			m.Endpoint = p.Endpoint
		}
	}

	return m, nil
}
