package provider

import "strings"

// Provider is one configured inference backend: an account at a vendor or
// a self-hosted endpoint. The list of providers is user configuration,
// persisted in the settings document and treated as a snapshot here.
type Provider struct {
	// ID uniquely identifies this provider instance. It is stable across
	// restarts and appears in legacy model identifiers ("p1:gpt-4").
	ID string `json:"id"`

	// Kind selects the wire protocol and auth scheme.
	Kind Kind `json:"kind"`

	// Label is an optional user-facing name ("Work account").
	Label string `json:"label,omitempty"`

	// Endpoint overrides the kind's default base URL when set.
	Endpoint string `json:"endpoint,omitempty"`

	// Credential is the API key. Never serialized into logs or traces.
	Credential string `json:"credential,omitempty"`
}

// Model is one entry in the catalog: a model offered by a provider,
// stamped at refresh time with everything needed to invoke it later.
type Model struct {
	// ID is the canonical public identifier, "<Label>/<name>". Unique
	// within one catalog snapshot.
	ID string `json:"id"`

	// Kind is the owning provider's kind at refresh time.
	Kind Kind `json:"kind"`

	// ProviderID is the owning provider instance.
	ProviderID string `json:"provider_id"`

	// Name is the provider-facing model name sent on the wire. Aggregator
	// names carry an upstream vendor prefix ("meta/llama-3").
	Name string `json:"name"`

	// DisplayName is an optional human-readable name from the provider.
	DisplayName string `json:"display_name,omitempty"`

	// Endpoint and Credential are the provider's effective values at
	// refresh time. Either may be empty for entries cached before the
	// provider was fully configured; hydration overlays current values.
	Endpoint   string `json:"endpoint,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// CanonicalModelID renders the public identifier for a model: the kind's
// display label joined to the provider-facing model name.
func CanonicalModelID(kind Kind, name string) string {
	return kind.Label() + "/" + name
}

// BaseModelName returns the final slash-delimited segment of a model
// name. Aggregator catalogs prefix names with the upstream vendor, so
// "meta/llama-3" and a direct provider's "llama-3" share a base name.
func BaseModelName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
