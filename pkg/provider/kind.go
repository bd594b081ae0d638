package provider

import "strings"

// Kind classifies a provider by its wire protocol and auth scheme, not by
// vendor. Two accounts at the same vendor share a kind; a self-hosted
// OpenAI-compatible endpoint is "custom" regardless of what serves it.
type Kind string

const (
	// KindStandardA: OpenAI-style Chat Completions with bearer auth.
	KindStandardA Kind = "standard-a"
	// KindStandardB: Anthropic Messages API with x-api-key auth and a
	// version header.
	KindStandardB Kind = "standard-b"
	// KindAggregator: an OpenRouter-style multi-vendor gateway. Model
	// names are prefixed with the upstream vendor ("meta/llama-3").
	KindAggregator Kind = "aggregator"
	// KindCustom: any OpenAI-compatible endpoint the user points at
	// (local runtimes, proxies). Endpoint is required, credential is not.
	KindCustom Kind = "custom"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStandardA, KindStandardB, KindAggregator, KindCustom:
		return true
	}
	return false
}

// Label returns the display label used in canonical model identifiers
// ("OpenAI/gpt-4"). The label is the public face of a kind; kinds
// themselves never appear in identifiers.
func (k Kind) Label() string {
	switch k {
	case KindStandardB:
		return "Anthropic"
	case KindAggregator:
		return "OpenRouter"
	case KindCustom:
		return "Custom"
	default:
		return "OpenAI"
	}
}

// KindFromLabel maps a display label from a canonical identifier back to
// a kind. Matching is case-insensitive. Unknown labels map to
// KindStandardA, mirroring the defaulting applied when identifiers were
// first minted.
func KindFromLabel(label string) Kind {
	switch strings.ToLower(label) {
	case "anthropic", "claude":
		return KindStandardB
	case "openrouter":
		return KindAggregator
	case "custom":
		return KindCustom
	default:
		return KindStandardA
	}
}
