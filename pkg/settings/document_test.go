package settings

import (
	"errors"
	"testing"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
)

func TestNormalizeCurrentVersion(t *testing.T) {
	raw := []byte(`{
		"version": 2,
		"providers": [
			{"id": "p1", "kind": "standard-b", "label": "Work", "credential": "sk-ant"}
		],
		"catalog": [
			{"id": "Anthropic/claude-sonnet", "kind": "standard-b", "provider_id": "p1", "name": "claude-sonnet"}
		],
		"catalog_refreshed_at": "2026-08-20T10:30:00Z"
	}`)

	doc, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	if doc.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", doc.Version, CurrentVersion)
	}
	if len(doc.Providers) != 1 {
		t.Fatalf("len(Providers) = %d, want 1", len(doc.Providers))
	}
	if doc.Providers[0].Kind != "standard-b" {
		t.Errorf("Providers[0].Kind = %q, want \"standard-b\"", doc.Providers[0].Kind)
	}
	if doc.Providers[0].Credential != "sk-ant" {
		t.Errorf("Providers[0].Credential = %q, want \"sk-ant\"", doc.Providers[0].Credential)
	}
	if len(doc.Catalog) != 1 {
		t.Fatalf("len(Catalog) = %d, want 1", len(doc.Catalog))
	}
	if doc.Catalog[0].ID != "Anthropic/claude-sonnet" {
		t.Errorf("Catalog[0].ID = %q, want canonical id", doc.Catalog[0].ID)
	}

	want := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	if !doc.RefreshedAt.Equal(want) {
		t.Errorf("RefreshedAt = %v, want %v", doc.RefreshedAt, want)
	}
}

func TestNormalizeLegacyListForm(t *testing.T) {
	// v1: "type"/"apiKey" provider fields, catalog under "models",
	// timestamp as unix milliseconds.
	raw := []byte(`{
		"providers": [
			{"id": "p1", "type": "openai", "apiKey": "sk-oai"},
			{"id": "p2", "type": "openrouter", "apiKey": "sk-or"}
		],
		"models": [
			{"id": "p1:gpt-4", "provider": "p1", "name": "gpt-4", "displayName": "GPT-4"},
			{"id": "p2:meta/llama-3", "provider": "p2"}
		],
		"cachedAt": 1756000000000
	}`)

	doc, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	if len(doc.Providers) != 2 {
		t.Fatalf("len(Providers) = %d, want 2", len(doc.Providers))
	}
	if doc.Providers[0].Kind != "standard-a" {
		t.Errorf("Providers[0].Kind = %q, want \"standard-a\" (migrated from \"openai\")", doc.Providers[0].Kind)
	}
	if doc.Providers[0].Credential != "sk-oai" {
		t.Errorf("Providers[0].Credential = %q, want migrated apiKey", doc.Providers[0].Credential)
	}
	if doc.Providers[1].Kind != "aggregator" {
		t.Errorf("Providers[1].Kind = %q, want \"aggregator\"", doc.Providers[1].Kind)
	}

	if len(doc.Catalog) != 2 {
		t.Fatalf("len(Catalog) = %d, want 2", len(doc.Catalog))
	}
	if doc.Catalog[0].ProviderID != "p1" {
		t.Errorf("Catalog[0].ProviderID = %q, want \"p1\"", doc.Catalog[0].ProviderID)
	}
	if doc.Catalog[0].DisplayName != "GPT-4" {
		t.Errorf("Catalog[0].DisplayName = %q, want migrated displayName", doc.Catalog[0].DisplayName)
	}
	// Kind is inferred from the owning provider.
	if doc.Catalog[0].Kind != "standard-a" {
		t.Errorf("Catalog[0].Kind = %q, want \"standard-a\"", doc.Catalog[0].Kind)
	}
	// Name is recovered from the legacy id when absent.
	if doc.Catalog[1].Name != "meta/llama-3" {
		t.Errorf("Catalog[1].Name = %q, want name from legacy id", doc.Catalog[1].Name)
	}
	if doc.Catalog[1].Kind != "aggregator" {
		t.Errorf("Catalog[1].Kind = %q, want kind of provider p2", doc.Catalog[1].Kind)
	}

	if doc.RefreshedAt.IsZero() {
		t.Error("RefreshedAt is zero, want time from cachedAt millis")
	}
}

func TestNormalizeLegacyObjectForm(t *testing.T) {
	// v0: providers as an object keyed by id.
	raw := []byte(`{
		"providers": {
			"p9": {"type": "anthropic", "apiKey": "sk-ant"},
			"p1": {"type": "custom", "endpoint": "http://localhost:11434/v1"}
		}
	}`)

	doc, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	if len(doc.Providers) != 2 {
		t.Fatalf("len(Providers) = %d, want 2", len(doc.Providers))
	}
	// Object keys are materialized as ids, sorted.
	if doc.Providers[0].ID != "p1" || doc.Providers[1].ID != "p9" {
		t.Errorf("provider ids = %q, %q, want sorted p1, p9", doc.Providers[0].ID, doc.Providers[1].ID)
	}
	if doc.Providers[0].Kind != "custom" {
		t.Errorf("Providers[0].Kind = %q, want \"custom\"", doc.Providers[0].Kind)
	}
	if doc.Providers[1].Kind != "standard-b" {
		t.Errorf("Providers[1].Kind = %q, want \"standard-b\"", doc.Providers[1].Kind)
	}
}

func TestNormalizeCorruptInput(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", []byte{}},
		{"not json", []byte("providers: yes")},
		{"providers wrong type", []byte(`{"providers": 42}`)},
		{"catalog wrong type", []byte(`{"catalog": {"a": 1}}`)},
		{"future version", []byte(`{"version": 99}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Normalize(tt.raw)
			if err == nil {
				t.Fatal("Normalize() error = nil, want malformed-state error")
			}
			if !api.IsType(err, api.ErrorTypeMalformedState) {
				t.Errorf("error type = %v, want malformed_persisted_state", err)
			}
			// Recovery contract: a usable default document is returned
			// alongside the error.
			if doc.Version != CurrentVersion {
				t.Errorf("recovered Version = %d, want %d", doc.Version, CurrentVersion)
			}
			if doc.Providers == nil || doc.Catalog == nil {
				t.Error("recovered document has nil slices, want empty")
			}
		})
	}
}

func TestNormalizeDropsProvidersWithoutID(t *testing.T) {
	raw := []byte(`{
		"version": 2,
		"providers": [
			{"kind": "standard-a", "credential": "sk"},
			{"id": "p1", "kind": "standard-a"}
		]
	}`)

	doc, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if len(doc.Providers) != 1 {
		t.Fatalf("len(Providers) = %d, want 1 (entry without id dropped)", len(doc.Providers))
	}
	if doc.Providers[0].ID != "p1" {
		t.Errorf("Providers[0].ID = %q, want \"p1\"", doc.Providers[0].ID)
	}
}

func TestEncodeNormalizeRoundTrip(t *testing.T) {
	doc := DefaultDocument()
	doc.Providers = []ProviderEntry{{ID: "p1", Kind: "aggregator", Credential: "sk"}}
	doc.Catalog = []CatalogEntry{{ID: "OpenRouter/meta/llama-3", Kind: "aggregator", ProviderID: "p1", Name: "meta/llama-3"}}
	doc.RefreshedAt = time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)

	data, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	got, err := Normalize(data)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if len(got.Providers) != 1 || got.Providers[0].ID != "p1" {
		t.Errorf("round trip providers = %+v", got.Providers)
	}
	if len(got.Catalog) != 1 || got.Catalog[0].Name != "meta/llama-3" {
		t.Errorf("round trip catalog = %+v", got.Catalog)
	}
	if !got.RefreshedAt.Equal(doc.RefreshedAt) {
		t.Errorf("round trip RefreshedAt = %v, want %v", got.RefreshedAt, doc.RefreshedAt)
	}
}

func TestCloneIsolation(t *testing.T) {
	doc := DefaultDocument()
	doc.Providers = []ProviderEntry{{ID: "p1", Kind: "standard-a"}}

	clone := doc.Clone()
	clone.Providers[0].ID = "mutated"

	if doc.Providers[0].ID != "p1" {
		t.Error("mutating a clone changed the original document")
	}
}

func TestErrNotFoundSentinel(t *testing.T) {
	wrapped := errors.Join(ErrNotFound)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("errors.Is should match ErrNotFound through wrapping")
	}
}
