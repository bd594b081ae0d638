package settings

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
)

// CurrentVersion is the schema version written by this release.
//
// Version history:
//   - v0: providers persisted as an object keyed by id, provider kind
//     under "type" with vendor names, catalog under "models", refresh
//     timestamp as unix milliseconds under "cachedAt".
//   - v1: providers as a list (still "type"/"apiKey" fields), catalog
//     still under "models", no version field.
//   - v2: explicit version field, "kind"/"credential" field names,
//     catalog under "catalog", RFC 3339 refresh timestamp.
const CurrentVersion = 2

// Document is the persisted settings value: the user's configured
// providers, the cached model catalog, and its refresh timestamp.
type Document struct {
	Version     int             `json:"version"`
	Providers   []ProviderEntry `json:"providers"`
	Catalog     []CatalogEntry  `json:"catalog"`
	RefreshedAt time.Time       `json:"catalog_refreshed_at"`
}

// ProviderEntry is one configured inference provider.
type ProviderEntry struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Label      string `json:"label,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// CatalogEntry is one cached model. ID is the canonical public
// identifier; legacy documents may carry "providerId:name" ids, which
// are preserved as-is (the resolver accepts both forms).
type CatalogEntry struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	ProviderID  string `json:"provider_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Credential  string `json:"credential,omitempty"`
}

// DefaultDocument returns an empty current-version document.
func DefaultDocument() Document {
	return Document{
		Version:   CurrentVersion,
		Providers: []ProviderEntry{},
		Catalog:   []CatalogEntry{},
	}
}

// Clone returns a deep copy of the document. Stores hand out clones so
// callers can never mutate a stored snapshot in place.
func (d Document) Clone() Document {
	out := d
	out.Providers = append([]ProviderEntry(nil), d.Providers...)
	out.Catalog = append([]CatalogEntry(nil), d.Catalog...)
	return out
}

// rawDocument is the loose decode target used to sniff legacy shapes
// before committing to a typed one.
type rawDocument struct {
	Version     int             `json:"version"`
	Providers   json.RawMessage `json:"providers"`
	Catalog     json.RawMessage `json:"catalog"`
	Models      json.RawMessage `json:"models"`   // pre-v2 key for catalog
	RefreshedAt string          `json:"catalog_refreshed_at"`
	CachedAt    int64           `json:"cachedAt"` // pre-v2 unix milliseconds
}

// wireProvider accepts both current and legacy provider field names.
type wireProvider struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Type       string `json:"type"` // legacy name for kind, vendor values
	Label      string `json:"label"`
	Endpoint   string `json:"endpoint"`
	Credential string `json:"credential"`
	APIKey     string `json:"apiKey"` // legacy name for credential
}

// wireCatalogEntry accepts both current and legacy catalog field names.
type wireCatalogEntry struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	ProviderID  string `json:"provider_id"`
	Provider    string `json:"provider"` // legacy name for provider_id
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	DisplayOld  string `json:"displayName"` // legacy camelCase
	Endpoint    string `json:"endpoint"`
	Credential  string `json:"credential"`
}

// Normalize decodes a persisted settings document of any known schema
// version into a current-version Document. Legacy shapes are migrated;
// missing fields are defaulted.
//
// On any decode or migration failure it returns DefaultDocument()
// together with a MalformedPersistedState error, so callers can log
// the corruption and continue with defaults without a second step.
func Normalize(raw []byte) (Document, error) {
	if len(raw) == 0 {
		return DefaultDocument(), api.NewMalformedStateError("empty settings document")
	}

	var rd rawDocument
	if err := json.Unmarshal(raw, &rd); err != nil {
		return DefaultDocument(), api.NewMalformedStateError(fmt.Sprintf("decoding settings: %v", err))
	}

	if rd.Version > CurrentVersion {
		return DefaultDocument(), api.NewMalformedStateError(
			fmt.Sprintf("settings version %d is newer than supported version %d", rd.Version, CurrentVersion))
	}

	doc := DefaultDocument()

	providers, err := decodeProviders(rd.Providers)
	if err != nil {
		return DefaultDocument(), err
	}
	doc.Providers = providers

	// v0/v1 persisted the catalog under "models".
	catalogRaw := rd.Catalog
	if len(catalogRaw) == 0 {
		catalogRaw = rd.Models
	}
	catalog, err := decodeCatalog(catalogRaw, providers)
	if err != nil {
		return DefaultDocument(), err
	}
	doc.Catalog = catalog

	doc.RefreshedAt = decodeRefreshedAt(rd.RefreshedAt, rd.CachedAt)

	return doc, nil
}

// decodeProviders handles both the list form (v1+) and the legacy
// object-keyed-by-id form (v0).
func decodeProviders(raw json.RawMessage) ([]ProviderEntry, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []ProviderEntry{}, nil
	}

	var wires []wireProvider
	if err := json.Unmarshal(raw, &wires); err == nil {
		return materializeProviders(wires), nil
	}

	var byID map[string]wireProvider
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, api.NewMalformedStateError(fmt.Sprintf("decoding providers: %v", err))
	}

	// Object keys win over any embedded id; sort for determinism.
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	wires = make([]wireProvider, 0, len(byID))
	for _, id := range ids {
		w := byID[id]
		w.ID = id
		wires = append(wires, w)
	}
	return materializeProviders(wires), nil
}

func materializeProviders(wires []wireProvider) []ProviderEntry {
	out := make([]ProviderEntry, 0, len(wires))
	for _, w := range wires {
		if w.ID == "" {
			// An entry without an identity cannot be referenced; drop it.
			continue
		}
		cred := w.Credential
		if cred == "" {
			cred = w.APIKey
		}
		kind := w.Kind
		if kind == "" {
			kind = w.Type
		}
		out = append(out, ProviderEntry{
			ID:         w.ID,
			Kind:       normalizeKind(kind),
			Label:      w.Label,
			Endpoint:   w.Endpoint,
			Credential: cred,
		})
	}
	return out
}

func decodeCatalog(raw json.RawMessage, providers []ProviderEntry) ([]CatalogEntry, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []CatalogEntry{}, nil
	}

	var wires []wireCatalogEntry
	if err := json.Unmarshal(raw, &wires); err != nil {
		return nil, api.NewMalformedStateError(fmt.Sprintf("decoding catalog: %v", err))
	}

	kindByProvider := make(map[string]string, len(providers))
	for _, p := range providers {
		kindByProvider[p.ID] = p.Kind
	}

	out := make([]CatalogEntry, 0, len(wires))
	for _, w := range wires {
		providerID := w.ProviderID
		if providerID == "" {
			providerID = w.Provider
		}

		name := w.Name
		if name == "" {
			name = nameFromID(w.ID)
		}
		if w.ID == "" && name == "" {
			continue
		}

		kind := w.Kind
		if kind == "" {
			kind = kindByProvider[providerID]
		}

		display := w.DisplayName
		if display == "" {
			display = w.DisplayOld
		}

		out = append(out, CatalogEntry{
			ID:          w.ID,
			Kind:        normalizeKind(kind),
			ProviderID:  providerID,
			Name:        name,
			DisplayName: display,
			Endpoint:    w.Endpoint,
			Credential:  w.Credential,
		})
	}
	return out, nil
}

func decodeRefreshedAt(rfc3339 string, unixMillis int64) time.Time {
	if rfc3339 != "" {
		if t, err := time.Parse(time.RFC3339, rfc3339); err == nil {
			return t
		}
	}
	if unixMillis > 0 {
		return time.UnixMilli(unixMillis).UTC()
	}
	return time.Time{}
}

// nameFromID extracts the model name from a stored identifier:
// everything after the first ":" (legacy form) or "/" (canonical form).
func nameFromID(id string) string {
	for i := 0; i < len(id); i++ {
		if id[i] == ':' || id[i] == '/' {
			return id[i+1:]
		}
	}
	return id
}

// normalizeKind maps legacy vendor-named provider types onto the
// closed kind set. Unknown values default to "standard-a", matching
// the defaulting applied everywhere else in identifier handling.
func normalizeKind(s string) string {
	switch s {
	case "standard-a", "standard-b", "aggregator", "custom":
		return s
	case "openai", "oai":
		return "standard-a"
	case "anthropic", "claude":
		return "standard-b"
	case "openrouter":
		return "aggregator"
	case "openai-compatible", "compat", "local":
		return "custom"
	default:
		return "standard-a"
	}
}

// Encode serializes the document for persistence, stamping the current
// schema version.
func Encode(doc Document) ([]byte, error) {
	doc.Version = CurrentVersion
	if doc.Providers == nil {
		doc.Providers = []ProviderEntry{}
	}
	if doc.Catalog == nil {
		doc.Catalog = []CatalogEntry{}
	}
	return json.Marshal(doc)
}
