package provider

import (
	"time"

	"github.com/grothkopp/ainb/pkg/settings"
)

// FromSettings converts a normalized settings document into registry and
// catalog values. Kinds in the document are already normalized; entries
// that still carry an unknown kind are defaulted rather than dropped.
func FromSettings(doc settings.Document) ([]Provider, []Model, time.Time) {
	providers := make([]Provider, 0, len(doc.Providers))
	for _, e := range doc.Providers {
		kind := Kind(e.Kind)
		if !kind.Valid() {
			kind = KindStandardA
		}
		providers = append(providers, Provider{
			ID:         e.ID,
			Kind:       kind,
			Label:      e.Label,
			Endpoint:   e.Endpoint,
			Credential: e.Credential,
		})
	}

	models := make([]Model, 0, len(doc.Catalog))
	for _, e := range doc.Catalog {
		kind := Kind(e.Kind)
		if !kind.Valid() {
			kind = KindStandardA
		}
		id := e.ID
		if id == "" {
			id = CanonicalModelID(kind, e.Name)
		}
		models = append(models, Model{
			ID:          id,
			Kind:        kind,
			ProviderID:  e.ProviderID,
			Name:        e.Name,
			DisplayName: e.DisplayName,
			Endpoint:    e.Endpoint,
			Credential:  e.Credential,
		})
	}

	return providers, models, doc.RefreshedAt
}

// ToSettings renders the current provider and catalog snapshot as a
// settings document for persistence.
func ToSettings(providers []Provider, models []Model, refreshedAt time.Time) settings.Document {
	doc := settings.DefaultDocument()
	doc.RefreshedAt = refreshedAt

	doc.Providers = make([]settings.ProviderEntry, 0, len(providers))
	for _, p := range providers {
		doc.Providers = append(doc.Providers, settings.ProviderEntry{
			ID:         p.ID,
			Kind:       string(p.Kind),
			Label:      p.Label,
			Endpoint:   p.Endpoint,
			Credential: p.Credential,
		})
	}

	doc.Catalog = make([]settings.CatalogEntry, 0, len(models))
	for _, m := range models {
		doc.Catalog = append(doc.Catalog, settings.CatalogEntry{
			ID:          m.ID,
			Kind:        string(m.Kind),
			ProviderID:  m.ProviderID,
			Name:        m.Name,
			DisplayName: m.DisplayName,
			Endpoint:    m.Endpoint,
			Credential:  m.Credential,
		})
	}

	return doc
}
