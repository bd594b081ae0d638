package provider

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/debug"
	"github.com/grothkopp/ainb/pkg/observability"
	"github.com/grothkopp/ainb/pkg/settings"
)

// CatalogManager owns catalog refreshes: it fans one list-models call out
// per configured provider, tolerates individual failures, replaces the
// catalog wholesale with the successes, and persists the result.
type CatalogManager struct {
	registry *Registry
	catalog  *Catalog
	store    settings.Store
	invokers InvokerFactory

	refreshing atomic.Bool
}

// NewCatalogManager creates a manager over the given registry, catalog
// and settings store. The factory builds the per-provider invokers used
// for list-models calls.
func NewCatalogManager(registry *Registry, catalog *Catalog, store settings.Store, invokers InvokerFactory) *CatalogManager {
	return &CatalogManager{
		registry: registry,
		catalog:  catalog,
		store:    store,
		invokers: invokers,
	}
}

// Refresh rebuilds the catalog from the configured providers. When
// override is non-nil it replaces the registry snapshot first.
//
// Only one refresh runs at a time; a call arriving while another is in
// flight returns RefreshSkipped without any network activity. An empty
// registry returns RefreshNeedsConfiguration and leaves the existing
// catalog untouched. Provider calls run concurrently and independently;
// each failure is recorded, not propagated, and the replacement catalog
// concatenates the successes in completion order. When every provider
// fails the previous catalog is kept.
func (m *CatalogManager) Refresh(ctx context.Context, override []Provider) api.RefreshOutcome {
	if !m.refreshing.CompareAndSwap(false, true) {
		debug.Log("catalog", "refresh already in flight, skipping")
		observability.CatalogRefreshTotal.WithLabelValues(string(api.RefreshSkipped)).Inc()
		return api.RefreshOutcome{Status: api.RefreshSkipped}
	}
	defer m.refreshing.Store(false)

	if override != nil {
		m.registry.Replace(override)
	}

	providers := m.registry.Snapshot()
	if len(providers) == 0 {
		observability.CatalogRefreshTotal.WithLabelValues(string(api.RefreshNeedsConfiguration)).Inc()
		return api.RefreshOutcome{Status: api.RefreshNeedsConfiguration}
	}

	type listResult struct {
		provider Provider
		models   []Model
		err      error
	}

	results := make(chan listResult, len(providers))
	for _, p := range providers {
		go func(p Provider) {
			models, err := m.listProvider(ctx, p)
			results <- listResult{provider: p, models: models, err: err}
		}(p)
	}

	// Collect in completion order; the catalog order mirrors it.
	var models []Model
	var failures []api.ProviderFailure
	for range providers {
		res := <-results
		if res.err != nil {
			slog.Warn("provider refresh failed",
				"provider", res.provider.ID, "error", res.err)
			failures = append(failures, api.ProviderFailure{
				ProviderID: res.provider.ID,
				Message:    res.err.Error(),
			})
			continue
		}
		models = append(models, res.models...)
	}

	now := time.Now().UTC()
	outcome := api.RefreshOutcome{
		ModelCount:  len(models),
		Failures:    failures,
		RefreshedAt: now,
	}

	switch {
	case len(failures) == 0:
		outcome.Status = api.RefreshAllSucceeded
	case len(failures) == len(providers):
		// Keep the previous catalog; an outage should not erase it.
		outcome.Status = api.RefreshTotalFailure
		observability.CatalogRefreshTotal.WithLabelValues(string(outcome.Status)).Inc()
		return outcome
	default:
		outcome.Status = api.RefreshPartial
	}

	m.catalog.Replace(models, now)
	m.persist(ctx, providers, models, now)

	observability.CatalogRefreshTotal.WithLabelValues(string(outcome.Status)).Inc()
	observability.CatalogSize.Set(float64(len(models)))
	observability.CatalogLastRefresh.Set(float64(now.Unix()))

	debug.Log("catalog", "refresh complete",
		"status", string(outcome.Status), "models", len(models), "failures", len(failures))

	return outcome
}

// listProvider performs one provider's list-models call and stamps every
// returned model with its canonical identifier, owning provider, and the
// provider's effective credential and endpoint.
func (m *CatalogManager) listProvider(ctx context.Context, p Provider) ([]Model, error) {
	inv, err := m.invokers(p.Kind, p.Endpoint, p.Credential)
	if err != nil {
		return nil, err
	}
	defer inv.Close()

	infos, err := inv.ListModels(ctx)
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(string(p.Kind), "error").Inc()
		return nil, err
	}
	observability.ProviderRequestsTotal.WithLabelValues(string(p.Kind), "ok").Inc()

	models := make([]Model, 0, len(infos))
	for _, info := range infos {
		models = append(models, Model{
			ID:          CanonicalModelID(p.Kind, info.ID),
			Kind:        p.Kind,
			ProviderID:  p.ID,
			Name:        info.ID,
			DisplayName: info.DisplayName,
			Endpoint:    p.Endpoint,
			Credential:  p.Credential,
		})
	}
	return models, nil
}

// persist writes the refreshed snapshot through the settings store.
// Persistence failures are logged and do not fail the refresh; the
// in-memory catalog is already current.
func (m *CatalogManager) persist(ctx context.Context, providers []Provider, models []Model, refreshedAt time.Time) {
	if m.store == nil {
		return
	}
	doc := ToSettings(providers, models, refreshedAt)
	if err := m.store.Save(ctx, doc); err != nil {
		observability.SettingsOpsTotal.WithLabelValues("save", "error").Inc()
		slog.Warn("persisting refreshed catalog failed", "error", err)
		return
	}
	observability.SettingsOpsTotal.WithLabelValues("save", "ok").Inc()
}
