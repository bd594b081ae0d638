package http

import (
	"net/http"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/observability"
	"github.com/grothkopp/ainb/pkg/provider"
	"github.com/grothkopp/ainb/pkg/transport"
)

// modelListResponse is the body of GET /v1/models. RefreshedAt is the
// zero time when the catalog has never been refreshed.
type modelListResponse struct {
	Object      string           `json:"object"`
	Data        []provider.Model `json:"data"`
	RefreshedAt time.Time        `json:"refreshed_at"`
}

// handleListModels handles GET /v1/models.
func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	models, refreshedAt := s.deps.Catalog.Snapshot()
	for i := range models {
		models[i] = publicModel(models[i])
	}
	writeJSON(w, http.StatusOK, modelListResponse{
		Object:      "list",
		Data:        models,
		RefreshedAt: refreshedAt,
	})
}

// refreshRequest is the optional body of POST /v1/models/refresh. A
// non-nil provider list replaces the registry before the refresh; this
// is how settings saves push new provider configuration.
type refreshRequest struct {
	Providers []provider.Provider `json:"providers"`
}

// handleRefreshModels handles POST /v1/models/refresh. The outcome is
// always 200; its status field carries the refresh summary, including
// skipped when another refresh was already in flight.
func (s *Server) handleRefreshModels(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.readOptionalJSON(w, r, &req) {
		return
	}
	outcome := s.deps.Manager.Refresh(r.Context(), req.Providers)
	writeJSON(w, http.StatusOK, outcome)
}

type resolveRequest struct {
	ID string `json:"id"`
}

type resolveResponse struct {
	Model       provider.Model `json:"model"`
	CanonicalID string         `json:"canonical_id"`
}

// handleResolveModel handles POST /v1/models/resolve: it maps a stored
// model identifier onto the current catalog without invoking anything.
func (s *Server) handleResolveModel(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "model identifier must not be empty"),
			http.StatusBadRequest,
		)
		return
	}

	model, err := s.deps.Resolver.Resolve(req.ID)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Model:       publicModel(model),
		CanonicalID: provider.CanonicalModelID(model.Kind, model.Name),
	})
}

// completeRequest is the body of POST /v1/models/complete.
type completeRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	System      string   `json:"system,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// handleComplete handles POST /v1/models/complete: one direct
// completion call against a resolved model, outside any cell.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.Model == "" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("model", "model identifier must not be empty"),
			http.StatusBadRequest,
		)
		return
	}
	if req.Prompt == "" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("prompt", "prompt must not be empty"),
			http.StatusBadRequest,
		)
		return
	}

	model, err := s.deps.Resolver.Hydrate(req.Model)
	if err != nil {
		transport.WriteError(w, err)
		return
	}

	invoker, err := s.deps.Invokers(model.Kind, model.Endpoint, model.Credential)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	defer invoker.Close()

	start := time.Now()
	comp, err := invoker.Complete(r.Context(), &provider.Request{
		Model:        model.Name,
		Prompt:       req.Prompt,
		SystemPrompt: req.System,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	})
	observability.ProviderLatency.WithLabelValues(string(model.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		status := "error"
		if r.Context().Err() != nil {
			status = "cancelled"
		}
		observability.ProviderRequestsTotal.WithLabelValues(string(model.Kind), status).Inc()
		transport.WriteError(w, err)
		return
	}
	observability.ProviderRequestsTotal.WithLabelValues(string(model.Kind), "ok").Inc()

	writeJSON(w, http.StatusOK, comp)
}

// publicModel strips the credential before a model leaves the server.
func publicModel(m provider.Model) provider.Model {
	m.Credential = ""
	return m
}
