// Package openrouter implements the provider.Invoker for the OpenRouter
// aggregator. OpenRouter speaks the Chat Completions protocol, so HTTP
// communication is delegated to the shared openaicompat.Client; the
// aggregator's optional attribution headers are layered on top.
package openrouter

import (
	"context"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/provider"
	"github.com/grothkopp/ainb/pkg/provider/openaicompat"
)

// DefaultBaseURL is used when no endpoint override is configured.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Config holds connection settings for OpenRouter.
type Config struct {
	// BaseURL overrides the default endpoint when set.
	BaseURL string

	// APIKey is required.
	APIKey string

	// Referer and Title are OpenRouter's optional app attribution
	// headers (HTTP-Referer, X-Title).
	Referer string
	Title   string

	// Timeout bounds each HTTP call (default: 120s).
	Timeout time.Duration
}

// Invoker calls the OpenRouter API.
type Invoker struct {
	cfg    Config
	client *openaicompat.Client
}

// Ensure Invoker implements provider.Invoker at compile time.
var _ provider.Invoker = (*Invoker)(nil)

// New creates a new Invoker with the given configuration. A missing
// credential fails here, before any network call is attempted.
func New(cfg Config) (*Invoker, error) {
	if cfg.APIKey == "" {
		return nil, api.NewMissingCredentialError("api_key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	client := openaicompat.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if cfg.Referer != "" || cfg.Title != "" {
		client.Headers = map[string]string{}
		if cfg.Referer != "" {
			client.Headers["HTTP-Referer"] = cfg.Referer
		}
		if cfg.Title != "" {
			client.Headers["X-Title"] = cfg.Title
		}
	}

	return &Invoker{cfg: cfg, client: client}, nil
}

// Complete performs one completion call. Model names keep their upstream
// vendor prefix ("meta/llama-3"); OpenRouter routes on it.
func (i *Invoker) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	return i.client.Complete(ctx, req)
}

// ListModels returns the aggregator's full model listing.
func (i *Invoker) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return i.client.ListModels(ctx)
}

// Close releases transport resources.
func (i *Invoker) Close() error {
	return i.client.Close()
}
