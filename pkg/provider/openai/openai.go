// Package openai implements the provider.Invoker for OpenAI's platform
// API. HTTP communication is delegated to the shared openaicompat.Client.
package openai

import (
	"context"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/provider"
	"github.com/grothkopp/ainb/pkg/provider/openaicompat"
)

// DefaultBaseURL is used when no endpoint override is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// Config holds connection settings for the OpenAI API.
type Config struct {
	// BaseURL overrides the default endpoint when set.
	BaseURL string

	// APIKey is required; the platform rejects anonymous calls.
	APIKey string

	// Timeout bounds each HTTP call (default: 120s).
	Timeout time.Duration
}

// Invoker calls the OpenAI platform API.
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

	return &Invoker{
		cfg:    cfg,
		client: openaicompat.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout),
	}, nil
}

// Complete performs one completion call.
func (i *Invoker) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	return i.client.Complete(ctx, req)
}

// ListModels returns the models the account can access.
func (i *Invoker) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return i.client.ListModels(ctx)
}

// Close releases transport resources.
func (i *Invoker) Close() error {
	return i.client.Close()
}
