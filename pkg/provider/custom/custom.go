// Package custom implements the provider.Invoker for user-pointed
// OpenAI-compatible endpoints: local runtimes, proxies, self-hosted
// gateways. Unlike the hosted adapters it requires an endpoint and
// tolerates a missing credential, since local backends commonly run
// unauthenticated.
package custom

import (
	"context"
	"fmt"
	"time"

	"github.com/grothkopp/ainb/pkg/provider"
	"github.com/grothkopp/ainb/pkg/provider/openaicompat"
)

// Config holds connection settings for a custom backend.
type Config struct {
	// BaseURL is required; there is no sensible default for an endpoint
	// only the user knows about.
	BaseURL string

	// APIKey is optional. When set it is sent as a bearer token.
	APIKey string

	// Timeout bounds each HTTP call (default: 120s).
	Timeout time.Duration
}

// Invoker calls an OpenAI-compatible custom backend.
type Invoker struct {
	cfg    Config
	client *openaicompat.Client
}

// Ensure Invoker implements provider.Invoker at compile time.
var _ provider.Invoker = (*Invoker)(nil)

// New creates a new Invoker with the given configuration.
func New(cfg Config) (*Invoker, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("custom: BaseURL is required")
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

// ListModels returns the models the backend currently serves.
func (i *Invoker) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return i.client.ListModels(ctx)
}

// Close releases transport resources.
func (i *Invoker) Close() error {
	return i.client.Close()
}
