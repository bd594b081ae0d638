// Package anthropic implements the provider.Invoker for Anthropic's
// Messages API. The API differs from the Chat Completions shape enough
// to warrant its own client: auth is an x-api-key header plus a pinned
// version header, the system prompt is a top-level field, and replies
// arrive as typed content blocks.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/debug"
	"github.com/grothkopp/ainb/pkg/provider"
)

const (
	// DefaultBaseURL is used when no endpoint override is configured.
	DefaultBaseURL = "https://api.anthropic.com/v1"

	// apiVersion is the pinned Messages API revision.
	apiVersion = "2023-06-01"

	// defaultMaxTokens applies when the request does not cap the
	// completion; the Messages API requires an explicit value.
	defaultMaxTokens = 4096

	maxErrorBody = 4096
)

// Config holds connection settings for the Anthropic API.
type Config struct {
	// BaseURL overrides the default endpoint when set.
	BaseURL string

	// APIKey is required.
	APIKey string

	// Timeout bounds each HTTP call (default: 120s).
	Timeout time.Duration
}

// Invoker calls the Anthropic Messages API.
type Invoker struct {
	cfg    Config
	client *http.Client
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
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Invoker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Complete performs one completion call against /messages.
func (i *Invoker) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	msgReq := &messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.SystemPrompt,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		Extra:       req.Extra,
	}
	if msgReq.MaxTokens == 0 {
		msgReq.MaxTokens = defaultMaxTokens
	}

	body, err := encodeBody(msgReq)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := i.cfg.BaseURL + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	headers := i.applyHeaders(httpReq)
	trace := provider.RequestTrace{
		Method:  http.MethodPost,
		URL:     url,
		Headers: provider.RedactHeaders(headers),
	}

	debug.Log("provider", "completion request", "url", url, "model", req.Model)
	debug.Raw("provider", string(body))

	httpResp, err := i.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, api.NewServerError(fmt.Sprintf("provider connection error: %s", err.Error()))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to read backend response: %s", err.Error()))
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(raw, &msgResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	var text strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	completion := &provider.Completion{
		Text:  text.String(),
		Trace: trace,
		Raw:   json.RawMessage(raw),
	}
	if msgResp.Usage != nil {
		completion.Usage = provider.Usage{
			InputTokens:  msgResp.Usage.InputTokens,
			OutputTokens: msgResp.Usage.OutputTokens,
			TotalTokens:  msgResp.Usage.InputTokens + msgResp.Usage.OutputTokens,
		}
	}

	return completion, nil
}

// ListModels returns the models the account can access.
func (i *Invoker) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	url := i.cfg.BaseURL + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	i.applyHeaders(httpReq)

	httpResp, err := i.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, api.NewServerError(fmt.Sprintf("provider connection error: %s", err.Error()))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var listResp modelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&listResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse models response: %s", err.Error()))
	}

	models := make([]provider.ModelInfo, 0, len(listResp.Data))
	for _, m := range listResp.Data {
		models = append(models, provider.ModelInfo{
			ID:          m.ID,
			DisplayName: m.DisplayName,
		})
	}

	return models, nil
}

// Close releases transport resources.
func (i *Invoker) Close() error {
	i.client.CloseIdleConnections()
	return nil
}

// applyHeaders sets the Messages API headers on the request and returns
// them as a map for tracing.
func (i *Invoker) applyHeaders(req *http.Request) map[string]string {
	headers := map[string]string{
		"Content-Type":      "application/json",
		"X-Api-Key":         i.cfg.APIKey,
		"Anthropic-Version": apiVersion,
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	return headers
}

// mapHTTPError converts a non-2xx response into a provider error
// carrying the status and the (truncated) response body. When the body
// parses as the Messages API error envelope, its message becomes the
// error message.
func mapHTTPError(resp *http.Response) *api.CoreError {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		data = nil
	}
	body := strings.TrimSpace(string(data))

	coreErr := api.NewProviderHTTPError(resp.StatusCode, body)
	var errResp errorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		coreErr.Message = errResp.Error.Message
	}
	return coreErr
}

// encodeBody marshals a messages request, merging Extra parameters into
// the payload. Typed fields win over Extra keys with the same name.
func encodeBody(req *messagesRequest) ([]byte, error) {
	base, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if len(req.Extra) == 0 {
		return base, nil
	}

	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range req.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
