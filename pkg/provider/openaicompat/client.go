package openaicompat

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

// Client performs HTTP requests against an OpenAI-compatible Chat
// Completions backend.
//
// Invoker adapters embed this Client and delegate their Complete and
// ListModels calls to it.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// Headers holds extra headers sent with every request (e.g. an
	// aggregator's attribution headers). Values are subject to the same
	// redaction as standard headers when traced.
	Headers map[string]string
}

// NewClient creates a new Client for an OpenAI-compatible backend.
// baseURL includes the version prefix ("https://api.openai.com/v1").
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	// Normalize: remove trailing slash from base URL.
	baseURL = strings.TrimRight(baseURL, "/")

	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Complete performs one completion call against the Chat Completions
// endpoint and normalizes the result.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Completion, error) {
	chatReq := &ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Extra:       req.Extra,
	}
	if req.SystemPrompt != "" {
		chatReq.Messages = append(chatReq.Messages, ChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	chatReq.Messages = append(chatReq.Messages, ChatMessage{Role: "user", Content: req.Prompt})
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = &req.MaxTokens
	}

	body, err := encodeBody(chatReq)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	headers := c.applyHeaders(httpReq)
	trace := provider.RequestTrace{
		Method:  http.MethodPost,
		URL:     url,
		Headers: provider.RedactHeaders(headers),
	}

	debug.Log("provider", "completion request", "url", url, "model", req.Model)
	debug.Raw("provider", string(body))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// A cancelled call resolves with the context's error, not a
		// generic transport error.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	raw, err := decodeRaw(httpResp, &chatResp)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	if len(chatResp.Choices) == 0 {
		return nil, api.NewServerError("backend returned no choices")
	}

	completion := &provider.Completion{
		Text:  chatResp.Choices[0].Message.Content,
		Trace: trace,
		Raw:   raw,
	}
	if chatResp.Usage != nil {
		completion.Usage = provider.Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:  chatResp.Usage.TotalTokens,
		}
	}

	return completion, nil
}

// ListModels returns available models from the backend by querying the
// /models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	url := c.baseURL + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	c.applyHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var modelsResp ChatModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse models response: %s", err.Error()))
	}

	models := make([]provider.ModelInfo, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		models = append(models, provider.ModelInfo{
			ID:      m.ID,
			OwnedBy: m.OwnedBy,
		})
	}

	return models, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// applyHeaders sets the standard and extra headers on the request and
// returns them as a map for tracing.
func (c *Client) applyHeaders(req *http.Request) map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	for name, value := range c.Headers {
		headers[name] = value
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	return headers
}

// encodeBody marshals a chat request, merging Extra parameters into the
// payload. Typed fields win over Extra keys with the same name.
func encodeBody(req *ChatCompletionRequest) ([]byte, error) {
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

// decodeRaw reads the full response body, returning it alongside the
// decoded value so callers can retain the raw payload for diagnostics.
func decodeRaw(resp *http.Response, v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.NewDecoder(io.TeeReader(resp.Body, &buf)).Decode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}
