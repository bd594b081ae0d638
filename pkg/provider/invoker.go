package provider

import (
	"context"
	"encoding/json"
	"strings"
)

// Request is the common input for one completion call, independent of
// provider kind. Adapters translate it into their backend's envelope.
type Request struct {
	// Model is the provider-facing model name (Model.Name, not the
	// canonical identifier).
	Model string `json:"model"`

	// Prompt is the expanded user prompt.
	Prompt string `json:"prompt"`

	// SystemPrompt is optional framing text sent in the backend's
	// system position when non-empty.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens caps the completion length. Zero lets the adapter apply
	// its backend default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature is optional; nil omits it from the wire request.
	Temperature *float64 `json:"temperature,omitempty"`

	// Extra holds provider-specific parameters that don't map to
	// standard fields. Adapters pass them through untouched.
	Extra map[string]any `json:"-"`
}

// Usage holds normalized token accounting from a completion call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// RequestTrace is the sanitized record of the outbound HTTP request,
// retained for diagnostics. Headers have already passed through
// RedactHeaders; credentials never appear here.
type RequestTrace struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Completion is the normalized result of one completion call.
type Completion struct {
	// Text is the assistant's reply, concatenated across content blocks.
	Text string `json:"text"`

	// Usage is zero-valued when the backend reports no accounting.
	Usage Usage `json:"usage"`

	// Trace records the sanitized outbound request.
	Trace RequestTrace `json:"trace"`

	// Raw is the backend's response body, kept for diagnostics.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// ModelInfo describes one model reported by a provider's list call.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	OwnedBy     string `json:"owned_by,omitempty"`
}

// Invoker issues network calls against one provider endpoint. Adapters
// are cheap to construct; callers typically build one per call from a
// hydrated model and Close it afterwards.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Invoker interface {
	// Complete performs one completion call and normalizes the result.
	// A missing credential is reported before any network activity.
	// Cancelling ctx aborts the in-flight call; the returned error then
	// wraps the context's error rather than a generic transport error.
	Complete(ctx context.Context, req *Request) (*Completion, error)

	// ListModels returns the models this endpoint currently serves.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases transport resources.
	Close() error
}

// InvokerFactory builds an Invoker for a provider kind and endpoint.
// The catalog manager uses it for list-models calls during refresh; the
// completion path uses it with a hydrated model's values. Injected so
// the core stays free of adapter imports and tests can substitute stubs.
type InvokerFactory func(kind Kind, endpoint, credential string) (Invoker, error)

// sensitiveHeaders are the header names whose values never survive into
// traces or logs. Comparison is case-insensitive.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"x-api-key":           true,
	"api-key":             true,
	"cookie":              true,
}

// RedactHeaders returns a copy of headers with credential-bearing values
// replaced. The input map is not modified.
func RedactHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if sensitiveHeaders[strings.ToLower(name)] {
			out[name] = "[redacted]"
			continue
		}
		out[name] = value
	}
	return out
}
