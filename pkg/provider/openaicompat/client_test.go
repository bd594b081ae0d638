package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/provider"
)

func TestClient_Complete_TextResponse(t *testing.T) {
	chatResp := ChatCompletionResponse{
		ID:    "chatcmpl-test-123",
		Model: "test-model",
		Choices: []ChatChoice{
			{
				Index: 0,
				Message: ChatMessage{
					Role:    "assistant",
					Content: "Hello! How can I help you today?",
				},
				FinishReason: "stop",
			},
		},
		Usage: &ChatUsage{
			PromptTokens:     12,
			CompletionTokens: 9,
			TotalTokens:      21,
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer test-key-123" {
			t.Errorf("expected Authorization header, got %q", r.Header.Get("Authorization"))
		}

		var chatReq ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if chatReq.Model != "test-model" {
			t.Errorf("expected model %q, got %q", "test-model", chatReq.Model)
		}
		if len(chatReq.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(chatReq.Messages))
		}
		if chatReq.Messages[0].Role != "system" || chatReq.Messages[0].Content != "You are helpful." {
			t.Errorf("unexpected system message: %+v", chatReq.Messages[0])
		}
		if chatReq.Messages[1].Role != "user" || chatReq.Messages[1].Content != "Hello" {
			t.Errorf("unexpected user message: %+v", chatReq.Messages[1])
		}
		if chatReq.MaxTokens == nil || *chatReq.MaxTokens != 256 {
			t.Errorf("expected max_tokens 256, got %v", chatReq.MaxTokens)
		}
		if chatReq.Temperature == nil || *chatReq.Temperature != 0.7 {
			t.Errorf("expected temperature 0.7, got %v", chatReq.Temperature)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key-123", 0)
	defer c.Close()

	temp := 0.7
	resp, err := c.Complete(context.Background(), &provider.Request{
		Model:        "test-model",
		Prompt:       "Hello",
		SystemPrompt: "You are helpful.",
		MaxTokens:    256,
		Temperature:  &temp,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != "Hello! How can I help you today?" {
		t.Errorf("text = %q, want the assistant reply", resp.Text)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 9 || resp.Usage.TotalTokens != 21 {
		t.Errorf("usage = %+v, want 12/9/21", resp.Usage)
	}
	if len(resp.Raw) == 0 {
		t.Error("expected the raw response body to be retained")
	}
}

func TestClient_Complete_TraceRedactsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []ChatChoice{{Message: ChatMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-super-secret", 0)
	defer c.Close()

	resp, err := c.Complete(context.Background(), &provider.Request{Model: "m", Prompt: "Hi"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Trace.Method != http.MethodPost {
		t.Errorf("trace method = %q, want POST", resp.Trace.Method)
	}
	if resp.Trace.URL != srv.URL+"/chat/completions" {
		t.Errorf("trace url = %q, want %q", resp.Trace.URL, srv.URL+"/chat/completions")
	}
	if got := resp.Trace.Headers["Authorization"]; got != "[redacted]" {
		t.Errorf("trace Authorization = %q, want redacted", got)
	}
	if strings.Contains(resp.Trace.Headers["Authorization"], "sk-super-secret") {
		t.Error("credential leaked into the trace")
	}
	if resp.Trace.Headers["Content-Type"] != "application/json" {
		t.Errorf("trace Content-Type = %q, want passed through", resp.Trace.Headers["Content-Type"])
	}
}

func TestClient_Complete_ExtraParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if payload["top_p"] != 0.9 {
			t.Errorf("top_p = %v, want 0.9", payload["top_p"])
		}
		// A colliding Extra key must not override the typed field.
		if payload["model"] != "real-model" {
			t.Errorf("model = %v, want the typed value", payload["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []ChatChoice{{Message: ChatMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	defer c.Close()

	_, err := c.Complete(context.Background(), &provider.Request{
		Model:  "real-model",
		Prompt: "Hi",
		Extra: map[string]any{
			"top_p": 0.9,
			"model": "evil-model",
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
}

func TestClient_Complete_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "rate limited",
				"type":    "rate_limit_error",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	defer c.Close()

	_, err := c.Complete(context.Background(), &provider.Request{Model: "m", Prompt: "Hi"})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}

	coreErr, ok := api.AsCoreError(err)
	if !ok {
		t.Fatalf("expected *api.CoreError, got %T", err)
	}
	if coreErr.Type != api.ErrorTypeProviderHTTP {
		t.Errorf("error type = %q, want %q", coreErr.Type, api.ErrorTypeProviderHTTP)
	}
	if coreErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", coreErr.Status)
	}
	if coreErr.Message != "rate limited" {
		t.Errorf("message = %q, want the backend's message", coreErr.Message)
	}
	if !strings.Contains(coreErr.Body, "rate_limit_error") {
		t.Errorf("body = %q, want the raw error body retained", coreErr.Body)
	}
}

func TestClient_Complete_UnparseableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream gone"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	defer c.Close()

	_, err := c.Complete(context.Background(), &provider.Request{Model: "m", Prompt: "Hi"})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}

	coreErr, ok := api.AsCoreError(err)
	if !ok {
		t.Fatalf("expected *api.CoreError, got %T", err)
	}
	if coreErr.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", coreErr.Status)
	}
	if coreErr.Message != "provider returned status 502" {
		t.Errorf("message = %q, want the generic status message", coreErr.Message)
	}
	if coreErr.Body != "upstream gone" {
		t.Errorf("body = %q, want the raw text", coreErr.Body)
	}
}

func TestClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatCompletionResponse{ID: "empty"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	defer c.Close()

	_, err := c.Complete(context.Background(), &provider.Request{Model: "m", Prompt: "Hi"})
	if err == nil {
		t.Fatal("expected error for a response without choices")
	}
	if !api.IsType(err, api.ErrorTypeServer) {
		t.Errorf("error type = %v, want server error", err)
	}
}

func TestClient_Complete_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect;
		// otherwise r.Context() is never cancelled and Close deadlocks.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Complete(ctx, &provider.Request{Model: "m", Prompt: "Hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestClient_Complete_ConnectionRefused(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", time.Second)
	defer c.Close()

	_, err := c.Complete(context.Background(), &provider.Request{Model: "m", Prompt: "Hi"})
	if err == nil {
		t.Fatal("expected error for connection refused")
	}
	if !api.IsType(err, api.ErrorTypeServer) {
		t.Errorf("error type = %v, want server error", err)
	}
}

func TestClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/models" {
			t.Errorf("expected path /models, got %s", r.URL.Path)
		}

		resp := ChatModelsResponse{
			Object: "list",
			Data: []ChatModel{
				{ID: "meta-llama/Llama-3-8B", Object: "model", OwnedBy: "meta"},
				{ID: "mistral-7b", Object: "model", OwnedBy: "mistral"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	defer c.Close()

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].ID != "meta-llama/Llama-3-8B" || models[0].OwnedBy != "meta" {
		t.Errorf("models[0] = %+v, want meta-llama/Llama-3-8B owned by meta", models[0])
	}
}

func TestClient_ListModels_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "wrong-key", 0)
	defer c.Close()

	_, err := c.ListModels(context.Background())
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	coreErr, ok := api.AsCoreError(err)
	if !ok {
		t.Fatalf("expected *api.CoreError, got %T", err)
	}
	if coreErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", coreErr.Status)
	}
}

func TestClient_TrailingSlashBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("expected path /v1/models, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatModelsResponse{Object: "list"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", "", 0)
	defer c.Close()

	if _, err := c.ListModels(context.Background()); err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
}

func TestExtractErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"chat error envelope", `{"error":{"message":"bad key","type":"auth"}}`, "bad key"},
		{"empty body", "", ""},
		{"not json", "gateway timeout", ""},
		{"json without envelope", `{"detail":"nope"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractErrorMessage(tt.body); got != tt.want {
				t.Errorf("ExtractErrorMessage(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}
