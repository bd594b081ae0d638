// Command mock-provider runs a deterministic stand-in for every
// provider kind the server can talk to, for integration tests and local
// development without real credentials.
//
// It serves the Chat Completions protocol (standard-a, aggregator and
// custom kinds) and the Messages protocol (standard-b) side by side,
// with and without the /v1 prefix so either endpoint style works:
//
//	POST /chat/completions, /v1/chat/completions
//	POST /messages,         /v1/messages
//	GET  /models,           /v1/models
//	GET  /healthz
//
// Flags:
//
//	-port n               listen port (default 9090)
//	-delay d              artificial latency before every response
//	-fail-completions n   force HTTP status n on completion endpoints
//	-fail-models n        force HTTP status n on model listings
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := flag.Int("port", 9090, "listen port")
	delay := flag.Duration("delay", 0, "artificial latency before every response")
	failCompletions := flag.Int("fail-completions", 0, "force this HTTP status on completion endpoints (0 = off)")
	failModels := flag.Int("fail-models", 0, "force this HTTP status on model listings (0 = off)")
	flag.Parse()

	m := &mockProvider{
		delay:           *delay,
		failCompletions: *failCompletions,
		failModels:      *failModels,
	}

	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/v1"} {
		mux.HandleFunc("POST "+prefix+"/chat/completions", m.handleChatCompletions)
		mux.HandleFunc("POST "+prefix+"/messages", m.handleMessages)
		mux.HandleFunc("GET "+prefix+"/models", m.handleModels)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock provider starting", "port", *port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock provider failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock provider shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

type mockProvider struct {
	delay           time.Duration
	failCompletions int
	failModels      int
}

// --- Chat Completions protocol ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (m *mockProvider) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	m.pause()
	if m.failCompletions != 0 {
		writeStatus(w, m.failCompletions, `{"error":{"message":"injected failure","type":"server_error"}}`)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`)
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-small"
	}
	text := cannedReply(lastUserMessage(req.Messages))

	writeJSON(w, chatResponse{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      chatMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})
}

// --- Messages protocol ---

type messagesRequest struct {
	Model    string        `json:"model"`
	System   string        `json:"system"`
	Messages []chatMessage `json:"messages"`
}

type messagesResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Model      string          `json:"model"`
	Content    []contentBlock  `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      anthropicsUsage `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicsUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (m *mockProvider) handleMessages(w http.ResponseWriter, r *http.Request) {
	m.pause()
	if m.failCompletions != 0 {
		writeStatus(w, m.failCompletions, `{"type":"error","error":{"type":"api_error","message":"injected failure"}}`)
		return
	}

	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"invalid request"}}`)
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-large"
	}
	text := cannedReply(lastUserMessage(req.Messages))

	writeJSON(w, messagesResponse{
		ID:         "msg-mock",
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    []contentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropicsUsage{InputTokens: 10, OutputTokens: 5},
	})
}

// --- Model listing ---

// mockModel carries the union of both protocols' listing fields, so one
// payload satisfies either client.
type mockModel struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	Type        string `json:"type"`
	OwnedBy     string `json:"owned_by"`
	DisplayName string `json:"display_name"`
}

func (m *mockProvider) handleModels(w http.ResponseWriter, r *http.Request) {
	m.pause()
	if m.failModels != 0 {
		writeStatus(w, m.failModels, `{"error":{"message":"injected failure","type":"server_error"}}`)
		return
	}

	writeJSON(w, map[string]any{
		"object": "list",
		"data": []mockModel{
			{ID: "mock-small", Object: "model", Type: "model", OwnedBy: "mock", DisplayName: "Mock Small"},
			{ID: "mock-large", Object: "model", Type: "model", OwnedBy: "mock", DisplayName: "Mock Large"},
		},
		"has_more": false,
	})
}

// --- Helpers ---

// cannedReply picks the deterministic response for a prompt.
func cannedReply(prompt string) string {
	if strings.Contains(strings.ToLower(prompt), "count from 1 to 5") {
		return "1, 2, 3, 4, 5"
	}
	return "Hello, nice day!"
}

func lastUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func (m *mockProvider) pause() {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
