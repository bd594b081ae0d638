package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/provider"
)

func TestListModels(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/v1/models")
	if resp.StatusCode != http.StatusOK {
		body := readBody(t, resp)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var list struct {
		Object      string           `json:"object"`
		Data        []provider.Model `json:"data"`
		RefreshedAt string           `json:"refreshed_at"`
	}
	decodeJSON(t, resp, &list)

	if list.Object != "list" {
		t.Errorf("object = %q, want list", list.Object)
	}
	if len(list.Data) != 2 {
		t.Fatalf("got %d models, want 2: %+v", len(list.Data), list.Data)
	}

	ids := map[string]bool{}
	for _, m := range list.Data {
		ids[m.ID] = true
		if m.ProviderID != "p1" {
			t.Errorf("model %s provider_id = %q, want p1", m.ID, m.ProviderID)
		}
		if m.Credential != "" {
			t.Errorf("model %s carries a credential in the public listing", m.ID)
		}
	}
	for _, want := range []string{"OpenAI/mock-small", "OpenAI/mock-large"} {
		if !ids[want] {
			t.Errorf("model %s missing from listing", want)
		}
	}
}

func TestRefreshModels(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/models/refresh", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		body := readBody(t, resp)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var outcome api.RefreshOutcome
	decodeJSON(t, resp, &outcome)

	if outcome.Status != api.RefreshAllSucceeded {
		t.Errorf("status = %q, want all-succeeded (failures: %+v)", outcome.Status, outcome.Failures)
	}
	if outcome.ModelCount != 2 {
		t.Errorf("model_count = %d, want 2", outcome.ModelCount)
	}
	if outcome.RefreshedAt.IsZero() {
		t.Error("refreshed_at is zero")
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"canonical identifier", "OpenAI/mock-small"},
		// The retired providerId:name form still resolves by provider
		// instance.
		{"legacy identifier", "p1:mock-small"},
		// Unknown labels default to the standard kind and match by name.
		{"drifted label", "Mock/mock-small"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, testEnv.BaseURL()+"/v1/models/resolve",
				map[string]any{"id": tt.id})
			if resp.StatusCode != http.StatusOK {
				body := readBody(t, resp)
				t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
			}

			var result struct {
				Model       provider.Model `json:"model"`
				CanonicalID string         `json:"canonical_id"`
			}
			decodeJSON(t, resp, &result)

			if result.CanonicalID != "OpenAI/mock-small" {
				t.Errorf("canonical_id = %q, want OpenAI/mock-small", result.CanonicalID)
			}
			if result.Model.Name != "mock-small" {
				t.Errorf("model name = %q, want mock-small", result.Model.Name)
			}
			if result.Model.Credential != "" {
				t.Error("resolved model carries a credential")
			}
		})
	}
}

func TestResolveUnknownModel(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/models/resolve",
		map[string]any{"id": "OpenAI/no-such-model"})
	if resp.StatusCode != http.StatusNotFound {
		body := readBody(t, resp)
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, body)
	}

	var errResp api.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error == nil || errResp.Error.Type != api.ErrorTypeModelNotFound {
		t.Errorf("error = %+v, want model_not_found", errResp.Error)
	}
}

func TestComplete(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/models/complete", map[string]any{
		"model":  "OpenAI/mock-small",
		"prompt": "Please count from 1 to 5",
	})
	if resp.StatusCode != http.StatusOK {
		body := readBody(t, resp)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	body := readBody(t, resp)
	if strings.Contains(body, "test-key") {
		t.Fatal("completion response leaks the provider credential")
	}

	var comp provider.Completion
	if err := json.Unmarshal([]byte(body), &comp); err != nil {
		t.Fatalf("decoding completion: %v", err)
	}

	if comp.Text != "1, 2, 3, 4, 5" {
		t.Errorf("text = %q, want the canned counting reply", comp.Text)
	}
	if comp.Usage.InputTokens != 4 || comp.Usage.OutputTokens != 7 || comp.Usage.TotalTokens != 11 {
		t.Errorf("usage = %+v, want 4/7/11", comp.Usage)
	}
	if !strings.HasSuffix(comp.Trace.URL, "/chat/completions") {
		t.Errorf("trace url = %q, want the completions endpoint", comp.Trace.URL)
	}
}

func TestCompleteUpstreamFailure(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/models/complete", map[string]any{
		"model":  "OpenAI/mock-small",
		"prompt": "please fail",
	})
	if resp.StatusCode != http.StatusBadGateway {
		body := readBody(t, resp)
		t.Fatalf("expected 502, got %d: %s", resp.StatusCode, body)
	}

	var errResp api.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error == nil {
		t.Fatal("error object is nil")
	}
	if errResp.Error.Type != api.ErrorTypeProviderHTTP {
		t.Errorf("error.type = %q, want %q", errResp.Error.Type, api.ErrorTypeProviderHTTP)
	}
	if errResp.Error.Status != http.StatusInternalServerError {
		t.Errorf("error.status = %d, want the upstream 500", errResp.Error.Status)
	}
	if !strings.Contains(errResp.Error.Message, "injected failure") {
		t.Errorf("error.message = %q, want the upstream message", errResp.Error.Message)
	}
}
