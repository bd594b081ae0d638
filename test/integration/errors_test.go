package integration

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/grothkopp/ainb/pkg/api"
)

// decodeError decodes the error envelope and fails the test when the
// error object is missing.
func decodeError(t *testing.T, resp *http.Response) *api.CoreError {
	t.Helper()
	var errResp api.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error == nil {
		t.Fatal("error object is nil")
	}
	return errResp.Error
}

func TestInvalidJSON(t *testing.T) {
	req, err := http.NewRequest(http.MethodPut,
		testEnv.BaseURL()+"/v1/cells/bad-json",
		bytes.NewReader([]byte(`{invalid json`)))
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != http.StatusBadRequest {
		body := readBody(t, resp)
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	coreErr := decodeError(t, resp)
	if coreErr.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error.type = %q, want %q", coreErr.Type, api.ErrorTypeInvalidRequest)
	}
}

func TestRunUnknownCell(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/cells/no-such-cell/run", nil)
	if resp.StatusCode != http.StatusNotFound {
		body := readBody(t, resp)
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, body)
	}
	coreErr := decodeError(t, resp)
	if !strings.Contains(coreErr.Message, "no-such-cell") {
		t.Errorf("error.message = %q, want it to name the cell", coreErr.Message)
	}
}

func TestPutCellIDMismatch(t *testing.T) {
	resp := putJSON(t, testEnv.BaseURL()+"/v1/cells/path-id", api.Cell{
		ID:   "body-id",
		Kind: api.CellKindCode,
	})
	if resp.StatusCode != http.StatusBadRequest {
		body := readBody(t, resp)
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	coreErr := decodeError(t, resp)
	if coreErr.Param != "id" {
		t.Errorf("error.param = %q, want id", coreErr.Param)
	}
}

func TestPutCellUnknownKind(t *testing.T) {
	resp := putJSON(t, testEnv.BaseURL()+"/v1/cells/bad-kind", map[string]any{
		"kind":   "graph",
		"source": "",
	})
	if resp.StatusCode != http.StatusBadRequest {
		body := readBody(t, resp)
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	coreErr := decodeError(t, resp)
	if coreErr.Param != "kind" {
		t.Errorf("error.param = %q, want kind", coreErr.Param)
	}
}

func TestScheduleNegativeDelay(t *testing.T) {
	putCell(t, api.Cell{ID: "sched-neg", Kind: api.CellKindCode, Source: "x"})

	resp := postJSON(t, testEnv.BaseURL()+"/v1/cells/sched-neg/schedule",
		map[string]any{"delay_ms": -10})
	if resp.StatusCode != http.StatusBadRequest {
		body := readBody(t, resp)
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	coreErr := decodeError(t, resp)
	if coreErr.Param != "delay_ms" {
		t.Errorf("error.param = %q, want delay_ms", coreErr.Param)
	}
}

func TestResolveEmptyID(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/models/resolve", map[string]any{"id": ""})
	if resp.StatusCode != http.StatusBadRequest {
		body := readBody(t, resp)
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	decodeError(t, resp)
}

func TestCompleteMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		param string
	}{
		{"missing model", map[string]any{"prompt": "hi"}, "model"},
		{"missing prompt", map[string]any{"model": "OpenAI/mock-small"}, "prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, testEnv.BaseURL()+"/v1/models/complete", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				body := readBody(t, resp)
				t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
			}
			coreErr := decodeError(t, resp)
			if coreErr.Param != tt.param {
				t.Errorf("error.param = %q, want %q", coreErr.Param, tt.param)
			}
		})
	}
}

func TestCompleteUnknownModel(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/v1/models/complete", map[string]any{
		"model":  "Anthropic/never-refreshed",
		"prompt": "hi",
	})
	if resp.StatusCode != http.StatusNotFound {
		body := readBody(t, resp)
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, body)
	}
	coreErr := decodeError(t, resp)
	if coreErr.Type != api.ErrorTypeModelNotFound {
		t.Errorf("error.type = %q, want %q", coreErr.Type, api.ErrorTypeModelNotFound)
	}
}
