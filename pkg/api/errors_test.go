package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestCoreErrorInterface(t *testing.T) {
	var _ error = &CoreError{}
}

func TestCoreErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *CoreError
		want string
	}{
		{
			"with param",
			&CoreError{Type: ErrorTypeMissingCredential, Param: "OpenAI", Message: "no credential configured"},
			"missing_credential: no credential configured (param: OpenAI)",
		},
		{
			"without param",
			&CoreError{Type: ErrorTypeSandboxUnavailable, Message: "context not ready"},
			"sandbox_unavailable: context not ready",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("CoreError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *CoreError
		wantType  ErrorType
		wantParam string
	}{
		{"sandbox unavailable", NewSandboxUnavailableError("not ready"), ErrorTypeSandboxUnavailable, ""},
		{"execution", NewExecutionError("NameError: x"), ErrorTypeExecution, ""},
		{"stale reply", NewStaleReplyError("c1", 2, 3), ErrorTypeStaleReply, ""},
		{"missing credential", NewMissingCredentialError("Anthropic"), ErrorTypeMissingCredential, "Anthropic"},
		{"model not found", NewModelNotFoundError("OpenAI/gpt-4"), ErrorTypeModelNotFound, "OpenAI/gpt-4"},
		{"malformed state", NewMalformedStateError("bad json"), ErrorTypeMalformedState, ""},
		{"invalid request", NewInvalidRequestError("cell_id", "is required"), ErrorTypeInvalidRequest, "cell_id"},
		{"server error", NewServerError("internal failure"), ErrorTypeServer, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", tt.err.Type, tt.wantType)
			}
			if tt.err.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", tt.err.Param, tt.wantParam)
			}
		})
	}
}

func TestProviderHTTPError(t *testing.T) {
	err := NewProviderHTTPError(429, `{"error":"rate limited"}`)
	if err.Type != ErrorTypeProviderHTTP {
		t.Errorf("Type = %q, want %q", err.Type, ErrorTypeProviderHTTP)
	}
	if err.Status != 429 {
		t.Errorf("Status = %d, want 429", err.Status)
	}
	if err.Body != `{"error":"rate limited"}` {
		t.Errorf("Body = %q, want raw response body", err.Body)
	}
}

func TestAsCoreError(t *testing.T) {
	base := NewModelNotFoundError("x")
	wrapped := fmt.Errorf("resolve: %w", base)

	got, ok := AsCoreError(wrapped)
	if !ok {
		t.Fatal("AsCoreError(wrapped) = false, want true")
	}
	if got != base {
		t.Error("AsCoreError did not unwrap to the original error")
	}

	if _, ok := AsCoreError(errors.New("plain")); ok {
		t.Error("AsCoreError(plain) = true, want false")
	}
}

func TestIsType(t *testing.T) {
	err := fmt.Errorf("invoke: %w", NewMissingCredentialError("Custom"))
	if !IsType(err, ErrorTypeMissingCredential) {
		t.Error("IsType(err, missing_credential) = false, want true")
	}
	if IsType(err, ErrorTypeModelNotFound) {
		t.Error("IsType(err, model_not_found) = true, want false")
	}
	if IsType(nil, ErrorTypeServer) {
		t.Error("IsType(nil, server_error) = true, want false")
	}
}

func TestCoreErrorJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		err  *CoreError
	}{
		{"missing credential", NewMissingCredentialError("OpenAI")},
		{"provider http", NewProviderHTTPError(502, "upstream down")},
		{"model not found", NewModelNotFoundError("Custom/llama")},
		{"server error", NewServerError("internal")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.err)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}

			var got CoreError
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}

			if got.Type != tt.err.Type {
				t.Errorf("Type = %q, want %q", got.Type, tt.err.Type)
			}
			if got.Status != tt.err.Status {
				t.Errorf("Status = %d, want %d", got.Status, tt.err.Status)
			}
			if got.Message != tt.err.Message {
				t.Errorf("Message = %q, want %q", got.Message, tt.err.Message)
			}
		})
	}
}

func TestCoreErrorOmitEmpty(t *testing.T) {
	err := &CoreError{Type: ErrorTypeServer, Message: "fail"}
	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("Marshal: %v", marshalErr)
	}

	var m map[string]interface{}
	if unmarshalErr := json.Unmarshal(data, &m); unmarshalErr != nil {
		t.Fatalf("Unmarshal: %v", unmarshalErr)
	}

	if _, ok := m["param"]; ok {
		t.Error("empty param should be omitted from JSON")
	}
	if _, ok := m["status"]; ok {
		t.Error("zero status should be omitted from JSON")
	}
	if _, ok := m["body"]; ok {
		t.Error("empty body should be omitted from JSON")
	}
}
