package api

import (
	"errors"
	"fmt"
)

// ErrorType categorizes an execution-core error.
type ErrorType string

const (
	// ErrorTypeSandboxUnavailable: an isolated execution context could
	// not be created or dispatched to. Reported as a cell error; the
	// run resolves with an error outcome instead of failing the caller.
	ErrorTypeSandboxUnavailable ErrorType = "sandbox_unavailable"
	// ErrorTypeExecution: the sandboxed code itself faulted.
	ErrorTypeExecution ErrorType = "execution_error"
	// ErrorTypeStaleReply: a reply arrived for a superseded generation.
	// Internal only; dropped silently and never attached to cell state.
	ErrorTypeStaleReply ErrorType = "stale_reply_discarded"
	// ErrorTypeMissingCredential: a provider call was attempted without
	// a configured credential. Raised before any network activity.
	ErrorTypeMissingCredential ErrorType = "missing_credential"
	// ErrorTypeProviderHTTP: a provider returned a non-2xx response.
	ErrorTypeProviderHTTP ErrorType = "provider_http_error"
	// ErrorTypeModelNotFound: identifier resolution exhausted all tiers.
	ErrorTypeModelNotFound ErrorType = "model_not_found"
	// ErrorTypeMalformedState: persisted settings could not be decoded.
	// Recovered with defaults and logged; never surfaced to users.
	ErrorTypeMalformedState ErrorType = "malformed_persisted_state"
	// ErrorTypeInvalidRequest: a caller-supplied parameter is invalid.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	// ErrorTypeServer: an internal failure with no more specific type.
	ErrorTypeServer ErrorType = "server_error"
)

// CoreError is the structured error shared across the execution core.
// Status and Body are populated only for provider HTTP errors.
type CoreError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`
	Body    string    `json:"body,omitempty"`
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps a CoreError for JSON serialization as the
// top-level error response.
type ErrorResponse struct {
	Error *CoreError `json:"error"`
}

// AsCoreError unwraps err to a *CoreError if one is in the chain.
func AsCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsType reports whether err carries a CoreError of the given type.
func IsType(err error, t ErrorType) bool {
	ce, ok := AsCoreError(err)
	return ok && ce.Type == t
}

// NewSandboxUnavailableError creates a CoreError for a context that
// could not be created or dispatched to.
func NewSandboxUnavailableError(message string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeSandboxUnavailable,
		Message: message,
	}
}

// NewExecutionError creates a CoreError for a fault inside the
// isolated execution context.
func NewExecutionError(message string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeExecution,
		Message: message,
	}
}

// NewStaleReplyError creates the internal CoreError recorded when a
// reply for a superseded generation is discarded.
func NewStaleReplyError(cellID CellID, got, want uint64) *CoreError {
	return &CoreError{
		Type:    ErrorTypeStaleReply,
		Message: fmt.Sprintf("cell %s: reply generation %d, current %d", cellID, got, want),
	}
}

// NewMissingCredentialError creates a CoreError for a provider call
// attempted without a credential. Param names the provider.
func NewMissingCredentialError(param string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeMissingCredential,
		Param:   param,
		Message: "no credential configured",
	}
}

// NewProviderHTTPError creates a CoreError for a non-2xx provider
// response, retaining status and body for diagnostics.
func NewProviderHTTPError(status int, body string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeProviderHTTP,
		Message: fmt.Sprintf("provider returned status %d", status),
		Status:  status,
		Body:    body,
	}
}

// NewModelNotFoundError creates a CoreError for an identifier that
// resolution could not match against the catalog.
func NewModelNotFoundError(id string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeModelNotFound,
		Param:   id,
		Message: "no catalog entry matches identifier",
	}
}

// NewMalformedStateError creates a CoreError for persisted settings
// that could not be decoded or migrated.
func NewMalformedStateError(message string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeMalformedState,
		Message: message,
	}
}

// NewInvalidRequestError creates a CoreError for invalid request
// parameters.
func NewInvalidRequestError(param, message string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewServerError creates a CoreError for internal failures.
func NewServerError(message string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeServer,
		Message: message,
	}
}
