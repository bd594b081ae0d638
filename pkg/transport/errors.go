package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/grothkopp/ainb/pkg/api"
)

// HTTPStatusFromError maps a CoreError type to the corresponding HTTP
// status code. Provider failures are gateway errors: the upstream
// status travels inside the error body, not on the response line.
func HTTPStatusFromError(err *api.CoreError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest, api.ErrorTypeMissingCredential:
		return http.StatusBadRequest
	case api.ErrorTypeModelNotFound:
		return http.StatusNotFound
	case api.ErrorTypeProviderHTTP:
		return http.StatusBadGateway
	case api.ErrorTypeSandboxUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error response using the
// ErrorResponse wrapper format from pkg/api. It sets the Content-Type
// header and writes the HTTP status code.
func WriteErrorResponse(w http.ResponseWriter, coreErr *api.CoreError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: coreErr})
}

// WriteError writes an error response, unwrapping to a CoreError when
// one is in the chain and deriving the HTTP status from its type.
// Errors without a CoreError in the chain become server errors.
func WriteError(w http.ResponseWriter, err error) {
	var coreErr *api.CoreError
	if !errors.As(err, &coreErr) {
		coreErr = api.NewServerError(err.Error())
	}
	WriteErrorResponse(w, coreErr, HTTPStatusFromError(coreErr))
}
