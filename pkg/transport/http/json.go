package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/transport"
)

// listResponse is the standard list envelope.
type listResponse struct {
	Object string `json:"object"`
	Data   any    `json:"data"`
}

// readJSON decodes the request body into dst, enforcing the content
// type and the body size limit. On failure it writes the error response
// and reports false.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return s.decodeJSON(w, r, dst, false)
}

// readOptionalJSON is readJSON for endpoints whose body may be empty.
// An empty body leaves dst untouched.
func (s *Server) readOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return s.decodeJSON(w, r, dst, true)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	if allowEmpty && errors.Is(err, io.EOF) {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", s.config.MaxBodySize)),
			http.StatusRequestEntityTooLarge,
		)
		return false
	}
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
		http.StatusBadRequest,
	)
	return false
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
