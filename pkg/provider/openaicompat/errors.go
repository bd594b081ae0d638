package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/grothkopp/ainb/pkg/api"
)

// maxErrorBody caps how much of an error response body is retained for
// diagnostics.
const maxErrorBody = 4096

// MapHTTPError converts an HTTP response with a non-2xx status code into
// a provider error carrying the status and the (truncated) response
// body. When the body parses as a ChatErrorResponse, its message becomes
// the error message.
func MapHTTPError(resp *http.Response) *api.CoreError {
	body := readLimited(resp.Body)
	coreErr := api.NewProviderHTTPError(resp.StatusCode, body)
	if msg := ExtractErrorMessage(body); msg != "" {
		coreErr.Message = msg
	}
	return coreErr
}

// MapNetworkError converts a network-level error (connection refused,
// timeout, DNS resolution failure) into a server error with a
// descriptive message. Context cancellation is handled by callers before
// this mapping applies.
func MapNetworkError(err error) *api.CoreError {
	return api.NewServerError(fmt.Sprintf("provider connection error: %s", err.Error()))
}

// ExtractErrorMessage tries to parse an error body as a ChatErrorResponse
// and returns the backend's message if present.
func ExtractErrorMessage(body string) string {
	if body == "" {
		return ""
	}
	var errResp ChatErrorResponse
	if err := json.Unmarshal([]byte(body), &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return ""
}

// readLimited drains up to maxErrorBody bytes of the body as a trimmed
// string.
func readLimited(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
