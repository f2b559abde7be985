package registry

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4096

// handleHTTPError reads the response body and returns a TransportError
// for non-success HTTP responses from registry APIs.
func handleHTTPError(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	te := &TransportError{
		Op:         operation,
		StatusCode: resp.StatusCode,
	}
	if resp.Request != nil {
		te.Method = resp.Request.Method
		te.URL = resp.Request.URL.String()
	}

	var errResp errorResponse
	if len(body) > 0 && json.Unmarshal(body, &errResp) == nil && len(errResp.Errors) > 0 {
		te.Errors = errResp.Errors
	} else {
		te.Body = strings.TrimSpace(string(body))
	}
	return te
}

// isSuccess reports whether the status code is in the 2xx range.
func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
