package registry

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes returned by registries in the OCI error body.
const (
	ErrCodeBlobUnknown     = "BLOB_UNKNOWN"
	ErrCodeManifestUnknown = "MANIFEST_UNKNOWN"
	ErrCodeNameUnknown     = "NAME_UNKNOWN"
	ErrCodeUnsupported     = "UNSUPPORTED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeDenied          = "DENIED"
)

// ErrInvalidReference is returned for malformed repository names, tags or digests.
var ErrInvalidReference = errors.New("invalid reference")

// ErrorDescriptor is one entry of an OCI registry error response.
type ErrorDescriptor struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

func (e ErrorDescriptor) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// errorResponse is the OCI-compliant error body.
type errorResponse struct {
	Errors []ErrorDescriptor `json:"errors"`
}

// TransportError is returned by every client operation that failed on the
// network or received a non-success status from the registry.
type TransportError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int // 0 when no response was received
	Errors     []ErrorDescriptor
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	msg := fmt.Sprintf("%s: registry returned %d", e.Op, e.StatusCode)
	switch {
	case len(e.Errors) > 0:
		parts := make([]string, 0, len(e.Errors))
		for _, d := range e.Errors {
			parts = append(parts, d.Error())
		}
		msg += ": " + strings.Join(parts, "; ")
	case e.Body != "":
		msg += ": " + e.Body
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsNotFound reports whether the registry answered 404.
func (e *TransportError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// HasCode reports whether the registry error body contains the given code.
func (e *TransportError) HasCode(code string) bool {
	for _, d := range e.Errors {
		if d.Code == code {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is a TransportError for a 404 response.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.IsNotFound()
}
