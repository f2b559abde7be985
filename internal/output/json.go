// Package output defines the JSON envelope shared by the HTTP API and the
// CLI's --json mode.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Version is the regview version, overridden at build time with
// -ldflags "-X github.com/chis/regview/internal/output.Version=...".
var Version = "dev"

// Response is the envelope around every API and --json CLI result.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"` // RFC3339, UTC
	Version   string      `json:"version"`
}

func newResponse(success bool, data interface{}, errMsg string) Response {
	return Response{
		Success:   success,
		Data:      data,
		Error:     errMsg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}
}

// SuccessResponse creates a successful response with data
func SuccessResponse(data interface{}) Response {
	return newResponse(true, data, "")
}

// ErrorResponse creates an error response
func ErrorResponse(err error) Response {
	return newResponse(false, nil, err.Error())
}

// ErrorMessageResponse creates an error response from a string message
func ErrorMessageResponse(message string) Response {
	return newResponse(false, nil, message)
}

// ErrorResponseWithData creates an error response that still carries data,
// e.g. a snapshot whose refresh degraded.
func ErrorResponseWithData(err error, data interface{}) Response {
	return newResponse(false, data, err.Error())
}

// WriteJSON writes a Response as indented JSON to the given writer
func WriteJSON(w io.Writer, response Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// WriteJSONData wraps data in a success response and writes it
func WriteJSONData(w io.Writer, data interface{}) error {
	return WriteJSON(w, SuccessResponse(data))
}

// WriteJSONError wraps an error in a response and writes it
func WriteJSONError(w io.Writer, err error) error {
	return WriteJSON(w, ErrorResponse(err))
}

// WriteJSONErrorWithData writes an error response that includes data
func WriteJSONErrorWithData(w io.Writer, err error, data interface{}) error {
	return WriteJSON(w, ErrorResponseWithData(err, data))
}
