package api

import (
	"errors"
	"net/http"

	"github.com/chis/regview/internal/imageinfo"
	"github.com/chis/regview/internal/output"
	"github.com/chis/regview/internal/registry"
)

// RespondError writes an error response with the specified HTTP status code.
// This is the unified error response function - prefer using this over specific status functions.
func RespondError(w http.ResponseWriter, statusCode int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	output.WriteJSONError(w, err)
}

// RespondBadRequest writes a 400 Bad Request error response
func RespondBadRequest(w http.ResponseWriter, err error) {
	RespondError(w, http.StatusBadRequest, err)
}

// RespondNotFound writes a 404 Not Found error response
func RespondNotFound(w http.ResponseWriter, err error) {
	RespondError(w, http.StatusNotFound, err)
}

// RespondInternalError writes a 500 Internal Server Error response
func RespondInternalError(w http.ResponseWriter, err error) {
	RespondError(w, http.StatusInternalServerError, err)
}

// RespondSuccess writes a 200 OK response with data
func RespondSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	output.WriteJSONData(w, data)
}

// StatusForError maps catalog and registry errors to HTTP status codes:
// malformed references are 400, registry 404s are 404, any other registry
// or aggregation failure is 502.
func StatusForError(err error) int {
	var (
		aggErr       *imageinfo.AggregationError
		transportErr *registry.TransportError
	)
	switch {
	case errors.Is(err, registry.ErrInvalidReference):
		return http.StatusBadRequest
	case registry.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &aggErr), errors.As(err, &transportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondCatalogError writes err with the status chosen by StatusForError.
func RespondCatalogError(w http.ResponseWriter, err error) {
	RespondError(w, StatusForError(err), err)
}
