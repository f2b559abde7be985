package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/chis/regview/internal/registry"
)

// parseBoolParam parses a boolean query parameter
func parseBoolParam(r *http.Request, name string) bool {
	return r.URL.Query().Get(name) == "true"
}

// validateRequired checks that a required parameter is not empty.
// Returns true if valid, false if empty (and writes error response).
func validateRequired(w http.ResponseWriter, name, value string) bool {
	if value == "" {
		RespondBadRequest(w, fmt.Errorf("%s is required", name))
		return false
	}
	return true
}

// repositoryParam reads and validates the {repository...} path value.
// Returns false after writing a 400 response when it is missing or malformed.
func repositoryParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	repository := strings.Trim(r.PathValue("repository"), "/")
	if !validateRequired(w, "repository", repository) {
		return "", false
	}
	if err := registry.ValidateRepository(repository); err != nil {
		RespondBadRequest(w, err)
		return "", false
	}
	return repository, true
}

// referenceParam splits the {reference...} path value into repository and tag.
// Returns false after writing a 400 response when it is not repository:tag.
func referenceParam(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	ref := r.PathValue("reference")
	if !validateRequired(w, "image reference", ref) {
		return "", "", false
	}
	repository, tag, err := registry.SplitReference(ref)
	if err != nil {
		RespondBadRequest(w, err)
		return "", "", false
	}
	return repository, tag, true
}

// registryContext bounds a handler's registry calls.
func registryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), RegistryCallTimeout)
}
