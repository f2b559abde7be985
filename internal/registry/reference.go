package registry

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

// RepositoryName is a repository path split into its namespace and final name.
type RepositoryName struct {
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// ParseRepositoryName splits a repository path on its last slash.
// Examples:
//   - "nginx" -> "", "nginx"
//   - "app/api" -> "app", "api"
//   - "team/app/api" -> "team/app", "api"
func ParseRepositoryName(full string) RepositoryName {
	idx := strings.LastIndex(full, "/")
	if idx < 0 {
		return RepositoryName{Name: full}
	}
	return RepositoryName{Namespace: full[:idx], Name: full[idx+1:]}
}

// ValidateRepository checks a repository path against the distribution name grammar.
func ValidateRepository(repository string) error {
	if repository == "" {
		return fmt.Errorf("%w: empty repository name", ErrInvalidReference)
	}
	if _, err := reference.WithName(repository); err != nil {
		return fmt.Errorf("%w: repository %q: %v", ErrInvalidReference, repository, err)
	}
	return nil
}

// ValidateTag checks a repository path and tag pair.
func ValidateTag(repository, tag string) error {
	named, err := reference.WithName(repository)
	if err != nil {
		return fmt.Errorf("%w: repository %q: %v", ErrInvalidReference, repository, err)
	}
	if _, err := reference.WithTag(named, tag); err != nil {
		return fmt.Errorf("%w: tag %q: %v", ErrInvalidReference, tag, err)
	}
	return nil
}

// SplitReference splits "repository:tag" into its parts. The tag separator is
// the last colon after the last slash, so registry ports are not mistaken for tags.
func SplitReference(ref string) (repository, tag string, err error) {
	slash := strings.LastIndex(ref, "/")
	colon := strings.LastIndex(ref, ":")
	if colon <= slash || colon == len(ref)-1 {
		return "", "", fmt.Errorf("%w: %q is not in repository:tag form", ErrInvalidReference, ref)
	}

	repository, tag = ref[:colon], ref[colon+1:]
	if err := ValidateTag(repository, tag); err != nil {
		return "", "", err
	}
	return repository, tag, nil
}
