// Package version classifies image tags and orders them by semantic version.
package version

import "github.com/Masterminds/semver/v3"

// Kind is the shape of a tag.
type Kind int

const (
	// KindOther is any tag that is neither "latest" nor a version (branch names, hashes).
	KindOther Kind = iota
	// KindLatest is the "latest" tag.
	KindLatest
	// KindSemver is a tag with at least major.minor, optionally "v"-prefixed.
	KindSemver
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindLatest:
		return "latest"
	case KindSemver:
		return "semver"
	default:
		return "other"
	}
}

// TagInfo is a classified tag.
type TagInfo struct {
	// Tag is the tag as listed by the registry.
	Tag string

	Kind Kind

	// Version is set when Kind is KindSemver.
	Version *semver.Version
}

// IsStable reports whether the tag is a version without a prerelease part
// ("1.2.3", not "1.2.3-rc.1" or "1.2.3-alpine").
func (t TagInfo) IsStable() bool {
	return t.Kind == KindSemver && t.Version.Prerelease() == ""
}
