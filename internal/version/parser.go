package version

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// Requires at least major.minor, so "1243" or a short hash is not a version.
	versionPattern = regexp.MustCompile(`^v?\d+\.\d+`)

	// All-hex tags of commit-hash length are never versions.
	hashPattern = regexp.MustCompile(`^[a-f0-9]{7,40}$`)
)

// ParseTag classifies a tag.
// Examples:
//   - "latest" -> KindLatest
//   - "1.21.3", "v1.21.3", "1.21" -> KindSemver
//   - "1.21.3-alpine" -> KindSemver with prerelease "alpine"
//   - "main", "abc123def" -> KindOther
func ParseTag(tag string) TagInfo {
	info := TagInfo{Tag: tag}

	if strings.EqualFold(tag, "latest") {
		info.Kind = KindLatest
		return info
	}
	if hashPattern.MatchString(tag) || !versionPattern.MatchString(tag) {
		return info
	}

	v, err := semver.NewVersion(tag)
	if err != nil {
		return info
	}
	info.Kind = KindSemver
	info.Version = v
	return info
}
