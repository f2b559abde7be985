package version

import (
	"cmp"
	"slices"
)

// SortTags returns tags ordered for display: "latest" first, then versions
// from newest to oldest, then every other tag alphabetically. The input is
// not modified.
func SortTags(tags []string) []string {
	infos := make([]TagInfo, len(tags))
	for i, tag := range tags {
		infos[i] = ParseTag(tag)
	}

	slices.SortStableFunc(infos, compareForDisplay)

	sorted := make([]string, len(infos))
	for i, info := range infos {
		sorted[i] = info.Tag
	}
	return sorted
}

// Newest returns the highest stable version among tags, or "" when there is none.
func Newest(tags []string) string {
	var best *TagInfo
	for _, tag := range tags {
		info := ParseTag(tag)
		if !info.IsStable() {
			continue
		}
		if best == nil || info.Version.GreaterThan(best.Version) {
			best = &info
		}
	}
	if best == nil {
		return ""
	}
	return best.Tag
}

func compareForDisplay(a, b TagInfo) int {
	if a.Kind != b.Kind {
		return kindRank(a.Kind) - kindRank(b.Kind)
	}
	if a.Kind == KindSemver {
		// Newest first; equal versions ("1.2" and "1.2.0") keep a stable order by tag.
		if c := b.Version.Compare(a.Version); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.Tag, b.Tag)
}

func kindRank(k Kind) int {
	switch k {
	case KindLatest:
		return 0
	case KindSemver:
		return 1
	default:
		return 2
	}
}
