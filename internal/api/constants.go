package api

import "time"

// Timeouts for API operations
const (
	// WriteTimeout leaves room for a synchronous POST /api/refresh over a large catalog.
	WriteTimeout = 2 * time.Minute

	// RegistryCallTimeout bounds single-tag lookups, details and deletes.
	RegistryCallTimeout = 60 * time.Second

	// SSEHeartbeatInterval keeps event streams alive through proxies (Traefik idle timeout ~30s).
	SSEHeartbeatInterval = 15 * time.Second
)

// Tag sort orders accepted by GET /api/tags.
const (
	SortRegistry = ""       // registry order, as returned by tags/list
	SortSemver   = "semver" // semantic versions descending, other tags after them
)

// MaxSearchTermLength caps the ?q= filter on /api/repositories.
const MaxSearchTermLength = 255
