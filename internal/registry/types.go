package registry

import "context"

// Client defines the Docker Registry V2 operations the viewer relies on.
type Client interface {
	// ListRepositories returns the repository names in the registry catalog
	ListRepositories(ctx context.Context) ([]string, error)

	// ListTags returns all tags of a repository
	ListTags(ctx context.Context, repository string) ([]string, error)

	// GetManifest returns the v2 image manifest for a tag
	GetManifest(ctx context.Context, repository, tag string) (*ImageManifest, error)

	// GetConfigBlob returns the image config blob addressed by digest
	GetConfigBlob(ctx context.Context, repository, digest string) (*ImageConfig, error)

	// DeleteTag deletes the manifest a tag points to.
	// The returned flag reports whether a deletion was issued.
	DeleteTag(ctx context.Context, repository, tag string) (bool, error)

	// CheckHealth probes the API root and reports whether it answered with success
	CheckHealth(ctx context.Context) bool
}

// RegistryConfig contains configuration for registry access.
type RegistryConfig struct {
	// BaseURL is the API root including the /v2 suffix (e.g., "http://localhost:5000/v2")
	BaseURL string

	// Headers are added to every request
	Headers map[string]string

	// Insecure skips TLS certificate verification
	Insecure bool

	// Timeout for registry requests in seconds
	TimeoutSeconds int
}

// catalogResponse represents the JSON response from the /v2/_catalog endpoint.
type catalogResponse struct {
	Repositories []string `json:"repositories"`
}

// tagsResponse represents the JSON response from the /v2/.../tags/list endpoint.
type tagsResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Descriptor references a content-addressed object.
type Descriptor struct {
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	Digest    string `json:"digest"`
}

// ImageManifest is a schema 2 image manifest.
type ImageManifest struct {
	SchemaVersion int          `json:"schemaVersion"`
	MediaType     string       `json:"mediaType"`
	Config        *Descriptor  `json:"config,omitempty"`
	Layers        []Descriptor `json:"layers"`
}

// ConfigDigest returns the digest of the referenced config blob, or "" when
// the manifest carries none (manifest lists, legacy formats).
func (m *ImageManifest) ConfigDigest() string {
	if m == nil || m.Config == nil {
		return ""
	}
	return m.Config.Digest
}

// TotalSize returns the sum of all layer sizes.
func (m *ImageManifest) TotalSize() int64 {
	if m == nil {
		return 0
	}
	var total int64
	for _, layer := range m.Layers {
		total += layer.Size
	}
	return total
}

// IsIndex reports whether the manifest is a multi-platform list rather than an image manifest.
func (m *ImageManifest) IsIndex() bool {
	if m == nil {
		return false
	}
	return m.MediaType == MediaTypeDockerManifestList || m.MediaType == MediaTypeOCIIndex
}

// ImageConfig is the image configuration blob.
type ImageConfig struct {
	Architecture string          `json:"architecture"`
	OS           string          `json:"os"`
	Config       ContainerConfig `json:"config"`
	Created      string          `json:"created"`
	History      []HistoryEntry  `json:"history"`
	RootFS       RootFS          `json:"rootfs"`
}

// ContainerConfig is the runtime configuration embedded in an image config.
type ContainerConfig struct {
	Env          []string            `json:"Env,omitempty"`
	Cmd          []string            `json:"Cmd,omitempty"`
	Entrypoint   []string            `json:"Entrypoint,omitempty"`
	WorkingDir   string              `json:"WorkingDir,omitempty"`
	User         string              `json:"User,omitempty"`
	ExposedPorts map[string]struct{} `json:"ExposedPorts,omitempty"`
	Labels       map[string]string   `json:"Labels,omitempty"`
}

// HistoryEntry is one build step of an image.
type HistoryEntry struct {
	Created    string `json:"created"`
	CreatedBy  string `json:"created_by"`
	EmptyLayer bool   `json:"empty_layer,omitempty"`
}

// RootFS lists the uncompressed layer digests of an image.
type RootFS struct {
	Type    string   `json:"type"`
	DiffIDs []string `json:"diff_ids"`
}
