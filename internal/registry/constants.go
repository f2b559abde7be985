package registry

import (
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	// DefaultHTTPTimeout is the default timeout for a single registry request
	DefaultHTTPTimeout = 10 * time.Second

	// DefaultTimeoutSeconds is DefaultHTTPTimeout expressed in seconds
	DefaultTimeoutSeconds = int(DefaultHTTPTimeout / time.Second)

	// DefaultBaseURL is the registry API root used when none is configured
	DefaultBaseURL = "http://localhost:5000/v2"
)

// Media types the client asks for or recognizes.
const (
	// MediaTypeDockerManifest is requested explicitly on manifest reads; registries
	// otherwise may answer with a legacy schema1 manifest.
	MediaTypeDockerManifest = "application/vnd.docker.distribution.manifest.v2+json"

	// MediaTypeDockerManifestList is a multi-platform Docker manifest list
	MediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"

	// MediaTypeOCIIndex is an OCI image index
	MediaTypeOCIIndex = ocispec.MediaTypeImageIndex
)

// HeaderContentDigest carries the manifest digest on manifest responses.
const HeaderContentDigest = "Docker-Content-Digest"
