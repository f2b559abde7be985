// Package testutil provides shared testing utilities for the regview test suite.
// It contains an in-memory registry client, an HTTP fake registry, and image fixtures.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/chis/regview/internal/registry"
)

// Common test errors for use in mocks
var (
	ErrMockNotFound    = &registry.TransportError{Op: "get manifest", StatusCode: 404, Errors: []registry.ErrorDescriptor{{Code: registry.ErrCodeManifestUnknown, Message: "manifest unknown"}}}
	ErrMockUnavailable = errors.New("connection refused")
	ErrMockTimeout     = errors.New("operation timed out")
)

// MockClient implements registry.Client in memory for testing the resolver,
// orchestrator and API handlers.
type MockClient struct {
	mu sync.Mutex

	repositories []string
	tags         map[string][]string
	manifests    map[string]*registry.ImageManifest
	configs      map[string]*registry.ImageConfig
	healthy      bool

	// Error injection
	CatalogError   error
	TagErrors      map[string]error
	ManifestErrors map[string]error
	ConfigErrors   map[string]error
	DeleteError    error

	// ListRepositoriesFunc overrides the catalog when set.
	ListRepositoriesFunc func(ctx context.Context) ([]string, error)

	// TagsDelay is slept (or cut short by ctx) inside every ListTags call.
	TagsDelay time.Duration

	// Call tracking
	Deleted           []string
	CatalogCalls      int
	TagCalls          int
	ManifestCalls     int
	ConfigCalls       int
	maxTagsInFlight   int
	tagsInFlightCount int
}

// NewMockClient creates a healthy, empty mock registry.
func NewMockClient() *MockClient {
	return &MockClient{
		tags:           make(map[string][]string),
		manifests:      make(map[string]*registry.ImageManifest),
		configs:        make(map[string]*registry.ImageConfig),
		healthy:        true,
		TagErrors:      make(map[string]error),
		ManifestErrors: make(map[string]error),
		ConfigErrors:   make(map[string]error),
	}
}

// SetHealthy controls the CheckHealth answer.
func (m *MockClient) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// AddRepository adds a repository with the given tags to the catalog.
func (m *MockClient) AddRepository(name string, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repositories = append(m.repositories, name)
	m.tags[name] = append([]string{}, tags...)
}

// AddImage registers a manifest for repository:tag and, when cfg is not nil,
// the config blob it references. It returns the config digest.
func (m *MockClient) AddImage(repository, tag string, layerSizes []int64, cfg *registry.ImageConfig) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	manifest := NewManifest(repository+":"+tag, layerSizes...)
	m.manifests[repository+":"+tag] = manifest
	if cfg != nil {
		m.configs[manifest.ConfigDigest()] = cfg
	}
	return manifest.ConfigDigest()
}

// SetManifest registers an arbitrary manifest for repository:tag.
func (m *MockClient) SetManifest(repository, tag string, manifest *registry.ImageManifest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests[repository+":"+tag] = manifest
}

// MaxConcurrentTagCalls reports the highest number of ListTags calls observed in flight at once.
func (m *MockClient) MaxConcurrentTagCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxTagsInFlight
}

// DeletedRefs returns a copy of the references deleted so far.
func (m *MockClient) DeletedRefs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.Deleted...)
}

// Implement registry.Client

func (m *MockClient) ListRepositories(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	m.CatalogCalls++
	fn := m.ListRepositoriesFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CatalogError != nil {
		return nil, m.CatalogError
	}
	return append([]string{}, m.repositories...), nil
}

func (m *MockClient) ListTags(ctx context.Context, repository string) ([]string, error) {
	m.mu.Lock()
	m.TagCalls++
	m.tagsInFlightCount++
	if m.tagsInFlightCount > m.maxTagsInFlight {
		m.maxTagsInFlight = m.tagsInFlightCount
	}
	delay := m.TagsDelay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.tagsInFlightCount--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.TagErrors[repository]; err != nil {
		return nil, err
	}
	tags, ok := m.tags[repository]
	if !ok {
		return nil, &registry.TransportError{Op: "list tags", StatusCode: 404, Errors: []registry.ErrorDescriptor{{Code: registry.ErrCodeNameUnknown, Message: "repository name not known to registry"}}}
	}
	return append([]string{}, tags...), nil
}

func (m *MockClient) GetManifest(ctx context.Context, repository, tag string) (*registry.ImageManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ManifestCalls++

	ref := repository + ":" + tag
	if err := m.ManifestErrors[ref]; err != nil {
		return nil, err
	}
	manifest, ok := m.manifests[ref]
	if !ok {
		return nil, ErrMockNotFound
	}
	return manifest, nil
}

func (m *MockClient) GetConfigBlob(ctx context.Context, repository, dgst string) (*registry.ImageConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfigCalls++

	if err := m.ConfigErrors[dgst]; err != nil {
		return nil, err
	}
	cfg, ok := m.configs[dgst]
	if !ok {
		return nil, &registry.TransportError{Op: "get config blob", StatusCode: 404, Errors: []registry.ErrorDescriptor{{Code: registry.ErrCodeBlobUnknown, Message: "blob unknown to registry"}}}
	}
	return cfg, nil
}

func (m *MockClient) DeleteTag(ctx context.Context, repository, tag string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	ref := repository + ":" + tag
	if _, ok := m.manifests[ref]; !ok {
		return false, nil
	}

	delete(m.manifests, ref)
	tags := m.tags[repository][:0]
	for _, t := range m.tags[repository] {
		if t != tag {
			tags = append(tags, t)
		}
	}
	m.tags[repository] = tags
	m.Deleted = append(m.Deleted, ref)
	return true, nil
}

func (m *MockClient) CheckHealth(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// NewManifest builds a schema 2 manifest whose config digest is derived from seed.
func NewManifest(seed string, layerSizes ...int64) *registry.ImageManifest {
	manifest := &registry.ImageManifest{
		SchemaVersion: 2,
		MediaType:     registry.MediaTypeDockerManifest,
		Config: &registry.Descriptor{
			MediaType: "application/vnd.docker.container.image.v1+json",
			Size:      1469,
			Digest:    digest.FromString("config:" + seed).String(),
		},
		Layers: make([]registry.Descriptor, 0, len(layerSizes)),
	}
	for i, size := range layerSizes {
		manifest.Layers = append(manifest.Layers, registry.Descriptor{
			MediaType: "application/vnd.docker.image.rootfs.diff.tar.gzip",
			Size:      size,
			Digest:    digest.FromString(fmt.Sprintf("layer:%s:%d", seed, i)).String(),
		})
	}
	return manifest
}

// NewImageConfig creates an image config for testing.
func NewImageConfig(created string) *registry.ImageConfig {
	return &registry.ImageConfig{
		Architecture: "amd64",
		OS:           "linux",
		Created:      created,
		Config: registry.ContainerConfig{
			Env: []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"},
			Cmd: []string{"/bin/sh"},
		},
		RootFS: registry.RootFS{Type: "layers"},
	}
}
