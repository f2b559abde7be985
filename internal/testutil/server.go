package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// RecordedRequest is a request seen by FakeRegistry.
type RecordedRequest struct {
	Method string
	Path   string
	Accept string
}

// FakeRegistry is an httptest server speaking the subset of the Registry V2
// API the client uses. Payloads are raw JSON so tests control the exact wire shape.
type FakeRegistry struct {
	Server *httptest.Server

	mu        sync.Mutex
	catalog   string
	tags      map[string]string
	manifests map[string]string
	digests   map[string]string
	blobs     map[string]string
	failures  map[string]int
	requests  []RecordedRequest
	unhealthy bool
	deleted   []string
}

// NewFakeRegistry starts a fake registry. Callers must Close it.
func NewFakeRegistry() *FakeRegistry {
	f := &FakeRegistry{
		catalog:   `{"repositories":[]}`,
		tags:      make(map[string]string),
		manifests: make(map[string]string),
		digests:   make(map[string]string),
		blobs:     make(map[string]string),
		failures:  make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// URL returns the API root including the /v2 suffix.
func (f *FakeRegistry) URL() string {
	return f.Server.URL + "/v2"
}

// Close shuts the server down.
func (f *FakeRegistry) Close() {
	f.Server.Close()
}

// SetCatalog sets the raw /_catalog body.
func (f *FakeRegistry) SetCatalog(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = body
}

// SetTags sets the raw tags/list body of a repository.
func (f *FakeRegistry) SetTags(repository, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[repository] = body
}

// SetManifest sets the raw manifest body of repository:tag and the digest
// reported in Docker-Content-Digest (empty for none).
func (f *FakeRegistry) SetManifest(repository, tag, body, dgst string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifests[repository+":"+tag] = body
	if dgst != "" {
		f.digests[repository+":"+tag] = dgst
		f.manifests[repository+":"+dgst] = body
	}
}

// SetBlob sets the raw body of a blob.
func (f *FakeRegistry) SetBlob(repository, dgst, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[repository+"@"+dgst] = body
}

// FailPath makes requests to path (relative to /v2) answer with status.
func (f *FakeRegistry) FailPath(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = status
}

// SetUnhealthy makes GET /v2/ answer 503.
func (f *FakeRegistry) SetUnhealthy(unhealthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unhealthy = unhealthy
}

// Requests returns the recorded requests.
func (f *FakeRegistry) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest{}, f.requests...)
}

// Deleted returns the manifest references removed by DELETE requests.
func (f *FakeRegistry) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.deleted...)
}

func (f *FakeRegistry) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v2")
	f.requests = append(f.requests, RecordedRequest{Method: r.Method, Path: path, Accept: r.Header.Get("Accept")})

	if status, ok := f.failures[path]; ok {
		writeRegistryError(w, status, "UNKNOWN", http.StatusText(status))
		return
	}

	switch {
	case path == "/" || path == "":
		if f.unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))

	case path == "/_catalog":
		writeRaw(w, f.catalog)

	case strings.HasSuffix(path, "/tags/list"):
		repo := strings.TrimPrefix(strings.TrimSuffix(path, "/tags/list"), "/")
		body, ok := f.tags[repo]
		if !ok {
			writeRegistryError(w, http.StatusNotFound, "NAME_UNKNOWN", "repository name not known to registry")
			return
		}
		writeRaw(w, body)

	case strings.Contains(path, "/manifests/"):
		idx := strings.LastIndex(path, "/manifests/")
		repo := strings.TrimPrefix(path[:idx], "/")
		ref := path[idx+len("/manifests/"):]
		f.serveManifest(w, r, repo, ref)

	case strings.Contains(path, "/blobs/"):
		idx := strings.LastIndex(path, "/blobs/")
		repo := strings.TrimPrefix(path[:idx], "/")
		body, ok := f.blobs[repo+"@"+path[idx+len("/blobs/"):]]
		if !ok {
			writeRegistryError(w, http.StatusNotFound, "BLOB_UNKNOWN", "blob unknown to registry")
			return
		}
		writeRaw(w, body)

	default:
		http.NotFound(w, r)
	}
}

func (f *FakeRegistry) serveManifest(w http.ResponseWriter, r *http.Request, repo, ref string) {
	key := repo + ":" + ref
	body, ok := f.manifests[key]
	if !ok {
		writeRegistryError(w, http.StatusNotFound, "MANIFEST_UNKNOWN", "manifest unknown")
		return
	}

	switch r.Method {
	case http.MethodHead:
		if dgst := f.digests[key]; dgst != "" {
			w.Header().Set("Docker-Content-Digest", dgst)
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		for k := range f.manifests {
			if f.manifests[k] == body && strings.HasPrefix(k, repo+":") {
				delete(f.manifests, k)
			}
		}
		f.deleted = append(f.deleted, key)
		w.WriteHeader(http.StatusAccepted)
	default:
		writeRaw(w, body)
	}
}

func writeRaw(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func writeRegistryError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]string{{"code": code, "message": message}},
	})
}
