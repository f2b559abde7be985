package registry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/chis/regview/internal/logging"
)

// HTTPClient implements the Client interface using the Docker Registry V2 API.
type HTTPClient struct {
	config     *RegistryConfig
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewHTTPClient creates a new registry client.
func NewHTTPClient(config *RegistryConfig) *HTTPClient {
	if config == nil {
		config = &RegistryConfig{
			TimeoutSeconds: DefaultTimeoutSeconds,
		}
	}

	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = DefaultTimeoutSeconds
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPClient{
		config:  config,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   time.Duration(config.TimeoutSeconds) * time.Second,
			Transport: transport,
		},
		logger: logging.Default().WithField("component", "registry"),
	}
}

// SetLogger replaces the client's logger.
func (c *HTTPClient) SetLogger(l *logging.Logger) {
	if l != nil {
		c.logger = l
	}
}

// BaseURL returns the API root the client talks to.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections held by the client.
func (c *HTTPClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// ListRepositories returns the repository names listed in the registry catalog.
func (c *HTTPClient) ListRepositories(ctx context.Context) ([]string, error) {
	var catalog catalogResponse
	if err := c.getJSON(ctx, "list repositories", "/_catalog", nil, &catalog); err != nil {
		return nil, err
	}

	if catalog.Repositories == nil {
		return []string{}, nil
	}
	return catalog.Repositories, nil
}

// ListTags returns all available tags for a repository.
func (c *HTTPClient) ListTags(ctx context.Context, repository string) ([]string, error) {
	var tagsResp tagsResponse
	if err := c.getJSON(ctx, "list tags", c.repoPath(repository, "tags", "list"), nil, &tagsResp); err != nil {
		return nil, err
	}

	if tagsResp.Tags == nil {
		return []string{}, nil
	}
	return tagsResp.Tags, nil
}

// GetManifest fetches the v2 manifest of a tag.
func (c *HTTPClient) GetManifest(ctx context.Context, repository, tag string) (*ImageManifest, error) {
	headers := map[string]string{"Accept": MediaTypeDockerManifest}

	var manifest ImageManifest
	if err := c.getJSON(ctx, "get manifest", c.repoPath(repository, "manifests", tag), headers, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// GetConfigBlob fetches the image config blob addressed by dgst.
func (c *HTTPClient) GetConfigBlob(ctx context.Context, repository, dgst string) (*ImageConfig, error) {
	if _, err := digest.Parse(dgst); err != nil {
		return nil, fmt.Errorf("%w: digest %q: %v", ErrInvalidReference, dgst, err)
	}

	var config ImageConfig
	if err := c.getJSON(ctx, "get config blob", c.repoPath(repository, "blobs", dgst), nil, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ResolveDigest returns the content digest a tag points to, read from the
// Docker-Content-Digest header of a HEAD request. An empty string means the
// registry did not report one.
func (c *HTTPClient) ResolveDigest(ctx context.Context, repository, tag string) (string, error) {
	headers := map[string]string{"Accept": MediaTypeDockerManifest}

	resp, err := c.do(ctx, "resolve digest", http.MethodHead, c.repoPath(repository, "manifests", tag), headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", handleHTTPError(resp, "resolve digest")
	}

	return resp.Header.Get(HeaderContentDigest), nil
}

// DeleteTag deletes the manifest a tag points to. The digest is resolved
// first; when the registry reports none, nothing is deleted and the call
// returns false without an error.
func (c *HTTPClient) DeleteTag(ctx context.Context, repository, tag string) (bool, error) {
	dgst, err := c.ResolveDigest(ctx, repository, tag)
	if err != nil {
		return false, err
	}
	if dgst == "" {
		c.logger.WithFields(map[string]interface{}{
			"repository": repository,
			"tag":        tag,
		}).Warn("No %s header for %s:%s, skipping delete", HeaderContentDigest, repository, tag)
		return false, nil
	}

	resp, err := c.do(ctx, "delete tag", http.MethodDelete, c.repoPath(repository, "manifests", dgst), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return false, handleHTTPError(resp, "delete tag")
	}

	io.Copy(io.Discard, resp.Body)
	c.logger.Info("Deleted %s:%s (%s)", repository, tag, dgst)
	return true, nil
}

// CheckHealth probes the API root. Any failure is reported as false.
func (c *HTTPClient) CheckHealth(ctx context.Context) bool {
	resp, err := c.do(ctx, "health check", http.MethodGet, "/", nil)
	if err != nil {
		c.logger.Debug("Health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if !isSuccess(resp.StatusCode) {
		c.logger.Debug("Health check returned %d", resp.StatusCode)
		return false
	}
	return true
}

// getJSON issues a GET request and decodes a successful JSON response into v.
func (c *HTTPClient) getJSON(ctx context.Context, operation, path string, headers map[string]string, v any) error {
	resp, err := c.do(ctx, operation, http.MethodGet, path, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return handleHTTPError(resp, operation)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &TransportError{
			Op:     operation,
			Method: http.MethodGet,
			URL:    c.baseURL + path,
			Err:    fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

// do builds and sends a request relative to the base URL.
func (c *HTTPClient) do(ctx context.Context, operation, method, path string, headers map[string]string) (*http.Response, error) {
	target := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, &TransportError{Op: operation, Method: method, URL: target, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("%s %s", method, target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: operation, Method: method, URL: target, Err: err}
	}
	return resp, nil
}

// repoPath builds "/<repository>/<segments...>". The repository keeps its
// namespace slashes; the trailing segments are escaped individually.
func (c *HTTPClient) repoPath(repository string, segments ...string) string {
	var b strings.Builder
	for _, part := range strings.Split(strings.Trim(repository, "/"), "/") {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(part))
	}
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
