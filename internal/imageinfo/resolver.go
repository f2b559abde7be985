// Package imageinfo resolves a repository tag into a single metadata record
// built from the tag's manifest and, when available, its config blob.
package imageinfo

import (
	"context"
	"time"

	"github.com/chis/regview/internal/logging"
	"github.com/chis/regview/internal/registry"
)

// ImageInfo is the aggregated metadata of one tag.
type ImageInfo struct {
	Repository string                  `json:"repository"`
	Tag        string                  `json:"tag"`
	Manifest   *registry.ImageManifest `json:"manifest"`
	Config     *registry.ImageConfig   `json:"config,omitempty"`

	// Size is the sum of the manifest layer sizes in bytes.
	Size int64 `json:"size"`

	// Digest is the config digest; empty when the manifest carries none.
	Digest string `json:"digest"`

	// LastModified is the config creation time, or the resolution time when
	// the config is missing or has no creation time.
	LastModified string `json:"lastModified"`

	// LastModifiedEstimated is set when LastModified is the resolution time.
	LastModifiedEstimated bool `json:"lastModifiedEstimated"`
}

// Resolver assembles ImageInfo records from registry calls.
type Resolver struct {
	client registry.Client
	logger *logging.Logger
	now    func() time.Time
}

// NewResolver creates a resolver backed by client.
func NewResolver(client registry.Client) *Resolver {
	return &Resolver{
		client: client,
		logger: logging.Default().WithField("component", "imageinfo"),
		now:    time.Now,
	}
}

// SetLogger replaces the resolver's logger.
func (r *Resolver) SetLogger(l *logging.Logger) {
	if l != nil {
		r.logger = l
	}
}

// SetClock replaces the wall clock used for estimated timestamps.
func (r *Resolver) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Resolve fetches the manifest of repository:tag and, if it references one,
// the config blob. Only a manifest failure is fatal; it is returned as an
// *AggregationError.
func (r *Resolver) Resolve(ctx context.Context, repository, tag string) (*ImageInfo, error) {
	manifest, err := r.client.GetManifest(ctx, repository, tag)
	if err != nil {
		return nil, &AggregationError{Repository: repository, Tag: tag, Err: err}
	}

	info := &ImageInfo{
		Repository: repository,
		Tag:        tag,
		Manifest:   manifest,
		Size:       manifest.TotalSize(),
		Digest:     manifest.ConfigDigest(),
	}

	if info.Digest != "" {
		cfg, err := r.client.GetConfigBlob(ctx, repository, info.Digest)
		if err != nil {
			r.logger.WithFields(map[string]interface{}{
				"repository": repository,
				"tag":        tag,
				"digest":     info.Digest,
			}).WithError(err).WarnContext(ctx, "Failed to fetch config for %s:%s, continuing without it", repository, tag)
		} else {
			info.Config = cfg
		}
	} else if manifest.IsIndex() {
		r.logger.DebugContext(ctx, "%s:%s is a manifest list, no config to fetch", repository, tag)
	}

	if info.Config != nil && info.Config.Created != "" {
		info.LastModified = info.Config.Created
	} else {
		info.LastModified = r.now().UTC().Format(time.RFC3339Nano)
		info.LastModifiedEstimated = true
	}

	return info, nil
}
