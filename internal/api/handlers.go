package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chis/regview/internal/catalog"
	"github.com/chis/regview/internal/events"
	"github.com/chis/regview/internal/output"
	"github.com/chis/regview/internal/registry"
	"github.com/chis/regview/internal/version"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status      string        `json:"status"`
	Connected   bool          `json:"connected"`
	State       catalog.State `json:"state"`
	Loading     bool          `json:"loading"`
	RefreshedAt *time.Time    `json:"refreshedAt,omitempty"`
}

// SettingsResponse is returned by GET /api/settings.
type SettingsResponse struct {
	RegistryName string `json:"registryName"`
	RegistryURL  string `json:"registryUrl"`
	Version      string `json:"version"`
}

// RepositoriesResponse is returned by GET /api/repositories.
type RepositoriesResponse struct {
	catalog.Snapshot
	Query string `json:"query,omitempty"`
	Count int    `json:"count"`
}

// TagsResponse is returned by GET /api/tags/{repository}.
type TagsResponse struct {
	Repository string   `json:"repository"`
	Namespace  string   `json:"namespace,omitempty"`
	Name       string   `json:"name"`
	Tags       []string `json:"tags"`
	Count      int      `json:"count"`
	Newest     string   `json:"newest,omitempty"`
	Sort       string   `json:"sort,omitempty"`

	// FetchFailed distinguishes a failed lookup from a repository without tags.
	FetchFailed bool   `json:"fetch_failed"`
	Error       string `json:"error,omitempty"`
}

// DeleteResponse is returned by DELETE /api/images/{reference}.
type DeleteResponse struct {
	Repository string `json:"repository"`
	Tag        string `json:"tag"`

	// Deleted is false when the registry reported no digest and nothing was removed.
	Deleted bool `json:"deleted"`
}

// handleHealth reports service liveness and the registry connectivity seen by the last refresh
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.orchestrator.Snapshot()
	resp := HealthResponse{
		Status:    "healthy",
		Connected: snap.Connected,
		State:     snap.State,
		Loading:   snap.Loading,
	}
	if !snap.RefreshedAt.IsZero() {
		resp.RefreshedAt = &snap.RefreshedAt
	}
	RespondSuccess(w, resp)
}

// handleSettings returns the registry display settings
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	RespondSuccess(w, SettingsResponse{
		RegistryName: s.registryName,
		RegistryURL:  s.registryURL,
		Version:      output.Version,
	})
}

// handleRepositories returns the current snapshot, optionally filtered by ?q=
// GET /api/repositories?q=term
func (s *Server) handleRepositories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if len(query) > MaxSearchTermLength {
		RespondBadRequest(w, fmt.Errorf("search term too long (max %d characters)", MaxSearchTermLength))
		return
	}

	snap := s.orchestrator.Snapshot()
	if query != "" {
		snap.Repositories = s.orchestrator.Search(query)
	}

	RespondSuccess(w, RepositoriesResponse{
		Snapshot: snap,
		Query:    query,
		Count:    len(snap.Repositories),
	})
}

// handleRefresh runs a refresh and returns the resulting snapshot. With
// ?async=true it only schedules a background refresh and returns 202.
// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if parseBoolParam(r, "async") {
		if s.refresher == nil {
			RespondError(w, http.StatusServiceUnavailable, errors.New("background refresh is not available"))
			return
		}
		s.refresher.Trigger()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		output.WriteJSONData(w, s.orchestrator.Snapshot())
		return
	}

	// Refreshes run to completion even if the client disconnects; each
	// registry call is bounded by the client timeout.
	ctx := context.WithoutCancel(r.Context())

	// A degraded snapshot is still the refresh result; its error field carries the cause.
	RespondSuccess(w, s.orchestrator.Refresh(ctx))
}

// handleTags lists a repository's tags. A failed lookup is reported in the
// body with fetch_failed rather than as an HTTP error.
// GET /api/tags/{repository...}?sort=semver
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	repository, ok := repositoryParam(w, r)
	if !ok {
		return
	}

	order := r.URL.Query().Get("sort")
	if order != SortRegistry && order != SortSemver {
		RespondBadRequest(w, fmt.Errorf("unknown sort order %q (supported: %s)", order, SortSemver))
		return
	}

	ctx, cancel := registryContext(r)
	defer cancel()

	res := s.orchestrator.LookupTags(ctx, repository)
	RespondSuccess(w, NewTagsResponse(repository, res, order))
}

// NewTagsResponse builds the tags view of a lookup, sorting by order.
func NewTagsResponse(repository string, res catalog.TagsResult, order string) TagsResponse {
	name := registry.ParseRepositoryName(repository)

	tags := res.Tags
	if order == SortSemver {
		tags = version.SortTags(tags)
	}

	resp := TagsResponse{
		Repository:  repository,
		Namespace:   name.Namespace,
		Name:        name.Name,
		Tags:        tags,
		Count:       len(tags),
		Newest:      version.Newest(tags),
		Sort:        order,
		FetchFailed: !res.OK(),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp
}

// handleDetails resolves the first tags of a repository
// GET /api/details/{repository...}
func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	repository, ok := repositoryParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := registryContext(r)
	defer cancel()

	details, err := s.orchestrator.TagDetails(ctx, repository)
	if err != nil {
		RespondCatalogError(w, err)
		return
	}
	RespondSuccess(w, details)
}

// handleImage resolves one tag into its image info
// GET /api/images/{repository:tag}
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	repository, tag, ok := referenceParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := registryContext(r)
	defer cancel()

	info, err := s.orchestrator.ImageInfo(ctx, repository, tag)
	if err != nil {
		RespondCatalogError(w, err)
		return
	}
	RespondSuccess(w, info)
}

// handleDeleteImage deletes the manifest a tag points to
// DELETE /api/images/{repository:tag}
func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	repository, tag, ok := referenceParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := registryContext(r)
	defer cancel()

	deleted, err := s.orchestrator.DeleteTag(ctx, repository, tag)
	if err != nil {
		s.logger.WithError(err).WarnContext(ctx, "Delete of %s:%s failed", repository, tag)
		RespondCatalogError(w, err)
		return
	}
	if !deleted {
		s.logger.WarnContext(ctx, "Registry returned no digest for %s:%s, nothing deleted", repository, tag)
	}

	RespondSuccess(w, DeleteResponse{Repository: repository, Tag: tag, Deleted: deleted})
}

// handleEvents streams bus events as Server-Sent Events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Prevent proxy buffering

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		RespondInternalError(w, errors.New("streaming not supported"))
		return
	}

	// Disable write deadline for this long-lived SSE connection
	rc.SetWriteDeadline(time.Time{})

	eventChan, unsubscribe := s.eventBus.Subscribe(events.Wildcard)
	defer unsubscribe()

	ctx := r.Context()
	s.logger.DebugContext(ctx, "SSE client connected")

	// Subscribed before this is sent, so clients that see it miss no later event
	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	rc.Flush()

	heartbeat := time.NewTicker(SSEHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.DebugContext(ctx, "SSE client disconnected")
			return
		case <-heartbeat.C:
			// SSE comment: invisible to EventSource but keeps the connection alive
			fmt.Fprintf(w, ": keepalive\n\n")
			rc.Flush()
		case event, ok := <-eventChan:
			if !ok {
				return
			}

			eventData, err := events.MarshalEvent(event)
			if err != nil {
				s.logger.WithError(err).Warn("Error marshaling event %s", event.Type)
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, eventData)
			rc.Flush()
			heartbeat.Reset(SSEHeartbeatInterval)
		}
	}
}
