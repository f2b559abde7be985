// Package catalog aggregates registry endpoints into a repository snapshot
// and answers tag and image queries against it.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/chis/regview/internal/events"
	"github.com/chis/regview/internal/imageinfo"
	"github.com/chis/regview/internal/logging"
	"github.com/chis/regview/internal/registry"
)

// Orchestrator owns the repository snapshot and coordinates the registry
// calls that build it. Snapshots are swapped atomically; readers never lock.
type Orchestrator struct {
	client   registry.Client
	resolver *imageinfo.Resolver
	opts     Options
	logger   *logging.Logger
	eventBus *events.Bus

	snapshot atomic.Pointer[Snapshot]
	inFlight atomic.Int32

	// publishMu orders snapshot writes so a refresh's read-modify-write of
	// the current snapshot is not interleaved with another's.
	publishMu sync.Mutex
	group     singleflight.Group
}

// New creates an orchestrator in the Idle state. Zero-valued options fall
// back to their defaults, except MaxConcurrency where <= 0 means unbounded.
func New(client registry.Client, resolver *imageinfo.Resolver, opts Options) *Orchestrator {
	defaults := DefaultOptions()
	if opts.DetailLimit <= 0 {
		opts.DetailLimit = defaults.DetailLimit
	}
	if opts.DetailConcurrency <= 0 {
		opts.DetailConcurrency = defaults.DetailConcurrency
	}
	if opts.ConnectivityMessage == "" {
		opts.ConnectivityMessage = defaults.ConnectivityMessage
	}
	if resolver == nil {
		resolver = imageinfo.NewResolver(client)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	o := &Orchestrator{
		client:   client,
		resolver: resolver,
		opts:     opts,
		logger:   logger.WithField("component", "catalog"),
		eventBus: opts.EventBus,
	}
	o.snapshot.Store(&Snapshot{
		State:        StateIdle,
		Repositories: []Repository{},
	})
	return o
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	return *o.snapshot.Load()
}

// Refresh re-reads the catalog and the tags of every repository and
// publishes the result. Overlapping refreshes are not cancelled; whichever
// finishes last wins. If ctx ends before the refresh completes, the previous
// repositories are published again instead of the partial result. With Coalesce set, concurrent callers share one
// refresh and all receive its result.
func (o *Orchestrator) Refresh(ctx context.Context) Snapshot {
	if !o.opts.Coalesce {
		return o.refresh(ctx)
	}

	v, _, shared := o.group.Do("refresh", func() (interface{}, error) {
		return o.refresh(ctx), nil
	})
	if shared {
		o.logger.DebugContext(ctx, "Joined in-flight refresh")
	}
	return v.(Snapshot)
}

func (o *Orchestrator) refresh(ctx context.Context) Snapshot {
	refreshID := uuid.NewString()
	ctx = logging.WithLogFields(ctx, map[string]interface{}{"refresh_id": refreshID})
	startTime := time.Now()

	previous := o.Snapshot()
	o.begin(refreshID)
	o.publishEvent(events.EventRefreshStarted, map[string]interface{}{
		"refresh_id": refreshID,
	})
	o.logger.InfoContext(ctx, "Refreshing registry catalog")

	result := Snapshot{Connected: true}

	if !o.client.CheckHealth(ctx) {
		result.Connected = false
		result.Error = o.opts.ConnectivityMessage
		o.logger.WarnContext(ctx, "Registry health check failed")
		o.update(func(s *Snapshot) {
			s.Connected = false
			s.Error = result.Error
		})
	}

	names, err := o.client.ListRepositories(ctx)
	if err != nil {
		o.logger.WithError(err).ErrorContext(ctx, "Failed to fetch repositories")
		result.State = StateDegraded
		result.Repositories = []Repository{}
		result.Connected = false
		result.Error = err.Error()
	} else {
		result.State = StateReady
		result.Repositories = o.fetchAllTags(ctx, names)
	}

	// Calls cut short by cancellation say nothing about the registry.
	if err := ctx.Err(); err != nil {
		o.logger.WithError(err).WarnContext(ctx, "Refresh cancelled, keeping previous snapshot")
		result = restorable(previous)
	}

	snap := o.finish(refreshID, result)

	o.publishEvent(events.EventRefreshCompleted, map[string]interface{}{
		"refresh_id":   refreshID,
		"state":        string(snap.State),
		"repositories": len(snap.Repositories),
		"connected":    snap.Connected,
		"error":        snap.Error,
		"duration_ms":  time.Since(startTime).Milliseconds(),
	})
	o.logger.InfoContext(ctx, "Refresh completed in %v: %d repositories, state %s",
		time.Since(startTime).Round(time.Millisecond), len(snap.Repositories), snap.State)

	return snap
}

// restorable returns prev as a settled snapshot. A snapshot taken while
// another refresh was running falls back to its last settled state.
func restorable(prev Snapshot) Snapshot {
	if prev.State == StateRefreshing {
		prev.State = StateReady
		if prev.RefreshedAt.IsZero() {
			prev.State = StateIdle
		}
	}
	return prev
}

// begin enters the Refreshing state, keeping the previous repositories visible.
func (o *Orchestrator) begin(refreshID string) {
	o.inFlight.Add(1)
	o.update(func(s *Snapshot) {
		s.State = StateRefreshing
		s.Loading = true
		s.Error = ""
		s.RefreshID = refreshID
	})
}

// finish publishes a refresh result. Loading stays set while other refreshes
// are still running.
func (o *Orchestrator) finish(refreshID string, result Snapshot) Snapshot {
	o.publishMu.Lock()
	defer o.publishMu.Unlock()

	remaining := o.inFlight.Add(-1)
	result.Loading = remaining > 0
	result.RefreshID = refreshID
	result.RefreshedAt = time.Now().UTC()
	o.snapshot.Store(&result)
	return result
}

// update applies fn to a copy of the current snapshot and publishes it.
func (o *Orchestrator) update(fn func(s *Snapshot)) {
	o.publishMu.Lock()
	defer o.publishMu.Unlock()

	next := *o.snapshot.Load()
	fn(&next)
	o.snapshot.Store(&next)
}

// fetchAllTags lists tags for every repository concurrently. A failure only
// empties that repository's tags.
func (o *Orchestrator) fetchAllTags(ctx context.Context, names []string) []Repository {
	repos := make([]Repository, len(names))

	var g errgroup.Group
	if o.opts.MaxConcurrency > 0 {
		g.SetLimit(o.opts.MaxConcurrency)
	}

	for i, name := range names {
		g.Go(func() error {
			res := o.LookupTags(ctx, name)
			repos[i] = Repository{Name: name, Tags: res.Tags, TagsFailed: !res.OK()}
			return nil
		})
	}
	g.Wait()

	return repos
}

// LookupTags lists the tags of a repository. Tags is never nil; on failure it
// is empty and Err carries the cause.
func (o *Orchestrator) LookupTags(ctx context.Context, repository string) TagsResult {
	tags, err := o.client.ListTags(ctx, repository)
	if err != nil {
		o.logger.WithField("repository", repository).WithError(err).
			WarnContext(ctx, "Failed to fetch tags for %s", repository)
		return TagsResult{Tags: []string{}, Err: err}
	}
	if tags == nil {
		tags = []string{}
	}
	return TagsResult{Tags: tags}
}

// RepositoryTags lists the tags of a repository, returning an empty list on failure.
func (o *Orchestrator) RepositoryTags(ctx context.Context, repository string) []string {
	return o.LookupTags(ctx, repository).Tags
}

// ImageInfo resolves a single tag. Errors are returned unchanged from the resolver.
func (o *Orchestrator) ImageInfo(ctx context.Context, repository, tag string) (*imageinfo.ImageInfo, error) {
	return o.resolver.Resolve(ctx, repository, tag)
}

// TagDetails lists a repository's tags and resolves the first DetailLimit of
// them. Per-tag failures are recorded on the detail entry; only an invalid
// repository name fails the call.
func (o *Orchestrator) TagDetails(ctx context.Context, repository string) (*RepositoryDetails, error) {
	if err := registry.ValidateRepository(repository); err != nil {
		return nil, err
	}

	res := o.LookupTags(ctx, repository)
	name := registry.ParseRepositoryName(repository)

	details := &RepositoryDetails{
		Repository: repository,
		Namespace:  name.Namespace,
		Name:       name.Name,
		Tags:       res.Tags,
		TagsFailed: !res.OK(),
	}

	selected := res.Tags
	if len(selected) > o.opts.DetailLimit {
		selected = selected[:o.opts.DetailLimit]
		details.Truncated = true
	}
	details.Details = make([]TagDetail, len(selected))

	var g errgroup.Group
	g.SetLimit(o.opts.DetailConcurrency)
	for i, tag := range selected {
		g.Go(func() error {
			detail := TagDetail{Tag: tag}
			info, err := o.resolver.Resolve(ctx, repository, tag)
			if err != nil {
				o.logger.WithFields(map[string]interface{}{
					"repository": repository,
					"tag":        tag,
				}).WithError(err).WarnContext(ctx, "Failed to fetch details for %s:%s", repository, tag)
				detail.Error = err.Error()
			} else {
				detail.Info = info
			}
			details.Details[i] = detail
			return nil
		})
	}
	g.Wait()

	return details, nil
}

// DeleteTag deletes the manifest a tag points to. The flag is false when the
// registry did not report a digest and nothing was deleted.
func (o *Orchestrator) DeleteTag(ctx context.Context, repository, tag string) (bool, error) {
	if err := registry.ValidateTag(repository, tag); err != nil {
		return false, err
	}

	deleted, err := o.client.DeleteTag(ctx, repository, tag)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s:%s: %w", repository, tag, err)
	}

	if deleted {
		o.publishEvent(events.EventTagDeleted, map[string]interface{}{
			"repository": repository,
			"tag":        tag,
		})
	}
	return deleted, nil
}

// Search filters the current snapshot by a case-insensitive substring of the
// repository name. An empty term returns every repository.
func (o *Orchestrator) Search(term string) []Repository {
	return FilterRepositories(o.Snapshot().Repositories, term)
}

// FilterRepositories returns the repositories whose name contains term,
// ignoring case. An empty term returns repos unchanged.
func FilterRepositories(repos []Repository, term string) []Repository {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return repos
	}

	matches := make([]Repository, 0, len(repos))
	for _, repo := range repos {
		if strings.Contains(strings.ToLower(repo.Name), term) {
			matches = append(matches, repo)
		}
	}
	return matches
}

func (o *Orchestrator) publishEvent(eventType string, payload map[string]interface{}) {
	if o.eventBus == nil {
		return
	}
	o.eventBus.Publish(events.NewEvent(eventType, payload))
}
