package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chis/regview/internal/events"
	"github.com/chis/regview/internal/imageinfo"
	"github.com/chis/regview/internal/registry"
	"github.com/chis/regview/internal/testutil"
)

func newTestOrchestrator(client registry.Client, mutate func(*Options)) *Orchestrator {
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	return New(client, imageinfo.NewResolver(client), opts)
}

func repoNames(repos []Repository) []string {
	names := make([]string, 0, len(repos))
	for _, r := range repos {
		names = append(names, r.Name)
	}
	return names
}

func TestNewStartsIdle(t *testing.T) {
	o := newTestOrchestrator(testutil.NewMockClient(), nil)

	snap := o.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.NotNil(t, snap.Repositories)
	assert.Empty(t, snap.Repositories)
	assert.False(t, snap.Loading)
}

func TestRefreshPartialTagFailure(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("app/web", "1.0", "latest")
	client.AddRepository("app/api")
	client.TagErrors["app/api"] = testutil.ErrMockUnavailable

	o := newTestOrchestrator(client, nil)
	snap := o.Refresh(context.Background())

	assert.Equal(t, StateReady, snap.State)
	assert.True(t, snap.Connected)
	assert.Empty(t, snap.Error)
	assert.False(t, snap.Loading)
	assert.NotEmpty(t, snap.RefreshID)
	assert.False(t, snap.RefreshedAt.IsZero())

	require.Len(t, snap.Repositories, 2)
	assert.Equal(t, Repository{Name: "app/web", Tags: []string{"1.0", "latest"}}, snap.Repositories[0])
	assert.Equal(t, "app/api", snap.Repositories[1].Name)
	assert.NotNil(t, snap.Repositories[1].Tags)
	assert.Empty(t, snap.Repositories[1].Tags)
	assert.True(t, snap.Repositories[1].TagsFailed)

	assert.Equal(t, snap, o.Snapshot())
}

func TestRefreshHealthFailureWithCatalog(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("nginx", "latest")
	client.SetHealthy(false)

	o := newTestOrchestrator(client, func(opts *Options) {
		opts.ConnectivityMessage = ConnectivityMessage("http://registry.lan:5000")
	})
	snap := o.Refresh(context.Background())

	assert.Equal(t, StateReady, snap.State)
	assert.False(t, snap.Connected)
	assert.Equal(t, "Cannot connect to Docker registry at http://registry.lan:5000", snap.Error)
	require.Len(t, snap.Repositories, 1)
	assert.Equal(t, []string{"latest"}, snap.Repositories[0].Tags)
}

func TestRefreshCatalogFailure(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("nginx", "latest")

	o := newTestOrchestrator(client, nil)
	first := o.Refresh(context.Background())
	require.Len(t, first.Repositories, 1)

	client.CatalogError = errors.New("list repositories: registry returned 500")
	snap := o.Refresh(context.Background())

	assert.Equal(t, StateDegraded, snap.State)
	assert.False(t, snap.Connected)
	assert.Equal(t, "list repositories: registry returned 500", snap.Error)
	assert.NotNil(t, snap.Repositories)
	assert.Empty(t, snap.Repositories)
	assert.False(t, snap.Loading)
}

func TestRefreshCancelledKeepsPreviousSnapshot(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("app/api", "v1", "v2")
	client.AddRepository("app/web", "latest")

	o := newTestOrchestrator(client, nil)
	first := o.Refresh(context.Background())
	require.Len(t, first.Repositories, 2)

	client.TagsDelay = 200 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	snap := o.Refresh(ctx)

	assert.Equal(t, StateReady, snap.State)
	assert.False(t, snap.Loading)
	assert.True(t, snap.Connected)
	assert.Empty(t, snap.Error)
	assert.Equal(t, first.Repositories, snap.Repositories)
	assert.Equal(t, first.Repositories, o.Snapshot().Repositories)
}

func TestRefreshCancelledBeforeFirstResult(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("app/api", "v1")

	o := newTestOrchestrator(client, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := o.Refresh(ctx)

	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Repositories)
}

func TestRestorable(t *testing.T) {
	tests := []struct {
		name string
		prev Snapshot
		want State
	}{
		{"ready stays ready", Snapshot{State: StateReady}, StateReady},
		{"degraded stays degraded", Snapshot{State: StateDegraded}, StateDegraded},
		{"refreshing after a result", Snapshot{State: StateRefreshing, RefreshedAt: time.Now()}, StateReady},
		{"refreshing before any result", Snapshot{State: StateRefreshing}, StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, restorable(tt.prev).State)
		})
	}
}

func TestRefreshEmptyCatalog(t *testing.T) {
	o := newTestOrchestrator(testutil.NewMockClient(), nil)

	snap := o.Refresh(context.Background())
	assert.Equal(t, StateReady, snap.State)
	assert.True(t, snap.Connected)
	assert.Empty(t, snap.Repositories)
}

func TestRefreshBoundsTagConcurrency(t *testing.T) {
	client := testutil.NewMockClient()
	for i := 0; i < 10; i++ {
		client.AddRepository(fmt.Sprintf("repo%d", i), "latest")
	}
	client.TagsDelay = 20 * time.Millisecond

	o := newTestOrchestrator(client, func(opts *Options) { opts.MaxConcurrency = 2 })
	snap := o.Refresh(context.Background())

	require.Len(t, snap.Repositories, 10)
	assert.Equal(t, 10, client.TagCalls)
	assert.LessOrEqual(t, client.MaxConcurrentTagCalls(), 2)

	// Order follows the catalog, not completion order.
	for i, repo := range snap.Repositories {
		assert.Equal(t, fmt.Sprintf("repo%d", i), repo.Name)
	}
}

func TestRefreshUnboundedConcurrency(t *testing.T) {
	client := testutil.NewMockClient()
	for i := 0; i < 6; i++ {
		client.AddRepository(fmt.Sprintf("repo%d", i), "latest")
	}
	client.TagsDelay = 50 * time.Millisecond

	o := newTestOrchestrator(client, func(opts *Options) { opts.MaxConcurrency = 0 })
	o.Refresh(context.Background())

	assert.Greater(t, client.MaxConcurrentTagCalls(), 1)
}

// blockingCatalog returns a catalog func whose first call blocks until release
// is closed and returns first; later calls return later immediately.
func blockingCatalog(entered chan<- struct{}, release <-chan struct{}, first, later []string) func(context.Context) ([]string, error) {
	var mu sync.Mutex
	calls := 0
	return func(ctx context.Context) ([]string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			close(entered)
			<-release
			return first, nil
		}
		return later, nil
	}
}

func TestRefreshLastWriterWins(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("old")
	client.AddRepository("new")

	entered := make(chan struct{})
	release := make(chan struct{})
	client.ListRepositoriesFunc = blockingCatalog(entered, release, []string{"old"}, []string{"new"})

	o := newTestOrchestrator(client, nil)

	slowDone := make(chan Snapshot)
	go func() { slowDone <- o.Refresh(context.Background()) }()
	<-entered

	during := o.Snapshot()
	assert.Equal(t, StateRefreshing, during.State)
	assert.True(t, during.Loading)

	fast := o.Refresh(context.Background())
	assert.Equal(t, []string{"new"}, repoNames(fast.Repositories))
	assert.True(t, fast.Loading, "loading must stay set while the slow refresh runs")
	assert.Equal(t, []string{"new"}, repoNames(o.Snapshot().Repositories))

	close(release)
	slow := <-slowDone

	assert.Equal(t, []string{"old"}, repoNames(slow.Repositories))
	final := o.Snapshot()
	assert.Equal(t, []string{"old"}, repoNames(final.Repositories), "the refresh finishing last wins")
	assert.False(t, final.Loading)
	assert.Equal(t, StateReady, final.State)
}

func TestRefreshCoalesce(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("nginx", "latest")

	entered := make(chan struct{})
	release := make(chan struct{})
	client.ListRepositoriesFunc = blockingCatalog(entered, release, []string{"nginx"}, []string{"unexpected"})

	o := newTestOrchestrator(client, func(opts *Options) { opts.Coalesce = true })

	results := make(chan Snapshot, 2)
	go func() { results <- o.Refresh(context.Background()) }()
	<-entered
	go func() { results <- o.Refresh(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	close(release)

	a, b := <-results, <-results
	assert.Equal(t, []string{"nginx"}, repoNames(a.Repositories))
	assert.Equal(t, a.RefreshID, b.RefreshID)
	assert.Equal(t, 1, client.CatalogCalls)
	assert.False(t, o.Snapshot().Loading)
}

func TestRefreshClearsPreviousError(t *testing.T) {
	client := testutil.NewMockClient()
	client.CatalogError = errors.New("boom")

	o := newTestOrchestrator(client, nil)
	require.Equal(t, "boom", o.Refresh(context.Background()).Error)

	entered := make(chan struct{})
	release := make(chan struct{})
	client.ListRepositoriesFunc = blockingCatalog(entered, release, []string{}, nil)

	done := make(chan struct{})
	go func() {
		o.Refresh(context.Background())
		close(done)
	}()
	<-entered

	assert.Empty(t, o.Snapshot().Error)
	close(release)
	<-done
	assert.Equal(t, StateReady, o.Snapshot().State)
}

func TestRefreshPublishesEvents(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("nginx", "latest")

	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe(events.Wildcard)
	defer unsubscribe()

	o := newTestOrchestrator(client, func(opts *Options) { opts.EventBus = bus })
	snap := o.Refresh(context.Background())

	started := <-ch
	assert.Equal(t, events.EventRefreshStarted, started.Type)
	assert.Equal(t, snap.RefreshID, started.Payload["refresh_id"])

	completed := <-ch
	assert.Equal(t, events.EventRefreshCompleted, completed.Type)
	assert.Equal(t, 1, completed.Payload["repositories"])
	assert.Equal(t, string(StateReady), completed.Payload["state"])
}

func TestLookupTags(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("empty")
	client.AddRepository("broken")
	client.TagErrors["broken"] = testutil.ErrMockTimeout

	o := newTestOrchestrator(client, nil)

	empty := o.LookupTags(context.Background(), "empty")
	assert.True(t, empty.OK())
	assert.NotNil(t, empty.Tags)
	assert.Empty(t, empty.Tags)

	broken := o.LookupTags(context.Background(), "broken")
	assert.False(t, broken.OK())
	assert.ErrorIs(t, broken.Err, testutil.ErrMockTimeout)
	assert.NotNil(t, broken.Tags)

	assert.Equal(t, []string{}, o.RepositoryTags(context.Background(), "broken"))
	assert.Equal(t, []string{}, o.RepositoryTags(context.Background(), "missing"))
}

func TestQueriesDoNotMutateSnapshot(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("nginx", "latest")
	client.AddImage("nginx", "latest", []int64{1}, nil)

	o := newTestOrchestrator(client, nil)
	before := o.Refresh(context.Background())

	o.RepositoryTags(context.Background(), "nginx")
	_, _ = o.ImageInfo(context.Background(), "nginx", "latest")
	_, _ = o.ImageInfo(context.Background(), "nginx", "missing")
	_, _ = o.TagDetails(context.Background(), "nginx")

	assert.Equal(t, before, o.Snapshot())
}

func TestImageInfoPropagatesResolverError(t *testing.T) {
	o := newTestOrchestrator(testutil.NewMockClient(), nil)

	info, err := o.ImageInfo(context.Background(), "nginx", "missing")
	assert.Nil(t, info)

	var aggErr *imageinfo.AggregationError
	require.True(t, errors.As(err, &aggErr))
	assert.True(t, aggErr.NotFound())
}

func TestTagDetailsBoundedAndPartial(t *testing.T) {
	client := testutil.NewMockClient()
	tags := make([]string, 12)
	for i := range tags {
		tags[i] = fmt.Sprintf("v%d", i)
	}
	client.AddRepository("team/app/api", tags...)
	for _, tag := range tags {
		client.AddImage("team/app/api", tag, []int64{10, 20, 5}, testutil.NewImageConfig("2024-05-01T00:00:00Z"))
	}
	client.ManifestErrors["team/app/api:v3"] = testutil.ErrMockUnavailable

	o := newTestOrchestrator(client, nil)
	details, err := o.TagDetails(context.Background(), "team/app/api")
	require.NoError(t, err)

	assert.Equal(t, "team/app", details.Namespace)
	assert.Equal(t, "api", details.Name)
	assert.Len(t, details.Tags, 12)
	assert.True(t, details.Truncated)
	require.Len(t, details.Details, DefaultDetailLimit)
	assert.Equal(t, DefaultDetailLimit, client.ManifestCalls)

	for i, d := range details.Details {
		assert.Equal(t, tags[i], d.Tag)
		if d.Tag == "v3" {
			assert.Nil(t, d.Info)
			assert.Equal(t, "failed to fetch image info: connection refused", d.Error)
			continue
		}
		require.NotNil(t, d.Info, d.Tag)
		assert.Equal(t, int64(35), d.Info.Size)
		assert.Empty(t, d.Error)
	}
}

func TestTagDetailsTagFailure(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("nginx")
	client.TagErrors["nginx"] = testutil.ErrMockUnavailable

	o := newTestOrchestrator(client, nil)
	details, err := o.TagDetails(context.Background(), "nginx")
	require.NoError(t, err)

	assert.True(t, details.TagsFailed)
	assert.Empty(t, details.Tags)
	assert.Empty(t, details.Details)
	assert.False(t, details.Truncated)
}

func TestTagDetailsInvalidRepository(t *testing.T) {
	o := newTestOrchestrator(testutil.NewMockClient(), nil)

	_, err := o.TagDetails(context.Background(), "Not Valid")
	assert.ErrorIs(t, err, registry.ErrInvalidReference)
}

func TestDeleteTag(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("nginx", "old", "latest")
	client.AddImage("nginx", "old", []int64{1}, nil)

	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe(events.EventTagDeleted)
	defer unsubscribe()

	o := newTestOrchestrator(client, func(opts *Options) { opts.EventBus = bus })

	deleted, err := o.DeleteTag(context.Background(), "nginx", "old")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"nginx:old"}, client.DeletedRefs())

	ev := <-ch
	assert.Equal(t, "nginx", ev.Payload["repository"])
	assert.Equal(t, "old", ev.Payload["tag"])

	// "latest" has no manifest in the mock, so no digest is reported.
	deleted, err = o.DeleteTag(context.Background(), "nginx", "latest")
	require.NoError(t, err)
	assert.False(t, deleted)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for no-op delete: %v", ev)
	default:
	}
}

func TestDeleteTagErrors(t *testing.T) {
	client := testutil.NewMockClient()
	o := newTestOrchestrator(client, nil)

	_, err := o.DeleteTag(context.Background(), "nginx", "bad tag")
	assert.ErrorIs(t, err, registry.ErrInvalidReference)

	client.DeleteError = testutil.ErrMockUnavailable
	_, err = o.DeleteTag(context.Background(), "nginx", "old")
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrMockUnavailable)
	assert.Contains(t, err.Error(), "failed to delete nginx:old")
}

func TestSearch(t *testing.T) {
	client := testutil.NewMockClient()
	client.AddRepository("app/Web-Frontend", "latest")
	client.AddRepository("app/api", "latest")
	client.AddRepository("nginx", "latest")

	o := newTestOrchestrator(client, nil)
	assert.Empty(t, o.Search("web"), "search before refresh sees an empty snapshot")

	o.Refresh(context.Background())

	assert.Equal(t, []string{"app/Web-Frontend"}, repoNames(o.Search("WEB")))
	assert.Equal(t, []string{"app/Web-Frontend", "app/api"}, repoNames(o.Search("app/")))
	assert.Len(t, o.Search("  "), 3)
	assert.Empty(t, o.Search("postgres"))
}
