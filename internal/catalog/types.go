package catalog

import (
	"fmt"
	"time"

	"github.com/chis/regview/internal/events"
	"github.com/chis/regview/internal/imageinfo"
	"github.com/chis/regview/internal/logging"
)

// State is the orchestrator lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRefreshing State = "refreshing"
	StateReady      State = "ready"
	StateDegraded   State = "degraded"
)

const (
	DefaultMaxConcurrency    = 8
	DefaultDetailLimit       = 10
	DefaultDetailConcurrency = 4
	DefaultDisplayURL        = "http://localhost:5000"
)

// Repository is one catalog entry with its tags. Tags is never nil.
type Repository struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`

	// TagsFailed distinguishes a failed tag fetch from a repository with no tags.
	TagsFailed bool `json:"tagsFailed,omitempty"`
}

// Snapshot is an immutable view of the orchestrator state.
type Snapshot struct {
	State        State        `json:"state"`
	Repositories []Repository `json:"repositories"`
	Loading      bool         `json:"loading"`
	Error        string       `json:"error,omitempty"`
	Connected    bool         `json:"connected"`
	RefreshID    string       `json:"refreshId,omitempty"`
	RefreshedAt  time.Time    `json:"refreshedAt,omitempty"`
}

// TagsResult is the outcome of a tag lookup that keeps failures apart from
// repositories that genuinely have no tags.
type TagsResult struct {
	Tags []string
	Err  error
}

// OK reports whether the lookup succeeded.
func (r TagsResult) OK() bool { return r.Err == nil }

// TagDetail is the resolution outcome of a single tag.
type TagDetail struct {
	Tag   string               `json:"tag"`
	Info  *imageinfo.ImageInfo `json:"info,omitempty"`
	Error string               `json:"error,omitempty"`
}

// RepositoryDetails is the bounded per-tag view of one repository.
type RepositoryDetails struct {
	Repository string      `json:"repository"`
	Namespace  string      `json:"namespace,omitempty"`
	Name       string      `json:"name"`
	Tags       []string    `json:"tags"`
	TagsFailed bool        `json:"tagsFailed,omitempty"`
	Details    []TagDetail `json:"details"`
	Truncated  bool        `json:"truncated"`
}

// Options configures an Orchestrator.
type Options struct {
	// MaxConcurrency bounds concurrent tag-list calls during a refresh; <= 0 is unbounded.
	MaxConcurrency int

	// DetailLimit is how many tags TagDetails resolves.
	DetailLimit int

	// DetailConcurrency bounds concurrent resolutions in TagDetails.
	DetailConcurrency int

	// ConnectivityMessage is the error shown when the health probe fails.
	ConnectivityMessage string

	// Coalesce makes concurrent Refresh callers share one in-flight refresh.
	Coalesce bool

	EventBus *events.Bus
	Logger   *logging.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency:      DefaultMaxConcurrency,
		DetailLimit:         DefaultDetailLimit,
		DetailConcurrency:   DefaultDetailConcurrency,
		ConnectivityMessage: ConnectivityMessage(DefaultDisplayURL),
	}
}

// ConnectivityMessage builds the health-failure message for a display URL.
func ConnectivityMessage(displayURL string) string {
	return fmt.Sprintf("Cannot connect to Docker registry at %s", displayURL)
}
