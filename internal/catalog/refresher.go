package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/chis/regview/internal/logging"
)

// Refresher refreshes an Orchestrator on start, on a fixed interval, and on demand.
type Refresher struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       *logging.Logger

	trigger   chan struct{}
	stopChan  chan struct{}
	done      chan struct{}
	runningMu sync.Mutex
	running   bool
}

// NewRefresher creates a refresher. An interval of zero disables the ticker;
// the refresher then only runs on Start and Trigger.
func NewRefresher(orchestrator *Orchestrator, interval time.Duration) *Refresher {
	return &Refresher{
		orchestrator: orchestrator,
		interval:     interval,
		logger:       orchestrator.logger.WithField("component", "refresher"),
		trigger:      make(chan struct{}, 1),
	}
}

// Start runs an initial refresh and begins the loop. It returns immediately.
// The loop ends on Stop or when ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})

	if r.interval > 0 {
		r.logger.Info("Starting with interval %v", r.interval)
	} else {
		r.logger.Info("Starting without periodic refresh")
	}

	go r.loop(ctx, r.stopChan, r.done)
}

// Stop ends the loop and waits for an in-progress refresh to return.
func (r *Refresher) Stop() {
	r.runningMu.Lock()
	if !r.running {
		r.runningMu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	done := r.done
	r.runningMu.Unlock()

	<-done
	r.logger.Info("Stopped")
}

// Trigger requests a refresh outside the schedule. Requests made while one
// is already pending are merged.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Refresher) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	r.orchestrator.Refresh(ctx)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-tick:
			r.orchestrator.Refresh(ctx)
		case <-r.trigger:
			r.logger.Debug("Manual refresh triggered")
			r.orchestrator.Refresh(ctx)
		}
	}
}
