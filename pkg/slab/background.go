package slab

import (
	"context"
	"sync"
	"time"

	"github.com/shisoft/Nebuchadnezzar/pkg/logging"
)

// CleanerInterval is how often the background cleaner wakes to run one
// compaction pass.
const CleanerInterval = 10 * time.Millisecond

// Runner drives a Cleaner on a dedicated long-lived goroutine, started and
// stopped explicitly rather than via a package-level singleton.
type Runner struct {
	cleaner *Cleaner
	log     logging.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner builds a Runner around cleaner. It logs nowhere until
// SetLogger is called.
func NewRunner(cleaner *Cleaner) *Runner {
	return &Runner{cleaner: cleaner, log: logging.NopLogger{}}
}

// SetLogger attaches l as the Runner's logger. Must be called before
// Start to take effect for that run.
func (r *Runner) SetLogger(l logging.Logger) { r.log = l }

// Start launches the background loop. Calling Start twice without an
// intervening Stop is a no-op.
func (r *Runner) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.log.Info("slab cleaner started", logging.Component("slab.cleaner"), logging.Duration("interval", CleanerInterval))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(CleanerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reclaimed := r.cleaner.RunOnce()
				if reclaimed > 0 {
					r.log.Debug("cleaner pass reclaimed space", logging.Component("slab.cleaner"), logging.Int("bytes_reclaimed", reclaimed))
				}
			}
		}
	}()
}

// Stop cancels the background loop and waits for it to exit.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.cancel = nil
	r.log.Info("slab cleaner stopped", logging.Component("slab.cleaner"))
}
