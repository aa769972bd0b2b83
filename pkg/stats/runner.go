package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shisoft/Nebuchadnezzar/pkg/logging"
	"github.com/shisoft/Nebuchadnezzar/pkg/slab"
)

// RefreshInterval is the balancer-style tick that periodically rebuilds
// the statistics snapshot.
const RefreshInterval = 5 * time.Second

// Runner rebuilds a store's statistics Snapshot on a dedicated long-lived
// goroutine and publishes it for lock-free reads, with the same explicit
// Start/Stop lifecycle as pkg/slab.Runner and pkg/lsm.Runner.
type Runner struct {
	store   *slab.Store
	current atomic.Pointer[Snapshot]
	log     logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner builds a Runner over store. The first snapshot is built
// synchronously so Latest never returns nil once a Runner exists. It logs
// nowhere until SetLogger is called.
func NewRunner(store *slab.Store) *Runner {
	r := &Runner{store: store, log: logging.NopLogger{}}
	r.current.Store(Build(store))
	return r
}

// SetLogger attaches l as the Runner's logger. Must be called before
// Start to take effect for that run.
func (r *Runner) SetLogger(l logging.Logger) { r.log = l }

// Latest returns the most recently published snapshot.
func (r *Runner) Latest() *Snapshot {
	return r.current.Load()
}

// RunOnce rebuilds and publishes a fresh snapshot immediately, for
// on-demand refreshes outside the periodic tick.
func (r *Runner) RunOnce() {
	r.current.Store(Build(r.store))
}

// Start launches the periodic refresh loop. Calling Start twice without an
// intervening Stop is a no-op.
func (r *Runner) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.log.Info("stats refresher started", logging.Component("stats.runner"), logging.Duration("interval", RefreshInterval))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce()
			}
		}
	}()
}

// Stop cancels the periodic loop and waits for it to exit.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.cancel = nil
	r.log.Info("stats refresher stopped", logging.Component("stats.runner"))
}
