package lsm

import (
	"context"
	"sync"
	"time"

	"github.com/shisoft/Nebuchadnezzar/pkg/logging"
)

// SentinelInterval is how often the background merge task wakes.
const SentinelInterval = 750 * time.Millisecond

// RunOnce performs one sentinel pass: it checks the memtable against
// level 1, then each adjacent level pair, merging downward wherever the
// upper side has overflowed.
func (e *Engine) RunOnce() {
	e.mergeMemtableInto(e.levels[0])
	for i := 0; i < len(e.levels)-1; i++ {
		e.mergeLevelInto(e.levels[i], e.levels[i+1])
	}
}

// mergeMemtableInto drains the memtable's left-most
// LevelPageDiffMultiplier*LevelM keys into dst once the memtable holds
// more than that many entries.
func (e *Engine) mergeMemtableInto(dst *Level) {
	threshold := LevelPageDiffMultiplier * LevelM
	if e.memtable.Len() <= threshold {
		return
	}
	drained := e.memtable.DrainLeftmost(threshold)
	dst.AddPage(drained)
}

// mergeLevelInto drains src's LevelPageDiffMultiplier oldest pages into
// one new page of dst once src has overflowed its page-count budget.
func (e *Engine) mergeLevelInto(src, dst *Level) {
	if src.PageCount() <= LevelPageDiffMultiplier {
		return
	}
	drained := src.DrainOldestPages(LevelPageDiffMultiplier)
	dst.AddPage(drained)
}

// Runner drives an Engine's sentinel on a dedicated long-lived goroutine,
// started and stopped explicitly, matching pkg/slab.Runner's lifecycle.
type Runner struct {
	engine *Engine
	log    logging.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner builds a Runner around engine. It logs nowhere until
// SetLogger is called.
func NewRunner(engine *Engine) *Runner {
	return &Runner{engine: engine, log: logging.NopLogger{}}
}

// SetLogger attaches l as the Runner's logger. Must be called before
// Start to take effect for that run.
func (r *Runner) SetLogger(l logging.Logger) { r.log = l }

// Start launches the background sentinel loop. Calling Start twice
// without an intervening Stop is a no-op.
func (r *Runner) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.log.Info("lsm sentinel started", logging.Component("lsm.sentinel"), logging.Duration("interval", SentinelInterval))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(SentinelInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.engine.RunOnce()
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
	r.log.Info("lsm sentinel stopped", logging.Component("lsm.sentinel"))
}
