package orchestrator

import (
	"fmt"

	"testctl/internal/nodeid"
	"testctl/internal/reconciler"
	"testctl/internal/resulttree"
	"testctl/internal/scheduler"
	"testctl/internal/watcher"
	"testctl/pkg/logging"
)

// startWatching wires the filesystem pipeline: watcher events are drained
// on the loop into the reconciler queue, and the reconciler applies them
// one at a time from its own goroutine.
func (o *Orchestrator) startWatching() error {
	w, err := watcher.New(o.cfg.RootDir, o.cfg.Filter.IgnoredDirs)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", o.cfg.RootDir, err)
	}

	hooks := reconciler.Hooks{
		Changed: func(id nodeid.ID) { o.emit(id, "") },
	}
	if o.cfg.WatchMode == WatchAutorun {
		hooks.Collected = o.autorun
	}

	r := reconciler.New(o.cfg.RootDir, o.cfg.Filter, o.collector, o.loop, o.tree, hooks)

	o.mu.Lock()
	o.watcher = w
	o.reconciler = r
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		r.Run(o.ctx)
	}()

	scheduler.Drain(o.loop, w.Events(), o.drainOptions(), func(ev watcher.Event) bool {
		logging.Debug("Orchestrator", "Filesystem %s: %s", ev.Kind, ev.Path)
		r.Enqueue(ev)
		return true
	})
	w.Start()

	logging.Info("Orchestrator", "Watching %s for changes (%s)", o.cfg.RootDir, o.cfg.WatchMode)
	return nil
}

// autorun runs freshly collected files. Failed collections have nothing to
// run.
func (o *Orchestrator) autorun(node resulttree.Node) {
	if _, ok := node.(*resulttree.BranchNode); !ok {
		return
	}
	if _, err := o.RunTests(o.ctx, node.ID().String()); err != nil {
		logging.Warn("Orchestrator", "Failed to run %s after change: %v", node.ID(), err)
	}
}
