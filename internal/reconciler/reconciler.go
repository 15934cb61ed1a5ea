package reconciler

import (
	"context"
	"errors"

	"testctl/internal/nodeid"
	"testctl/internal/resulttree"
	"testctl/internal/scheduler"
	"testctl/internal/watcher"
	"testctl/pkg/logging"
)

// Collector re-collects a changed path.
type Collector interface {
	Collect(ctx context.Context, path string) (resulttree.Node, error)
}

// Executor runs fn on the goroutine that owns the tree.
type Executor interface {
	Do(ctx context.Context, fn func() error) error
}

// Hooks let the owner of the tree react to reconciliation. Changed runs on
// the executor; Collected runs on the reconciler goroutine after the merge
// has been applied. Environments leaving the tree are reported by the
// tree itself (resulttree.Tree.OnDetach).
type Hooks struct {
	Changed   func(id nodeid.ID)
	Collected func(node resulttree.Node)
}

// Reconciler keeps the tree in step with filesystem changes. Events are
// handled one at a time, in arrival order.
type Reconciler struct {
	rootDir   string
	filter    Filter
	collector Collector
	exec      Executor
	tree      *resulttree.Tree
	hooks     Hooks
	queue     *scheduler.Queue[watcher.Event]
}

func New(rootDir string, filter Filter, collector Collector, exec Executor, tree *resulttree.Tree, hooks Hooks) *Reconciler {
	return &Reconciler{
		rootDir:   rootDir,
		filter:    filter,
		collector: collector,
		exec:      exec,
		tree:      tree,
		hooks:     hooks,
		queue:     scheduler.NewQueue[watcher.Event](),
	}
}

// Enqueue filters ev and queues it for handling. It never blocks.
func (r *Reconciler) Enqueue(ev watcher.Event) {
	switch ev.Kind {
	case watcher.Moved:
		if !r.filter.Watched(r.rootDir, ev.Path) && !r.filter.Accept(r.rootDir, ev.Dest) {
			logging.Debug("Reconciler", "Dropping %s event for %s", ev.Kind, ev.Path)
			return
		}
	case watcher.Deleted:
		if !r.filter.Watched(r.rootDir, ev.Path) {
			logging.Debug("Reconciler", "Dropping %s event for %s", ev.Kind, ev.Path)
			return
		}
	default:
		if !r.filter.Accept(r.rootDir, ev.Path) {
			logging.Debug("Reconciler", "Dropping %s event for %s", ev.Kind, ev.Path)
			return
		}
	}
	r.queue.Push(ev)
}

// Run handles queued events until ctx is done or Close is called.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		ev, ok := r.queue.Pop(ctx)
		if !ok {
			return
		}
		r.Handle(ctx, ev)
	}
}

// Close stops Run once the queued events are handled.
func (r *Reconciler) Close() {
	r.queue.Close()
}

// Handle applies one event. Failures are logged and dropped: a change that
// cannot be reconciled never stops the watch pipeline.
func (r *Reconciler) Handle(ctx context.Context, ev watcher.Event) {
	var err error
	switch ev.Kind {
	case watcher.Created, watcher.Modified:
		err = r.update(ctx, ev.Path)
	case watcher.Deleted:
		err = r.remove(ctx, ev.Path)
	case watcher.Moved:
		if r.filter.Watched(r.rootDir, ev.Path) {
			if err := r.remove(ctx, ev.Path); err != nil {
				r.report(ev, err)
			}
		}
		if r.filter.Accept(r.rootDir, ev.Dest) {
			err = r.update(ctx, ev.Dest)
		}
	}
	if err != nil {
		r.report(ev, err)
	}
}

func (r *Reconciler) report(ev watcher.Event, err error) {
	if errors.Is(err, resulttree.ErrNotFound) {
		logging.Debug("Reconciler", "Nothing to reconcile for %s %s: %v", ev.Kind, ev.Path, err)
		return
	}
	logging.Warn("Reconciler", "Failed to reconcile %s %s: %v", ev.Kind, ev.Path, err)
}

func (r *Reconciler) update(ctx context.Context, path string) error {
	node, err := r.collector.Collect(ctx, path)
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}

	err = r.exec.Do(ctx, func() error {
		if err := r.tree.Merge(node); err != nil {
			return err
		}
		if r.hooks.Changed != nil {
			r.hooks.Changed(node.ID())
		}
		return nil
	})
	if err != nil {
		return err
	}

	logging.Debug("Reconciler", "Merged %s", path)
	if r.hooks.Collected != nil {
		r.hooks.Collected(node)
	}
	return nil
}

func (r *Reconciler) remove(ctx context.Context, path string) error {
	id, err := nodeid.FromPath(path, r.rootDir)
	if err != nil {
		return err
	}
	if id.IsRoot() {
		return nil
	}

	return r.exec.Do(ctx, func() error {
		if _, err := r.tree.Remove(id); err != nil {
			return err
		}
		if r.hooks.Changed != nil {
			r.hooks.Changed(id)
		}
		return nil
	})
}
