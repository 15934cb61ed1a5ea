package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"testctl/internal/collector"
	"testctl/internal/events"
	"testctl/internal/framework"
	"testctl/internal/nodeid"
	"testctl/internal/reconciler"
	"testctl/internal/resulttree"
	"testctl/internal/scheduler"
	"testctl/internal/watcher"
	"testctl/pkg/logging"
)

var (
	// ErrNotStarted is returned by commands issued before Start.
	ErrNotStarted = errors.New("orchestrator not started")
	// ErrReportTarget marks a test report for an identifier that is not a
	// leaf of the tree.
	ErrReportTarget = errors.New("test report for unknown test")
)

const source = "orchestrator"

// WatchMode selects how filesystem changes are handled.
type WatchMode string

const (
	// WatchCollect re-collects changed files.
	WatchCollect WatchMode = "collect"
	// WatchAutorun re-collects changed files and then runs them.
	WatchAutorun  WatchMode = "autorun"
	WatchDisabled WatchMode = "disabled"
)

// UpdateMode selects the tree carried by update events.
type UpdateMode string

const (
	UpdateFull  UpdateMode = "full"
	UpdateSlice UpdateMode = "slice"
)

// Config holds configuration for the orchestrator.
type Config struct {
	RootDir         string
	WatchMode       WatchMode
	UpdateMode      UpdateMode
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	Filter          reconciler.Filter
}

// Orchestrator owns the result tree. Every read and mutation of the tree
// happens on the scheduler loop; blocking work (framework runs, collection
// for filesystem changes, environment teardown) happens elsewhere and
// reports back through the loop.
type Orchestrator struct {
	cfg       Config
	fw        framework.Framework
	collector *collector.Collector
	bus       events.EventBus
	loop      *scheduler.Loop

	// loop-owned
	tree *resulttree.Tree

	watcher    *watcher.Watcher
	reconciler *reconciler.Reconciler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	runs    map[string]*Run
}

// New creates an orchestrator for cfg.RootDir. Nothing is collected until
// Start.
func New(cfg Config, fw framework.Framework, opts resulttree.Options, bus events.EventBus) *Orchestrator {
	if cfg.WatchMode == "" {
		cfg.WatchMode = WatchCollect
	}
	if cfg.UpdateMode == "" {
		cfg.UpdateMode = UpdateFull
	}
	if bus == nil {
		bus = events.NewEventBus()
	}
	opts.RootDir = cfg.RootDir

	o := &Orchestrator{
		cfg:       cfg,
		fw:        fw,
		collector: collector.New(fw, opts),
		bus:       bus,
		loop:      scheduler.NewLoop(),
		tree:      resulttree.NewTree(opts),
		runs:      make(map[string]*Run),
	}
	o.tree.OnDetach(o.stopDetachedEnvironments)
	return o
}

// EventBus returns the bus update events are published on.
func (o *Orchestrator) EventBus() events.EventBus { return o.bus }

// Start collects the root directory into the tree and, unless watching is
// disabled, starts following filesystem changes.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.started = true
	o.mu.Unlock()

	go o.loop.Run(o.ctx)

	logging.Info("Orchestrator", "Collecting tests from %s", o.cfg.RootDir)
	root, err := o.collector.Collect(o.ctx, o.cfg.RootDir)
	if err != nil {
		o.cancel()
		return fmt.Errorf("failed to collect tests from %s: %w", o.cfg.RootDir, err)
	}
	if b, ok := root.(*resulttree.BranchNode); root == nil || (ok && b.Len() == 0) {
		o.cancel()
		return fmt.Errorf("failed to collect any tests from %s", o.cfg.RootDir)
	}

	err = o.loop.Do(ctx, func() error {
		if err := o.tree.Merge(root); err != nil {
			return err
		}
		logging.Debug("Orchestrator", "Initial tree:\n%s", o.tree.Root().PrettyFormat())
		return nil
	})
	if err != nil {
		o.cancel()
		return fmt.Errorf("failed to build result tree: %w", err)
	}

	if o.cfg.WatchMode != WatchDisabled {
		if err := o.startWatching(); err != nil {
			o.cancel()
			return err
		}
	}
	return nil
}

// Stop stops every started environment, shuts the watch pipeline down and
// stops the loop. Runs still in flight end with scheduler.ErrStopped.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.started || o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	o.mu.Unlock()

	o.stopAllEnvironments(ctx)

	if o.watcher != nil {
		if err := o.watcher.Close(); err != nil {
			logging.Warn("Orchestrator", "Closing the filesystem watcher: %v", err)
		}
	}
	if o.reconciler != nil {
		o.reconciler.Close()
	}

	o.cancel()
	<-o.loop.Done()
	o.wg.Wait()

	o.mu.Lock()
	pending := make([]*Run, 0, len(o.runs))
	for _, r := range o.runs {
		pending = append(pending, r)
	}
	o.mu.Unlock()
	for _, r := range pending {
		r.fail(scheduler.ErrStopped)
		r.finish(resulttree.StatusInit)
	}

	stats := o.bus.Stats()
	logging.Debug("Orchestrator", "Published %d events, %d delivered, %d dropped", stats.Published, stats.Delivered, stats.Dropped)
	logging.Info("Orchestrator", "Stopped")
	return nil
}

// do runs fn on the loop once the orchestrator has started.
func (o *Orchestrator) do(ctx context.Context, fn func() error) error {
	o.mu.Lock()
	started := o.started
	o.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	return o.loop.Do(ctx, fn)
}

// GetTree serializes the whole tree.
func (o *Orchestrator) GetTree(ctx context.Context) (*resulttree.Serialized, error) {
	var out *resulttree.Serialized
	err := o.do(ctx, func() error {
		out = resulttree.Serialize(o.tree.Root())
		return nil
	})
	return out, err
}

// GetNode serializes the subtree at raw.
func (o *Orchestrator) GetNode(ctx context.Context, raw string) (*resulttree.Serialized, error) {
	id, err := nodeid.Parse(raw)
	if err != nil {
		return nil, err
	}
	var out *resulttree.Serialized
	err = o.do(ctx, func() error {
		node, err := o.tree.Lookup(id)
		if err != nil {
			return err
		}
		out = resulttree.Serialize(node)
		return nil
	})
	return out, err
}

// PrettyTree renders the tree for diagnostics.
func (o *Orchestrator) PrettyTree(ctx context.Context) (string, error) {
	var out string
	err := o.do(ctx, func() error {
		out = o.tree.Root().PrettyFormat()
		return nil
	})
	return out, err
}

// emit publishes an update for id. It must run on the loop. An identifier
// that no longer exists is reported through its nearest surviving
// ancestor.
func (o *Orchestrator) emit(id nodeid.ID, correlationID string) {
	node, err := o.tree.Lookup(id)
	for err != nil && !id.IsRoot() {
		id, _ = id.Parent()
		node, err = o.tree.Lookup(id)
	}
	if err != nil {
		node = o.tree.Root()
	}

	var detail string
	if leaf, ok := node.(*resulttree.LeafNode); ok {
		detail = leaf.Detail()
	}

	var serialized *resulttree.Serialized
	if o.cfg.UpdateMode == UpdateSlice {
		serialized, err = resulttree.SerializeSlice(o.tree, id)
		if err != nil {
			logging.Error("Orchestrator", err, "Failed to serialize %s", id)
			return
		}
	} else {
		serialized = resulttree.Serialize(o.tree.Root())
	}

	o.bus.Publish(events.NewUpdateEvent(source, correlationID, id.String(), node.Status(), detail, serialized))
}
