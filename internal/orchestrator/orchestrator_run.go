package orchestrator

import (
	"context"
	"fmt"

	"testctl/internal/events"
	"testctl/internal/framework"
	"testctl/internal/nodeid"
	"testctl/internal/resulttree"
	"testctl/internal/scheduler"
	"testctl/pkg/logging"
)

const runBuffer = 64

// RunTests runs the tests under raw, which must already be in the tree.
// It returns once the run is launched; progress arrives as update events
// and completion through the returned Run.
//
// Overlapping runs are not deduplicated. Whichever update lands last wins.
func (o *Orchestrator) RunTests(ctx context.Context, raw string) (*Run, error) {
	id, err := nodeid.Parse(raw)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Once posted, the task marks the target RUNNING, so it must not be
	// abandoned without a worker to finish it.
	run := newRun(id)
	err = o.do(context.WithoutCancel(ctx), func() error {
		node, err := o.tree.Lookup(id)
		if err != nil {
			return err
		}
		if err := resulttree.SetStatus(node, resulttree.StatusRunning); err != nil {
			return err
		}
		o.emit(id, run.id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil, scheduler.ErrStopped
	}
	o.runs[run.id] = run
	o.wg.Add(1)
	o.mu.Unlock()

	logging.Info("Orchestrator", "Running %s (run %s)", displayID(id), run.id)
	o.bus.Publish(events.NewRunEvent(events.EventTypeRunStarted, source, run.id, id.String(), resulttree.StatusRunning, nil))

	results := make(chan framework.Message, runBuffer)
	exited := make(chan struct{})
	go o.worker(run, results, exited)

	scheduler.Drain(o.loop, results, o.drainOptions(), func(msg framework.Message) bool {
		return o.applyRunMessage(run, msg, exited)
	})
	return run, nil
}

// worker drives the framework for one run. The stream it produces always
// ends with the done sentinel.
func (o *Orchestrator) worker(run *Run, results chan<- framework.Message, exited chan<- struct{}) {
	defer o.wg.Done()
	defer close(exited)

	send := func(msg framework.Message) {
		select {
		case results <- msg:
		case <-o.ctx.Done():
		}
	}

	if err := o.fw.Run(o.ctx, run.target, o.cfg.RootDir, send); err != nil {
		logging.Error("Orchestrator", err, "Run %s of %s failed", run.id, displayID(run.target))
		run.fail(err)
	}
	send(framework.Done())
}

// applyRunMessage folds one message into the tree. It runs on the loop and
// returns false once the stream has ended.
func (o *Orchestrator) applyRunMessage(run *Run, msg framework.Message, exited <-chan struct{}) bool {
	switch msg.Kind {
	case framework.KindCollection:
		if run.gotFirst {
			logging.Debug("Orchestrator", "Ignoring extra collection in run %s", run.id)
			return true
		}
		run.gotFirst = true
		o.applyRunCollection(run, msg.Collection)

	case framework.KindReport:
		run.gotFirst = true
		if err := o.applyReport(msg.Report); err != nil {
			logging.Error("Orchestrator", err, "Run %s produced an unusable report", run.id)
			run.fail(err)
			return true
		}
		o.emit(nodeid.MustParse(msg.Report.NodeID), run.id)

	case framework.KindDone:
		status := resulttree.StatusInit
		if node, err := o.tree.Lookup(run.target); err == nil {
			status = node.Status()
		}
		go o.join(run, status, exited)
		return false
	}
	return true
}

func (o *Orchestrator) applyRunCollection(run *Run, coll *framework.Collection) {
	fragment, err := o.collector.RunFragment(coll, run.target)
	if err != nil {
		logging.Error("Orchestrator", err, "Run %s returned an unusable collection", run.id)
		run.fail(err)
		return
	}
	if fragment == nil {
		logging.Warn("Orchestrator", "Run %s did not collect %s", run.id, displayID(run.target))
		return
	}

	if err := o.tree.Merge(fragment); err != nil {
		logging.Error("Orchestrator", err, "Failed to merge collection of run %s", run.id)
		run.fail(err)
		return
	}

	if node, err := o.tree.Lookup(run.target); err == nil {
		markRunning(node)
	}
	o.emit(fragment.ID(), run.id)
}

// markRunning flags the tests under n that have no outcome yet as RUNNING.
// Leaves carrying a collection failure keep it.
func markRunning(n resulttree.Node) {
	switch n := n.(type) {
	case *resulttree.LeafNode:
		if n.Status() == resulttree.StatusInit {
			_ = n.SetStatus(resulttree.StatusRunning)
		}
	case *resulttree.BranchNode:
		for _, c := range n.Children() {
			markRunning(c)
		}
	}
}

func (o *Orchestrator) applyReport(report *framework.Report) error {
	id, err := nodeid.Parse(report.NodeID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReportTarget, err)
	}
	node, err := o.tree.Lookup(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReportTarget, err)
	}
	leaf, ok := node.(*resulttree.LeafNode)
	if !ok {
		return fmt.Errorf("%w: %s is a group", ErrReportTarget, id)
	}
	status, err := resulttree.ParseStatus(report.Outcome)
	if err != nil {
		return err
	}
	leaf.ApplyReport(status, report.Detail)
	return nil
}

// join waits for the worker to exit, then completes the run.
func (o *Orchestrator) join(run *Run, status resulttree.Status, exited <-chan struct{}) {
	<-exited

	o.mu.Lock()
	delete(o.runs, run.id)
	o.mu.Unlock()

	run.finish(status)
	logging.Info("Orchestrator", "Run %s of %s finished: %s", run.id, displayID(run.target), status)
	o.bus.Publish(events.NewRunEvent(events.EventTypeRunFinished, source, run.id, run.target.String(), status, run.Err()))
}

func (o *Orchestrator) drainOptions() scheduler.DrainOptions {
	return scheduler.DrainOptions{
		PollInterval:    o.cfg.PollInterval,
		MaxPollInterval: o.cfg.MaxPollInterval,
	}
}

func displayID(id nodeid.ID) string {
	if id.IsRoot() {
		return "all tests"
	}
	return id.String()
}
