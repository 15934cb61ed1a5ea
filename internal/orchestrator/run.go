package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"testctl/internal/nodeid"
	"testctl/internal/resulttree"
)

// Run is one invocation of the framework against a target identifier.
type Run struct {
	id     string
	target nodeid.ID
	done   chan struct{}

	// loop-owned
	gotFirst bool

	mu     sync.Mutex
	err    error
	status resulttree.Status
	once   sync.Once
}

func newRun(target nodeid.ID) *Run {
	return &Run{
		id:     uuid.NewString(),
		target: target,
		done:   make(chan struct{}),
	}
}

func (r *Run) ID() string { return r.id }

func (r *Run) Target() nodeid.ID { return r.target }

// Done is closed once the run has finished and its worker has exited.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run is done and returns Err.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is the first error seen during the run: a framework failure or a
// report that did not match the tree.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Status is the target's status when the run finished.
func (r *Run) Status() resulttree.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *Run) finish(status resulttree.Status) {
	r.once.Do(func() {
		r.mu.Lock()
		r.status = status
		r.mu.Unlock()
		close(r.done)
	})
}
