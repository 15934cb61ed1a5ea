package framework

import (
	"context"
	"fmt"

	"testctl/internal/nodeid"
)

// Framework is the external test framework. Collect discovers tests without
// running them. Run executes the tests under target and emits a collection
// message followed by one report per test phase.
type Framework interface {
	Collect(ctx context.Context, path, rootDir string) (*Collection, error)
	Run(ctx context.Context, target nodeid.ID, rootDir string, emit func(Message)) error
}

// Kind tags a Message.
type Kind string

const (
	KindCollection Kind = "collection"
	KindReport     Kind = "report"
	KindDone       Kind = "done"
)

// Message is one item on a run's result stream. Exactly one of Collection
// and Report is set, matching Kind; a done message carries neither.
type Message struct {
	Kind       Kind
	Collection *Collection
	Report     *Report
}

// Done is the sentinel terminating every run stream.
func Done() Message { return Message{Kind: KindDone} }

// Collection is the outcome of a collection step.
type Collection struct {
	// Outcome is "passed" unless the step itself failed, e.g. on an import
	// error. FailureID then names what failed to collect.
	Outcome   string
	FailureID string
	Detail    string
	Items     []string
}

// Failed reports whether the collection step failed.
func (c *Collection) Failed() bool {
	return c.Outcome != "" && c.Outcome != "passed"
}

// Report is the outcome of one test phase.
type Report struct {
	NodeID  string
	Outcome string
	// When is the phase: setup, call or teardown.
	When   string
	Detail string
}

// Relevant drops the noise of passing setup and teardown phases.
func (r *Report) Relevant() bool {
	return r.Outcome != "passed" || r.When == "" || r.When == "call"
}

// ExitError is returned when the framework process exits unsuccessfully.
// Results decoded before the exit are still returned alongside it.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
}
