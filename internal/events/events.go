package events

import (
	"fmt"
	"time"

	"testctl/internal/resulttree"
)

// EventType defines the type of event
type EventType string

const (
	// EventTypeTreeUpdate is published after every applied tree mutation.
	EventTypeTreeUpdate EventType = "tree.update"

	EventTypeRunStarted  EventType = "run.started"
	EventTypeRunFinished EventType = "run.finished"
)

// Event is the base interface for all events in the system
type Event interface {
	Type() EventType
	// Source returns the component that generated this event
	Source() string
	Timestamp() time.Time
	// CorrelationID ties events of one run together. It is empty for
	// events outside a run.
	CorrelationID() string
	String() string
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	EventType     EventType `json:"type"`
	SourceLabel   string    `json:"source"`
	EventTime     time.Time `json:"timestamp"`
	CorrelationId string    `json:"correlation_id,omitempty"`
}

func newBase(t EventType, source, correlationID string) BaseEvent {
	return BaseEvent{
		EventType:     t,
		SourceLabel:   source,
		EventTime:     time.Now(),
		CorrelationId: correlationID,
	}
}

func (e BaseEvent) Type() EventType       { return e.EventType }
func (e BaseEvent) Source() string        { return e.SourceLabel }
func (e BaseEvent) Timestamp() time.Time  { return e.EventTime }
func (e BaseEvent) CorrelationID() string { return e.CorrelationId }

func (e BaseEvent) String() string {
	return string(e.EventType) + " from " + e.SourceLabel
}

// UpdateEvent carries the state of the tree after a mutation. NodeID is the
// identifier that changed; Tree is either the whole tree or the slice from
// the root down to NodeID.
type UpdateEvent struct {
	BaseEvent
	NodeID string                 `json:"nodeid"`
	Status resulttree.Status      `json:"status"`
	Detail string                 `json:"longrepr,omitempty"`
	Tree   *resulttree.Serialized `json:"tree"`
}

// NewUpdateEvent creates a tree update event.
func NewUpdateEvent(source, correlationID, nodeID string, status resulttree.Status, detail string, tree *resulttree.Serialized) *UpdateEvent {
	return &UpdateEvent{
		BaseEvent: newBase(EventTypeTreeUpdate, source, correlationID),
		NodeID:    nodeID,
		Status:    status,
		Detail:    detail,
		Tree:      tree,
	}
}

func (e *UpdateEvent) String() string {
	return fmt.Sprintf("update %q: %s", e.NodeID, e.Status)
}

// RunEvent marks the start and end of a run.
type RunEvent struct {
	BaseEvent
	Target string            `json:"target"`
	Status resulttree.Status `json:"status"`
	Error  string            `json:"error,omitempty"`
}

// NewRunEvent creates a run lifecycle event. runID doubles as the
// correlation id.
func NewRunEvent(t EventType, source, runID, target string, status resulttree.Status, err error) *RunEvent {
	e := &RunEvent{
		BaseEvent: newBase(t, source, runID),
		Target:    target,
		Status:    status,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func (e *RunEvent) String() string {
	if e.Error != "" {
		return fmt.Sprintf("%s %q: %s (%s)", e.EventType, e.Target, e.Status, e.Error)
	}
	return fmt.Sprintf("%s %q: %s", e.EventType, e.Target, e.Status)
}
