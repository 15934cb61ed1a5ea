package orchestrator

import (
	"context"

	"testctl/internal/events"
	"testctl/internal/resulttree"
)

// Adapter exposes the orchestrator to the transport layer in terms of plain
// identifiers and serialized trees.
type Adapter struct {
	orchestrator *Orchestrator
}

// NewAdapter creates a new API adapter for the orchestrator
func NewAdapter(o *Orchestrator) *Adapter {
	return &Adapter{orchestrator: o}
}

// GetTree returns the whole serialized tree.
func (a *Adapter) GetTree(ctx context.Context) (*resulttree.Serialized, error) {
	return a.orchestrator.GetTree(ctx)
}

// GetNode returns the serialized subtree at id.
func (a *Adapter) GetNode(ctx context.Context, id string) (*resulttree.Serialized, error) {
	return a.orchestrator.GetNode(ctx, id)
}

// RunTests launches a run and returns its ID without waiting for it.
func (a *Adapter) RunTests(ctx context.Context, id string) (string, error) {
	run, err := a.orchestrator.RunTests(ctx, id)
	if err != nil {
		return "", err
	}
	return run.ID(), nil
}

func (a *Adapter) StartEnvironment(ctx context.Context, id string) error {
	return a.orchestrator.StartEnvironment(ctx, id)
}

func (a *Adapter) StopEnvironment(ctx context.Context, id string) error {
	return a.orchestrator.StopEnvironment(ctx, id)
}

// SubscribeUpdates returns a channel subscription to tree updates.
func (a *Adapter) SubscribeUpdates(bufferSize int) *events.EventSubscription {
	return a.orchestrator.bus.SubscribeChannel(events.FilterByType(events.EventTypeTreeUpdate), bufferSize)
}

func (a *Adapter) Unsubscribe(sub *events.EventSubscription) {
	a.orchestrator.bus.Unsubscribe(sub)
}
