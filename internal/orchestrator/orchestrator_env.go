package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"testctl/internal/environment"
	"testctl/internal/nodeid"
	"testctl/internal/resulttree"
	"testctl/pkg/logging"
)

// environmentAt returns the environment of the branch at id. It must run on
// the loop.
func (o *Orchestrator) environmentAt(id nodeid.ID) (*environment.Environment, error) {
	branch, err := o.tree.LookupBranch(id)
	if err != nil {
		return nil, err
	}
	env := branch.Environment()
	if env == nil {
		return nil, fmt.Errorf("%w: %s", environment.ErrNoEnvironment, displayID(id))
	}
	return env, nil
}

// StartEnvironment starts the environment attached to the branch at raw.
func (o *Orchestrator) StartEnvironment(ctx context.Context, raw string) error {
	id, err := nodeid.Parse(raw)
	if err != nil {
		return err
	}
	return o.do(ctx, func() error {
		env, err := o.environmentAt(id)
		if err != nil {
			return err
		}
		if err := env.Start(); err != nil {
			return err
		}
		o.emit(id, "")
		return nil
	})
}

// StopEnvironment stops the environment attached to the branch at raw. The
// STOPPING state is published before the blocking teardown starts, and the
// final state once it has finished. A failed teardown leaves the
// environment STOPPING and is returned.
func (o *Orchestrator) StopEnvironment(ctx context.Context, raw string) error {
	id, err := nodeid.Parse(raw)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// An abandoned first phase would strand the environment in STOPPING.
	var env *environment.Environment
	err = o.do(context.WithoutCancel(ctx), func() error {
		env, err = o.environmentAt(id)
		if err != nil {
			return err
		}
		if err := env.BeginStop(); err != nil {
			return err
		}
		o.emit(id, "")
		return nil
	})
	if err != nil {
		return err
	}

	stopErr := env.Stop()
	o.loop.Post(func() { o.emit(id, "") })
	return stopErr
}

// stopEnvironment runs both stop phases outside any command. It is used
// for environments whose branch has left the tree and during shutdown.
func stopEnvironment(env *environment.Environment) error {
	if env.State() != environment.StateStarted {
		return nil
	}
	if err := env.BeginStop(); err != nil {
		if errors.Is(err, environment.ErrInvalidState) {
			// another teardown got there first
			return nil
		}
		return err
	}
	return env.Stop()
}

// stopDetachedEnvironments stops the started environments of branches that
// left the tree, whether removed, pruned or dropped by a merge. It runs on
// the loop and does not block it.
func (o *Orchestrator) stopDetachedEnvironments(envs []*environment.Environment) {
	for _, env := range envs {
		if env.State() != environment.StateStarted {
			continue
		}
		o.wg.Add(1)
		go func(env *environment.Environment) {
			defer o.wg.Done()
			logging.Info("Orchestrator", "Stopping environment of removed directory %s", env.Dir())
			if err := stopEnvironment(env); err != nil {
				logging.Error("Orchestrator", err, "Failed to stop environment %s", env.Dir())
			}
		}(env)
	}
}

// stopAllEnvironments stops every started environment in the tree and waits
// for the teardowns to finish.
func (o *Orchestrator) stopAllEnvironments(ctx context.Context) {
	var envs []*environment.Environment
	err := o.loop.Do(ctx, func() error {
		envs = resulttree.Environments(o.tree.Root())
		return nil
	})
	if err != nil {
		logging.Warn("Orchestrator", "Could not list environments to stop: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, env := range envs {
		if env.State() != environment.StateStarted {
			continue
		}
		wg.Add(1)
		go func(env *environment.Environment) {
			defer wg.Done()
			if err := stopEnvironment(env); err != nil {
				logging.Error("Orchestrator", err, "Failed to stop environment %s", env.Dir())
			}
		}(env)
	}
	wg.Wait()
}
