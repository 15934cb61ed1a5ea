// Package orchestrator owns the result tree and coordinates everything that
// changes it.
//
// # Architecture
//
// All tree reads and mutations happen on a single scheduler loop. Blocking
// work runs elsewhere and feeds results back through it:
//
//   - Test runs: a worker goroutine drives the framework and pushes messages
//     onto a channel, which the loop drains with scheduler.Drain.
//   - Filesystem changes: the watcher's events are drained into the
//     reconciler queue, and the reconciler collects changed files on its
//     own goroutine before merging on the loop.
//   - Environment teardown: the STOPPING transition is applied on the loop,
//     the blocking teardown runs in the caller's goroutine, and the final
//     state is published from the loop afterwards.
//
// # Runs
//
// RunTests marks the target RUNNING and returns a Run immediately. The
// first collection message replaces the target's children; every report
// after that updates one leaf. Each applied message publishes an
// events.UpdateEvent carrying the run ID as correlation ID. The run is done
// once the framework's stream has ended and its worker has exited.
//
// # Update Events
//
// Every tree mutation publishes an update on the event bus. Depending on
// the UpdateMode, the event carries the whole serialized tree or only the
// slice from the root down to the changed node.
//
// # Usage Example
//
//	o := orchestrator.New(orchestrator.Config{RootDir: dir}, fw, opts, nil)
//	if err := o.Start(ctx); err != nil {
//	    return err
//	}
//	defer o.Stop(context.Background())
//
//	run, err := o.RunTests(ctx, "tests/test_api.py")
//	if err != nil {
//	    return err
//	}
//	err = run.Wait(ctx)
package orchestrator
