// Package scheduler provides the single-goroutine task loop that owns the
// result tree, plus the helpers used to feed it from other goroutines.
//
// Loop tasks must not block. Blocking work runs on its own goroutine and
// reports back either through Loop.Post and Loop.Do, or through a channel
// consumed with Drain.
package scheduler
