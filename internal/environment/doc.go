// Package environment manages per-directory auxiliary process stacks.
//
// A directory containing a descriptor file (docker_compose.yml by default)
// gets an environment that can be started and stopped:
//
//	stopped -> started -> stopping -> stopped
//
// Stopping takes two calls. BeginStop flips the state so observers see
// the teardown in progress, then Stop blocks on the teardown. A directory
// without a descriptor is inactive and accepts no transitions.
package environment
