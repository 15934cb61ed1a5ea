package environment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"testctl/pkg/logging"
)

// State is the lifecycle state of an environment.
type State string

const (
	// StateInactive means no descriptor exists. It has no transitions.
	StateInactive State = "inactive"
	StateStopped  State = "stopped"
	StateStarted  State = "started"
	// StateStopping is held between BeginStop and the end of Stop so
	// observers can see a teardown in progress.
	StateStopping State = "stopping"
)

// DefaultDescriptor is the file name looked for in each directory.
const DefaultDescriptor = "docker_compose.yml"

var (
	ErrInvalidState  = errors.New("invalid environment state")
	ErrNoEnvironment = errors.New("no environment at this location")
)

// StateError reports a transition requested from the wrong state.
type StateError struct {
	Current   State
	Requested string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%v: cannot %s while %s", ErrInvalidState, e.Requested, e.Current)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// Environment is the auxiliary process stack attached to one directory.
type Environment struct {
	mu         sync.Mutex
	dir        string
	descriptor string
	state      State
	launcher   Launcher
	proc       Process
}

// New creates the environment for dir. It is StateStopped when the
// descriptor file exists there and StateInactive otherwise.
func New(dir, descriptorName string, launcher Launcher) *Environment {
	if descriptorName == "" {
		descriptorName = DefaultDescriptor
	}
	e := &Environment{
		dir:        dir,
		descriptor: filepath.Join(dir, descriptorName),
		state:      StateInactive,
		launcher:   launcher,
	}
	if info, err := os.Stat(e.descriptor); err == nil && !info.IsDir() {
		e.state = StateStopped
	}
	return e
}

// Dir is the directory the environment belongs to.
func (e *Environment) Dir() string { return e.dir }

// Descriptor is the full path of the descriptor file.
func (e *Environment) Descriptor() string { return e.descriptor }

func (e *Environment) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start launches the environment. It returns once the process is running
// and does not wait for it.
func (e *Environment) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStopped {
		return &StateError{Current: e.state, Requested: "start"}
	}
	if e.launcher == nil {
		return fmt.Errorf("environment %s has no launcher", e.dir)
	}

	proc, err := e.launcher.Up(e.descriptor)
	if err != nil {
		return fmt.Errorf("failed to start environment %s: %w", e.dir, err)
	}
	e.proc = proc
	e.state = StateStarted
	logging.Info("Environment", "Started environment %s", e.dir)
	return nil
}

// BeginStop is the first phase of stopping: STARTED to STOPPING.
func (e *Environment) BeginStop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStarted {
		return &StateError{Current: e.state, Requested: "stop"}
	}
	e.state = StateStopping
	return nil
}

// Stop tears the environment down and waits for the launched process to
// exit. It must follow BeginStop. On a teardown failure the state stays
// StateStopping and the error is returned; there is no retry.
func (e *Environment) Stop() error {
	e.mu.Lock()
	if e.state != StateStopping {
		state := e.state
		e.mu.Unlock()
		return &StateError{Current: state, Requested: "finish stopping"}
	}
	proc := e.proc
	e.mu.Unlock()

	// Teardown runs unlocked so State() stays readable meanwhile.
	if err := e.launcher.Down(e.descriptor); err != nil {
		logging.Error("Environment", err, "Teardown of %s failed, leaving it stopping", e.dir)
		return fmt.Errorf("failed to stop environment %s: %w", e.dir, err)
	}
	if proc != nil {
		if err := proc.Wait(); err != nil {
			logging.Debug("Environment", "Environment process for %s exited: %v", e.dir, err)
		}
	}

	e.mu.Lock()
	e.proc = nil
	e.state = StateStopped
	e.mu.Unlock()
	logging.Info("Environment", "Stopped environment %s", e.dir)
	return nil
}

// Provider attaches environments to directory branches.
type Provider struct {
	Descriptor string
	Launcher   Launcher
}

// ForDir returns the environment for dir, or nil when dir is not a
// directory.
func (p *Provider) ForDir(dir string) *Environment {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	return New(dir, p.Descriptor, p.Launcher)
}
