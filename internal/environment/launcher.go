package environment

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// Process is a launched environment process.
type Process interface {
	Wait() error
}

// Launcher brings environments up and down from a descriptor file.
type Launcher interface {
	// Up starts the environment and returns without waiting for it.
	Up(descriptor string) (Process, error)
	// Down blocks until the environment is torn down.
	Down(descriptor string) error
}

// ComposeLauncher drives docker-compose style tools.
type ComposeLauncher struct {
	// Command is the tool and its leading arguments, e.g. ["docker", "compose"].
	Command []string
}

func (l *ComposeLauncher) command(descriptor string, args ...string) *exec.Cmd {
	base := l.Command
	if len(base) == 0 {
		base = []string{"docker-compose"}
	}
	argv := append(append(append([]string{}, base[1:]...), "-f", descriptor), args...)
	cmd := exec.Command(base[0], argv...)
	cmd.Dir = filepath.Dir(descriptor)
	cmd.Env = os.Environ()
	return cmd
}

func (l *ComposeLauncher) Up(descriptor string) (Process, error) {
	cmd := l.command(descriptor, "up")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", strings.Join(cmd.Args, " "), err)
	}
	return cmd, nil
}

func (l *ComposeLauncher) Down(descriptor string) error {
	cmd := l.command(descriptor, "down")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("'%s' failed: %w. Stderr: %s", strings.Join(cmd.Args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
