package framework

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"testctl/internal/nodeid"
	"testctl/pkg/logging"
)

const maxLineSize = 16 * 1024 * 1024

// Command runs the framework as a subprocess and decodes its JSON-lines
// output. Argument templates may contain {path}, {rootdir} and {target}.
type Command struct {
	CollectArgs []string
	RunArgs     []string
	// Env is added to the inherited environment.
	Env map[string]string
}

func (c *Command) Collect(ctx context.Context, path, rootDir string) (*Collection, error) {
	argv := expand(c.CollectArgs, strings.NewReplacer("{path}", path, "{rootdir}", rootDir, "{target}", path))

	var last *Collection
	err := c.stream(ctx, argv, rootDir, func(msg Message) {
		if msg.Kind == KindCollection {
			last = msg.Collection
		}
	})
	return last, err
}

func (c *Command) Run(ctx context.Context, target nodeid.ID, rootDir string, emit func(Message)) error {
	targetArg := target.String()
	if target.IsRoot() {
		targetArg = rootDir
	}
	argv := expand(c.RunArgs, strings.NewReplacer("{path}", target.FSPath(rootDir), "{rootdir}", rootDir, "{target}", targetArg))

	err := c.stream(ctx, argv, rootDir, func(msg Message) {
		switch msg.Kind {
		case KindCollection:
			emit(msg)
		case KindReport:
			if msg.Report.Relevant() {
				emit(msg)
			}
		}
	})

	// Failing tests make test runners exit non-zero.
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		logging.Debug("Framework", "Run of %s finished: %v", target, exitErr)
		return nil
	}
	return err
}

func (c *Command) stream(ctx context.Context, argv []string, dir string, handle func(Message)) error {
	if len(argv) == 0 {
		return errors.New("no framework command configured")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %s: %w", argv[0], err)
	}

	logging.Debug("Framework", "Running %s", strings.Join(argv, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", argv[0], err)
	}

	scanErr := scan(stdout, handle)
	if scanErr != nil {
		// keep the pipe drained so the process can exit
		_, _ = io.Copy(io.Discard, stdout)
	}

	waitErr := cmd.Wait()
	if scanErr != nil {
		return fmt.Errorf("reading output of %s: %w", argv[0], scanErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{
				Command:  argv[0],
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return fmt.Errorf("%s failed: %w", argv[0], waitErr)
	}
	return nil
}

func scan(r io.Reader, handle func(Message)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		msg, ok, err := decodeLine(scanner.Text())
		if err != nil {
			logging.Warn("Framework", "Dropping malformed message: %v", err)
			continue
		}
		if !ok {
			continue
		}
		handle(msg)
	}
	return scanner.Err()
}

func expand(args []string, r *strings.Replacer) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}
