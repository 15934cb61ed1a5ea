package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/x/term"

	"testctl/internal/color"
	"testctl/internal/events"
	"testctl/internal/reporting"
	"testctl/internal/resulttree"
	"testctl/pkg/logging"
)

const (
	shutdownTimeout = 30 * time.Second
	summaryTimeout  = 5 * time.Second
)

// ErrTestsFailed is returned by run mode when any test failed.
var ErrTestsFailed = errors.New("tests failed")

// notifyContext is replaced in tests.
var notifyContext = func(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// runServeMode keeps the tree live and serves it until interrupted.
func runServeMode(ctx context.Context, config *Config, services *Services) error {
	ctx, stop := notifyContext(ctx)
	defer stop()

	if err := services.Orchestrator.Start(ctx); err != nil {
		logging.Error("CLI", err, "Failed to start orchestrator")
		return err
	}
	defer shutdownOrchestrator(services)

	if err := services.Server.Start(); err != nil {
		logging.Error("CLI", err, "Failed to start server")
		return err
	}
	logging.Info("CLI", "Serving tests from %s. Press Ctrl+C to stop.", config.Directory)

	<-ctx.Done()

	logging.Info("CLI", "--- Shutting down ---")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := services.Server.Stop(shutdownCtx); err != nil {
		logging.Warn("CLI", "Server shutdown: %v", err)
	}
	return nil
}

// runTreeMode collects the tree, prints it and exits.
func runTreeMode(ctx context.Context, config *Config, services *Services) error {
	if err := services.Orchestrator.Start(ctx); err != nil {
		return err
	}
	defer shutdownOrchestrator(services)

	tree, err := services.Orchestrator.GetTree(ctx)
	if err != nil {
		return err
	}
	out := output(config)
	color.Initialize(true)
	_, err = io.WriteString(out, reporting.RenderTree(tree, outputWidth(config)))
	return err
}

// runTestsMode runs config.Target once, reporting results as they arrive.
func runTestsMode(ctx context.Context, config *Config, services *Services) error {
	ctx, stop := notifyContext(ctx)
	defer stop()

	if err := services.Orchestrator.Start(ctx); err != nil {
		return err
	}
	defer shutdownOrchestrator(services)

	color.Initialize(true)
	reporter := reporting.NewConsoleReporter(output(config), outputWidth(config))

	bus := services.Orchestrator.EventBus()
	sub := bus.SubscribeChannel(events.FilterByType(events.EventTypeTreeUpdate, events.EventTypeRunFinished), 1024)
	defer bus.Unsubscribe(sub)

	reportCtx, cancelReport := context.WithCancel(ctx)
	defer cancelReport()
	go reporter.Run(reportCtx, sub)

	run, err := services.Orchestrator.RunTests(ctx, config.Target)
	if err != nil {
		return err
	}
	runErr := run.Wait(ctx)

	select {
	case <-reporter.Summarized():
	case <-time.After(summaryTimeout):
		logging.Warn("CLI", "Run summary not received")
	case <-ctx.Done():
	}

	if runErr != nil {
		return fmt.Errorf("run %s: %w", run.ID(), runErr)
	}
	if _, failed, _ := reporter.Counts(); failed > 0 || run.Status() == resulttree.StatusFailed {
		return ErrTestsFailed
	}
	return nil
}

func shutdownOrchestrator(services *Services) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := services.Orchestrator.Stop(ctx); err != nil {
		logging.Warn("CLI", "Orchestrator shutdown: %v", err)
	}
}

func output(config *Config) io.Writer {
	if config.Out != nil {
		return config.Out
	}
	return os.Stdout
}

// outputWidth is the configured width, else the terminal width when
// stdout is a terminal, else unlimited.
func outputWidth(config *Config) int {
	if config.Width != 0 || config.Out != nil {
		return config.Width
	}
	if !term.IsTerminal(os.Stdout.Fd()) {
		return 0
	}
	width, _, err := term.GetSize(os.Stdout.Fd())
	if err != nil {
		return 0
	}
	return width
}
