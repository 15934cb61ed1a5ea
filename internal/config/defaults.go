package config

import (
	"fmt"

	"testctl/internal/environment"
	"testctl/internal/framework"
	"testctl/internal/scheduler"
	"testctl/pkg/logging"
)

// GetDefaultConfig returns the configuration used when no file overrides
// it: serve on localhost:5000, re-collect Python files on change, drive
// pytest with the bundled plugin.
func GetDefaultConfig() TestctlConfig {
	mcp := true
	return TestctlConfig{
		Server: ServerConfig{
			Host:       "localhost",
			Port:       5000,
			UpdateMode: "full",
			MCP:        &mcp,
		},
		Watch: WatchConfig{
			Mode:        WatchModeCollect,
			Extensions:  []string{".py"},
			IgnoredDirs: []string{"__pycache__", ".pytest_cache", "node_modules"},
		},
		Framework: FrameworkConfig{
			CollectCommand: append([]string(nil), framework.DefaultCollectArgs...),
			RunCommand:     append([]string(nil), framework.DefaultRunArgs...),
		},
		Environment: EnvironmentConfig{
			Descriptor: environment.DefaultDescriptor,
			Command:    []string{"docker-compose"},
		},
		Scheduler: SchedulerConfig{
			PollInterval:    scheduler.DefaultPollInterval,
			MaxPollInterval: scheduler.DefaultMaxPollInterval,
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Validate checks values a YAML file may have got wrong.
func (c TestctlConfig) Validate() error {
	switch c.Watch.Mode {
	case WatchModeCollect, WatchModeAutorun, WatchModeDisabled:
	default:
		return fmt.Errorf("invalid watch mode %q: must be collect, autorun or disabled", c.Watch.Mode)
	}
	switch c.Server.UpdateMode {
	case "full", "slice":
	default:
		return fmt.Errorf("invalid update mode %q: must be full or slice", c.Server.UpdateMode)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if len(c.Framework.CollectCommand) == 0 || len(c.Framework.RunCommand) == 0 {
		return fmt.Errorf("framework collect and run commands must not be empty")
	}
	if len(c.Environment.Command) == 0 {
		return fmt.Errorf("environment command must not be empty")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q: must be text or json", c.Logging.Format)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}
	return nil
}
