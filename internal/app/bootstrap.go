package app

import (
	"context"
	"fmt"
	"os"

	"testctl/internal/config"
	"testctl/pkg/logging"
)

// Application is the main application structure that bootstraps and runs testctl
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads configuration, applies the command line overrides
// and wires the services for cfg.Mode.
func NewApplication(cfg *Config) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}

	// Logs go to stderr so tree and run output can be piped.
	logging.InitForCLI(appLogLevel, os.Stderr)

	if cfg.TestctlConfig == nil {
		var testctlCfg config.TestctlConfig
		var err error

		if cfg.ConfigPath != "" {
			testctlCfg, err = config.LoadConfigFromPath(cfg.ConfigPath)
			if err != nil {
				logging.Error("Bootstrap", err, "Failed to load testctl configuration from path: %s", cfg.ConfigPath)
				return nil, fmt.Errorf("failed to load testctl configuration from path %s: %w", cfg.ConfigPath, err)
			}
			logging.Debug("Bootstrap", "Loaded configuration from custom path: %s", cfg.ConfigPath)
		} else {
			testctlCfg, err = config.LoadConfig()
			if err != nil {
				logging.Error("Bootstrap", err, "Failed to load testctl configuration")
				return nil, fmt.Errorf("failed to load testctl configuration: %w", err)
			}
			logging.Debug("Bootstrap", "Loaded configuration using layered approach")
		}
		cfg.TestctlConfig = &testctlCfg
	}

	cfg.applyOverrides()
	if err := cfg.TestctlConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if !cfg.Debug {
		// Validate has already rejected unknown names.
		appLogLevel, _ = logging.ParseLevel(cfg.TestctlConfig.Logging.Level)
	}
	format := logging.Format(cfg.TestctlConfig.Logging.Format)
	if format == "" {
		format = logging.FormatText
	}
	logging.Init(appLogLevel, format, os.Stderr)

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Run executes the application in the configured mode
func (a *Application) Run(ctx context.Context) error {
	switch a.config.Mode {
	case ModeTree:
		return runTreeMode(ctx, a.config, a.services)
	case ModeRun:
		return runTestsMode(ctx, a.config, a.services)
	default:
		return runServeMode(ctx, a.config, a.services)
	}
}
