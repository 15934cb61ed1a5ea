package app

import (
	"fmt"
	"os"
	"path/filepath"

	"testctl/internal/config"
	"testctl/internal/environment"
	"testctl/internal/framework"
	"testctl/internal/orchestrator"
	"testctl/internal/reconciler"
	"testctl/internal/resulttree"
	"testctl/internal/server"
	"testctl/pkg/logging"
)

// Services holds all the initialized services and APIs
type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Backend      server.Backend
	// Server is nil outside ModeServe.
	Server *server.Server
}

// InitializeServices builds the framework driver, the orchestrator and,
// in serve mode, the network server.
func InitializeServices(cfg *Config) (*Services, error) {
	tc := cfg.TestctlConfig
	if tc == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	rootDir, err := resolveRootDir(cfg.Directory)
	if err != nil {
		return nil, err
	}

	fw, err := newFramework(tc.Framework)
	if err != nil {
		return nil, err
	}

	provider := &environment.Provider{
		Descriptor: tc.Environment.Descriptor,
		Launcher:   &environment.ComposeLauncher{Command: tc.Environment.Command},
	}

	orchConfig := orchestrator.Config{
		RootDir:         rootDir,
		WatchMode:       orchestrator.WatchMode(tc.Watch.Mode),
		UpdateMode:      orchestrator.UpdateMode(tc.Server.UpdateMode),
		PollInterval:    tc.Scheduler.PollInterval,
		MaxPollInterval: tc.Scheduler.MaxPollInterval,
		Filter: reconciler.Filter{
			Extensions:  tc.Watch.Extensions,
			IgnoredDirs: tc.Watch.IgnoredDirs,
		},
	}
	orch := orchestrator.New(orchConfig, fw, resulttree.Options{Environments: provider}, nil)
	backend := orchestrator.NewAdapter(orch)

	services := &Services{
		Orchestrator: orch,
		Backend:      backend,
	}
	if cfg.Mode == ModeServe || cfg.Mode == "" {
		services.Server = server.New(server.Config{
			Host:      tc.Server.Host,
			Port:      tc.Server.Port,
			EnableMCP: tc.Server.MCPEnabled(),
			Version:   cfg.Version,
		}, backend)
	}
	return services, nil
}

func resolveRootDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("test directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("test directory %s is not a directory", abs)
	}
	return abs, nil
}

// newFramework installs the pytest reporter plugin and returns the driver
// configured by fc.
func newFramework(fc config.FrameworkConfig) (*framework.Command, error) {
	pluginDir := fc.PluginDir
	if pluginDir == "" {
		dir, err := framework.DefaultPluginDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate plugin directory: %w", err)
		}
		pluginDir = dir
	}
	if err := framework.InstallPytestPlugin(pluginDir); err != nil {
		return nil, err
	}
	logging.Debug("Services", "Pytest plugin installed in %s", pluginDir)
	return framework.NewPytest(fc.CollectCommand, fc.RunCommand, fc.Env, pluginDir), nil
}
