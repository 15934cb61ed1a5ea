package framework

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed plugin/testctl_pytest.py
var pytestPlugin []byte

// PytestPluginModule is the module name the reporter plugin is installed as.
const PytestPluginModule = "testctl_pytest"

// DefaultCollectArgs and DefaultRunArgs drive pytest with the reporter
// plugin loaded.
var (
	DefaultCollectArgs = []string{
		"python", "-m", "pytest",
		"-p", PytestPluginModule, "-p", "no:terminal", "-p", "no:cacheprovider",
		"--collect-only", "--rootdir={rootdir}", "{path}",
	}
	DefaultRunArgs = []string{
		"python", "-m", "pytest",
		"-p", PytestPluginModule, "-p", "no:terminal", "-p", "no:cacheprovider",
		"--rootdir={rootdir}", "{target}",
	}
)

// InstallPytestPlugin writes the reporter plugin into dir.
func InstallPytestPlugin(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plugin directory %s: %w", dir, err)
	}
	target := filepath.Join(dir, PytestPluginModule+".py")
	if existing, err := os.ReadFile(target); err == nil && string(existing) == string(pytestPlugin) {
		return nil
	}
	if err := os.WriteFile(target, pytestPlugin, 0o644); err != nil {
		return fmt.Errorf("failed to write pytest plugin: %w", err)
	}
	return nil
}

// DefaultPluginDir is where the reporter plugin is installed unless
// configured otherwise.
func DefaultPluginDir() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cache, "testctl", "pytest"), nil
}

// NewPytest builds a Command for pytest. Empty argument lists fall back to
// the defaults. The plugin directory is prepended to PYTHONPATH.
func NewPytest(collectArgs, runArgs []string, env map[string]string, pluginDir string) *Command {
	if len(collectArgs) == 0 {
		collectArgs = DefaultCollectArgs
	}
	if len(runArgs) == 0 {
		runArgs = DefaultRunArgs
	}

	merged := make(map[string]string, len(env)+1)
	for k, v := range env {
		merged[k] = v
	}
	if pluginDir != "" {
		paths := []string{pluginDir}
		if existing, ok := merged["PYTHONPATH"]; ok && existing != "" {
			paths = append(paths, existing)
		} else if existing := os.Getenv("PYTHONPATH"); existing != "" {
			paths = append(paths, existing)
		}
		merged["PYTHONPATH"] = strings.Join(paths, string(os.PathListSeparator))
	}

	return &Command{
		CollectArgs: collectArgs,
		RunArgs:     runArgs,
		Env:         merged,
	}
}
