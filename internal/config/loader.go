package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"testctl/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/testctl"
	projectConfigDir = ".testctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the testctl configuration by layering default, user, and project settings.
func LoadConfig() (TestctlConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if config, err = overlayFile(config, userConfigPath); err != nil {
		return TestctlConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else if config, err = overlayFile(config, projectConfigPath); err != nil {
		return TestctlConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
	}

	if err := config.Validate(); err != nil {
		return TestctlConfig{}, err
	}
	return config, nil
}

// LoadConfigFromPath loads defaults overlaid with the config.yaml in dir
// only. A missing file is an error.
func LoadConfigFromPath(dir string) (TestctlConfig, error) {
	path := filepath.Join(dir, configFileName)
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return TestctlConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	config := mergeConfigs(GetDefaultConfig(), overlay)
	if err := config.Validate(); err != nil {
		return TestctlConfig{}, err
	}
	return config, nil
}

func overlayFile(base TestctlConfig, path string) (TestctlConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return base, nil
	}
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return base, err
	}
	logging.Debug("Config", "Loaded configuration from %s", path)
	return mergeConfigs(base, overlay), nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a TestctlConfig from a YAML file.
func loadConfigFromFile(filePath string) (TestctlConfig, error) {
	var config TestctlConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return TestctlConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return TestctlConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Set scalars
// replace, non-empty lists replace whole, maps merge key by key.
func mergeConfigs(base, overlay TestctlConfig) TestctlConfig {
	merged := base

	if overlay.Server.Host != "" {
		merged.Server.Host = overlay.Server.Host
	}
	if overlay.Server.Port != 0 {
		merged.Server.Port = overlay.Server.Port
	}
	if overlay.Server.UpdateMode != "" {
		merged.Server.UpdateMode = overlay.Server.UpdateMode
	}
	if overlay.Server.MCP != nil {
		enabled := *overlay.Server.MCP
		merged.Server.MCP = &enabled
	}

	if overlay.Watch.Mode != "" {
		merged.Watch.Mode = overlay.Watch.Mode
	}
	if len(overlay.Watch.Extensions) > 0 {
		merged.Watch.Extensions = overlay.Watch.Extensions
	}
	if len(overlay.Watch.IgnoredDirs) > 0 {
		merged.Watch.IgnoredDirs = overlay.Watch.IgnoredDirs
	}

	if len(overlay.Framework.CollectCommand) > 0 {
		merged.Framework.CollectCommand = overlay.Framework.CollectCommand
	}
	if len(overlay.Framework.RunCommand) > 0 {
		merged.Framework.RunCommand = overlay.Framework.RunCommand
	}
	if len(overlay.Framework.Env) > 0 {
		env := make(map[string]string, len(base.Framework.Env)+len(overlay.Framework.Env))
		for k, v := range base.Framework.Env {
			env[k] = v
		}
		for k, v := range overlay.Framework.Env {
			env[k] = v
		}
		merged.Framework.Env = env
	}
	if overlay.Framework.PluginDir != "" {
		merged.Framework.PluginDir = overlay.Framework.PluginDir
	}

	if overlay.Environment.Descriptor != "" {
		merged.Environment.Descriptor = overlay.Environment.Descriptor
	}
	if len(overlay.Environment.Command) > 0 {
		merged.Environment.Command = overlay.Environment.Command
	}

	if overlay.Scheduler.PollInterval != 0 {
		merged.Scheduler.PollInterval = overlay.Scheduler.PollInterval
	}
	if overlay.Scheduler.MaxPollInterval != 0 {
		merged.Scheduler.MaxPollInterval = overlay.Scheduler.MaxPollInterval
	}

	if overlay.Logging.Format != "" {
		merged.Logging.Format = overlay.Logging.Format
	}
	if overlay.Logging.Level != "" {
		merged.Logging.Level = overlay.Logging.Level
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
