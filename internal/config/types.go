package config

import (
	"time"
)

// TestctlConfig is the top-level configuration structure for testctl.
type TestctlConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Watch       WatchConfig       `yaml:"watch"`
	Framework   FrameworkConfig   `yaml:"framework"`
	Environment EnvironmentConfig `yaml:"environment"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig controls the HTTP, websocket and MCP surface.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
	// UpdateMode is "full" to push the whole tree with every update, or
	// "slice" to push only the chain down to the changed node.
	UpdateMode string `yaml:"updateMode,omitempty"`
	// MCP is a pointer so an overlay can switch it off explicitly.
	MCP *bool `yaml:"mcp,omitempty"`
}

// MCPEnabled reports whether the MCP tools are served.
func (s ServerConfig) MCPEnabled() bool {
	return s.MCP == nil || *s.MCP
}

// Watch modes.
const (
	WatchModeCollect  = "collect"
	WatchModeAutorun  = "autorun"
	WatchModeDisabled = "disabled"
)

// WatchConfig controls the filesystem reconciler.
type WatchConfig struct {
	Mode        string   `yaml:"mode,omitempty"`
	Extensions  []string `yaml:"extensions,omitempty"`
	IgnoredDirs []string `yaml:"ignoredDirs,omitempty"`
}

// FrameworkConfig describes how the test framework is invoked. Command
// templates may use {path}, {rootdir} and {target}.
type FrameworkConfig struct {
	CollectCommand []string          `yaml:"collectCommand,omitempty"`
	RunCommand     []string          `yaml:"runCommand,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	// PluginDir is where the reporting plugin is installed. Defaults to the
	// user cache directory.
	PluginDir string `yaml:"pluginDir,omitempty"`
}

// EnvironmentConfig describes per-directory environments.
type EnvironmentConfig struct {
	Descriptor string   `yaml:"descriptor,omitempty"`
	Command    []string `yaml:"command,omitempty"` // e.g. ["docker", "compose"]
}

// SchedulerConfig tunes how the loop polls for results.
type SchedulerConfig struct {
	PollInterval    time.Duration `yaml:"pollInterval,omitempty"`
	MaxPollInterval time.Duration `yaml:"maxPollInterval,omitempty"`
}

// LoggingConfig selects the log output format ("text" or "json") and the
// minimum level. --debug always wins over Level.
type LoggingConfig struct {
	Format string `yaml:"format,omitempty"`
	Level  string `yaml:"level,omitempty"`
}
