package app

import (
	"io"

	"testctl/internal/config"
)

// Mode selects what the application does once services are up.
type Mode string

const (
	// ModeServe keeps the tree live and serves it until interrupted.
	ModeServe Mode = "serve"
	// ModeTree prints the collected tree and exits.
	ModeTree Mode = "tree"
	// ModeRun runs one target, prints the results and exits.
	ModeRun Mode = "run"
)

// Config holds the application configuration
type Config struct {
	Mode Mode

	// Directory is the root of the test tree.
	Directory string
	// Target is the node id run in ModeRun. Empty runs everything.
	Target string

	// Debug settings
	Debug bool

	// Overrides for the loaded configuration. Zero values leave the
	// configured value alone.
	Host      string
	Port      int
	WatchMode string
	NoMCP     bool

	// ConfigPath, when set, replaces layered loading with a single
	// directory.
	ConfigPath string

	Version string

	// Out receives tree and run output. Defaults to stdout.
	Out io.Writer
	// Width truncates output lines; 0 uses the terminal width.
	Width int

	TestctlConfig *config.TestctlConfig
}

// NewConfig creates a new application configuration
func NewConfig(mode Mode, directory string, debug bool) *Config {
	return &Config{
		Mode:      mode,
		Directory: directory,
		Debug:     debug,
	}
}

// applyOverrides copies command line overrides onto the loaded config.
func (c *Config) applyOverrides() {
	cfg := c.TestctlConfig
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.WatchMode != "" {
		cfg.Watch.Mode = c.WatchMode
	}
	if c.NoMCP {
		disabled := false
		cfg.Server.MCP = &disabled
	}
	// One-shot modes never follow the filesystem.
	if c.Mode == ModeTree || c.Mode == ModeRun {
		cfg.Watch.Mode = config.WatchModeDisabled
	}
}
