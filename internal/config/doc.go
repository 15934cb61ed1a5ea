// Package config provides configuration management for testctl.
//
// This package implements a layered configuration system that allows users to
// customize testctl's behavior through YAML files. Configuration is loaded from
// multiple sources and merged in a specific order, with later sources overriding
// earlier ones.
//
// # Configuration Layers
//
// Configuration is loaded and merged in the following order:
//
//  1. Default Configuration (embedded in binary)
//     - Serves on localhost:5000 with MCP enabled
//     - Re-collects changed .py files and drives pytest
//
//  2. User Configuration (~/.config/testctl/config.yaml)
//     - User-specific settings that apply to all projects
//
//  3. Project Configuration (./.testctl/config.yaml)
//     - Project-specific settings in the current directory
//     - Allows teams to share configuration via version control
//
// LoadConfigFromPath skips the layering and reads a single directory, for
// the --config flag.
//
// # Configuration Structure
//
//	server:
//	  host: localhost
//	  port: 5000
//	  updateMode: full      # or "slice"
//	  mcp: true
//
//	watch:
//	  mode: collect         # "autorun" also runs changed files, "disabled" stops watching
//	  extensions: [".py"]
//	  ignoredDirs: ["__pycache__", ".pytest_cache"]
//
//	framework:
//	  collectCommand: ["python", "-m", "pytest", "--collect-only", "{path}"]
//	  runCommand: ["python", "-m", "pytest", "{target}"]
//	  env:
//	    PYTHONDONTWRITEBYTECODE: "1"
//
//	environment:
//	  descriptor: docker_compose.yml
//	  command: ["docker", "compose"]
//
//	scheduler:
//	  pollInterval: 100ms
//	  maxPollInterval: 1s
//
//	logging:
//	  format: text          # or "json"
//	  level: info           # debug, info, warn or error
//
// # Merging
//
// Scalars set in an overlay replace the base value. Lists replace the base
// list as a whole. framework.env merges key by key.
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("serving on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
package config
