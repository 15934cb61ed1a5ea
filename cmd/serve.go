package cmd

import (
	"github.com/spf13/cobra"

	"testctl/internal/app"
)

var (
	serveHost  string
	servePort  int
	serveWatch string
	serveNoMCP bool
)

// serveCmd is the main command of testctl: it keeps the result tree live
// and serves it until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve [directory]",
	Short: "Collect tests and serve the live result tree",
	Long: `Collects the tests under directory (default: the current directory) and
serves the result tree until interrupted.

Endpoints:
  GET  /api/v1/result-tree          the whole tree
  GET  /api/v1/node?nodeid=ID       one subtree
  POST /api/v1/run                  {"nodeid": ID} runs the tests below ID
  POST /api/v1/environment/start    {"nodeid": ID} starts the environment at ID
  POST /api/v1/environment/stop     {"nodeid": ID} stops it
  /ws                               websocket stream of tree updates
  /sse, /message                    MCP tools (disable with --no-mcp)

File changes are re-collected as they happen. With --watch=autorun the
changed tests are also run.

Configuration:
  testctl loads ~/.config/testctl/config.yaml and then .testctl/config.yaml
  from the current directory. Flags override both.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := newAppConfig(cmd, app.ModeServe, args)
	if err != nil {
		return err
	}
	cfg.Host = serveHost
	cfg.Port = servePort
	cfg.WatchMode = serveWatch
	cfg.NoMCP = serveNoMCP

	return runApplication(cmd, cfg)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Address to listen on (default from config: localhost)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config: 5000)")
	serveCmd.Flags().StringVar(&serveWatch, "watch", "", "File watching: collect, autorun or disabled")
	serveCmd.Flags().BoolVar(&serveNoMCP, "no-mcp", false, "Do not serve the MCP tools")
}
