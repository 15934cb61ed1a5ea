package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"testctl/internal/cli"
)

var (
	remoteEndpoint string
	remoteOutput   string
	remoteQuiet    bool
)

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Drive a running testctl server",
		Long: `Connects to the MCP endpoint of a running 'testctl serve' and calls its
tools. Results are printed as a table by default.`,
	}

	cmd.PersistentFlags().StringVar(&remoteEndpoint, "endpoint", cli.DefaultEndpoint("localhost", 5000), "SSE endpoint of the server")
	cmd.PersistentFlags().StringVarP(&remoteOutput, "output", "o", string(cli.OutputFormatTable), "Output format: table, json or yaml")
	cmd.PersistentFlags().BoolVarP(&remoteQuiet, "quiet", "q", false, "Print nothing on success")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "tree [nodeid]",
			Short: "Show the result tree, or the subtree below nodeid",
			Args:  cobra.MaximumNArgs(1),
			RunE:  remoteTool("get_tree", false),
		},
		&cobra.Command{
			Use:   "run [nodeid]",
			Short: "Start a run of the tests below nodeid (default: all tests)",
			Args:  cobra.MaximumNArgs(1),
			RunE:  remoteTool("run_tests", false),
		},
		&cobra.Command{
			Use:   "start-env <nodeid>",
			Short: "Start the environment of a directory",
			Args:  cobra.ExactArgs(1),
			RunE:  remoteTool("start_environment", true),
		},
		&cobra.Command{
			Use:   "stop-env <nodeid>",
			Short: "Stop the environment of a directory and wait for teardown",
			Args:  cobra.ExactArgs(1),
			RunE:  remoteTool("stop_environment", true),
		},
	)
	return cmd
}

// remoteTool returns a RunE calling toolName with the optional node id
// argument.
func remoteTool(toolName string, needsID bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(remoteOutput)
		if err != nil {
			return err
		}

		toolArgs := map[string]any{}
		if len(args) > 0 {
			toolArgs["nodeid"] = args[0]
		} else if !needsID {
			toolArgs["nodeid"] = ""
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		client := cli.NewCLIClientWithEndpoint(remoteEndpoint)
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("is 'testctl serve' running? %w", err)
		}
		defer client.Close()

		executor := cli.NewToolExecutor(client, cli.ExecutorOptions{
			Format: format,
			Quiet:  remoteQuiet,
			Out:    cmd.OutOrStdout(),
		})
		return executor.Execute(ctx, toolName, toolArgs)
	}
}
