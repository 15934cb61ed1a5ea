package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const rootLong = `testctl keeps a live result tree of your pytest suite.

It collects the tests under a directory, follows file changes, runs tests
on request and starts the docker-compose environments tests depend on.
Clients follow the tree over HTTP, a websocket or MCP.`

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "testctl",
	Short: "Serve a live tree of test results",
	Long:  rootLong,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. failing tests, unknown node ids)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "testctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newTreeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newRemoteCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Load configuration from this directory only, skipping the layered lookup")
}
