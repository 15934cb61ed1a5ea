package cmd

import (
	"github.com/spf13/cobra"

	"testctl/internal/app"
)

func newRunCmd() *cobra.Command {
	var (
		dir   string
		width int
	)

	cmd := &cobra.Command{
		Use:   "run [nodeid]",
		Short: "Run tests once and print the results",
		Long: `Collects the tests under --dir, runs the tests below nodeid (default:
all of them) and prints each result as it arrives.

Exits non-zero when any test fails.

Examples:
  testctl run
  testctl run tests/test_api.py
  testctl run "tests/test_api.py::TestUsers::test_create"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := newAppConfig(cmd, app.ModeRun, []string{dir})
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Target = args[0]
			}
			cfg.Width = width
			return runApplication(cmd, cfg)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Root directory of the test tree")
	cmd.Flags().IntVar(&width, "width", 0, "Truncate lines to this width (default: terminal width)")
	return cmd
}
