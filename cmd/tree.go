package cmd

import (
	"github.com/spf13/cobra"

	"testctl/internal/app"
)

func newTreeCmd() *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "tree [directory]",
		Short: "Print the collected test tree",
		Long: `Collects the tests under directory (default: the current directory),
prints the tree with each directory's environment state and exits.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := newAppConfig(cmd, app.ModeTree, args)
			if err != nil {
				return err
			}
			cfg.Width = width
			return runApplication(cmd, cfg)
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "Truncate lines to this width (default: terminal width)")
	return cmd
}
