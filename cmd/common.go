package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"testctl/internal/app"
)

// newAppConfig builds the application config shared by every mode from
// the persistent flags and the optional directory argument.
func newAppConfig(cmd *cobra.Command, mode app.Mode, args []string) (*app.Config, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return nil, err
	}
	cfg := app.NewConfig(mode, dir, debug)
	if cfg.ConfigPath, err = cmd.Flags().GetString("config"); err != nil {
		return nil, err
	}
	cfg.Version = rootCmd.Version
	return cfg, nil
}

func runApplication(cmd *cobra.Command, cfg *app.Config) error {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}
