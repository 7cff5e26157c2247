package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/mason/internal/app"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [targets...]",
		Short: "Run the specified targets",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}
			parallelism, _ := cmd.Flags().GetInt("parallelism")
			buildCache, _ := cmd.Flags().GetBool("build-cache")
			configCache, _ := cmd.Flags().GetBool("configuration-cache")
			failFast, _ := cmd.Flags().GetBool("fail-fast")
			force, _ := cmd.Flags().GetBool("force")
			verbose, _ := cmd.Flags().GetBool("verbose")

			return c.app.Run(cmd.Context(), app.RunOptions{
				Targets:     args,
				Parallelism: parallelism,
				BuildCache:  buildCache,
				ConfigCache: configCache,
				FailFast:    failFast,
				Force:       force,
				Verbose:     verbose,
			})
		},
	}
	cmd.Flags().IntP("parallelism", "p", 0, "Maximum concurrently executing targets (0 = one per CPU)")
	cmd.Flags().Bool("build-cache", false, "Reuse and publish outputs via the shared build cache")
	cmd.Flags().Bool("configuration-cache", false, "Reuse the configured work graph from a previous run")
	cmd.Flags().Bool("fail-fast", false, "Stop scheduling new targets after the first failure")
	cmd.Flags().BoolP("force", "f", false, "Run all targets even if they are up to date")
	cmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	return cmd
}
