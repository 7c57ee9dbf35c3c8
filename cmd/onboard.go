package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/januslabs/janus/internal/bootstrap"
	"github.com/januslabs/janus/internal/config"
)

// onboardCmd scaffolds a workspace directory and the home persona file.
func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard [dir]",
		Short: "Scaffold a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			created, err := bootstrap.SeedWorkspace(dir)
			if err != nil {
				return err
			}
			if err := bootstrap.SeedHome(config.HomeDir()); err != nil {
				return err
			}

			if len(created) == 0 {
				fmt.Println("Workspace already initialized, nothing to do.")
				return nil
			}
			fmt.Printf("Initialized workspace in %s:\n", dir)
			for _, name := range created {
				fmt.Println("  created", name)
			}
			fmt.Println("\nNext: run 'janus setup' to configure an LLM provider.")
			return nil
		},
	}
}
