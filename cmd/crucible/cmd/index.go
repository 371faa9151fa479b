package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crucible-dev/crucible/internal/watcher"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the project index",
	}
	cmd.AddCommand(newIndexRebuildCmd())
	return cmd
}

func newIndexRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Force a full re-parse and re-extraction of every file, bypassing mtime comparison",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(projectRoot)
			if err != nil {
				return err
			}
			defer a.Close()

			scanner := watcher.NewScanner(a.DB, a.Locks, a.Root, a.ProjectID, watcher.Options{
				IgnorePatterns: a.Config.Paths.Exclude,
			})
			if err := scanner.Rebuild(cmd.Context()); err != nil {
				return fmt.Errorf("rebuild index: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "index rebuilt")
			return nil
		},
	}
}
