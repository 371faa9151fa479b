package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect and restore prior file versions",
	}
	cmd.AddCommand(newBackupListCmd())
	cmd.AddCommand(newBackupVersionsCmd())
	cmd.AddCommand(newBackupRestoreCmd())
	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every file with at least one backup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(projectRoot)
			if err != nil {
				return err
			}
			defer a.Close()

			summaries, err := a.Content.ListPaths()
			if err != nil {
				return fmt.Errorf("list backed-up paths: %w", err)
			}
			for _, s := range summaries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", s.Path, s.Latest.ID, s.Latest.Time.Format("2006-01-02T15:04:05"))
			}
			return nil
		},
	}
}

func newBackupVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <path>",
		Short: "List every backed-up version of a project-relative path, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(projectRoot)
			if err != nil {
				return err
			}
			defer a.Close()

			versions, err := a.Content.ListVersions(args[0])
			if err != nil {
				return fmt.Errorf("list versions: %w", err)
			}
			for _, v := range versions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d bytes\t%d lines\t%s\n",
					v.ID, v.Time.Format("2006-01-02T15:04:05"), v.SizeBytes, v.LineCount, v.Comment)
			}
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	var backupID string

	cmd := &cobra.Command{
		Use:   "restore <path>",
		Short: "Restore a project-relative path to a prior backed-up version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(projectRoot)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := parseUUID(backupID)
			if err != nil {
				return err
			}

			restoredID, err := a.Content.Restore(args[0], id)
			if err != nil {
				return fmt.Errorf("restore %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from backup %s\n", args[0], restoredID)
			return nil
		},
	}
	cmd.Flags().StringVar(&backupID, "id", "", "backup id to restore (see 'backup versions')")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
