package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/crucible-dev/crucible/internal/logging"
	"github.com/crucible-dev/crucible/pkg/version"
)

var (
	projectRoot string
	debugMode   bool
	loggingStop func()
)

// NewRootCmd builds the crucible root command and its subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "crucible",
		Short:   "Local code-editing and retrieval core",
		Version: version.Version,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg := logging.DefaultConfig()
			if debugMode {
				cfg = logging.DebugConfig()
			}
			logger, cleanup, err := logging.Setup(cfg)
			if err != nil {
				return fmt.Errorf("set up logging: %w", err)
			}
			slog.SetDefault(logger)
			loggingStop = cleanup
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if loggingStop != nil {
				loggingStop()
				loggingStop = nil
			}
			return nil
		},
	}
	cmd.SetVersionTemplate("crucible version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newEditCmd())
	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newIndexCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
