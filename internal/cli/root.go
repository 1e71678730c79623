// Package cli handles the command-line interface logic using the Cobra
// library.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flowmigrate",
		Short: "flowmigrate - batch migration of process diagrams to the document store",
		Long: `flowmigrate moves process records from the legacy SQL store into the
target document store in journaled batches, detecting structural gaps before
and after the move and validating every migrated batch against its source.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewScanCmd())
	rootCmd.AddCommand(NewValidateCmd())

	return rootCmd
}
