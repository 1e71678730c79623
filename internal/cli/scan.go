package cli

import (
	"github.com/spf13/cobra"
)

func NewScanCmd() *cobra.Command {
	var schemaFile, reportFile, phase string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run gap detection only, without migrating anything",
		RunE: func(c *cobra.Command, args []string) error {
			return runScan(c.Context(), schemaFile, reportFile, phase)
		},
	}

	cmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "Path to the table-schema YAML file")
	cmd.Flags().StringVarP(&reportFile, "report", "r", "", "Write the gap list JSON to this path")
	cmd.Flags().StringVarP(&phase, "phase", "p", "pre", "Which scan to run: pre, post or both")

	return cmd
}
