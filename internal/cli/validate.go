package cli

import (
	"github.com/spf13/cobra"
)

func NewValidateCmd() *cobra.Command {
	var schemaFile, reportFile string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an already-migrated target against the source",
		RunE: func(c *cobra.Command, args []string) error {
			return runValidate(c.Context(), schemaFile, reportFile, batchSize)
		},
	}

	cmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "Path to the table-schema YAML file")
	cmd.Flags().StringVarP(&reportFile, "report", "r", "", "Write the validation report JSON to this path")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 100, "Records per validated batch")

	return cmd
}
