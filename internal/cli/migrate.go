package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/flowmigrate/pkg/models"
)

// MigrateOptions collects the flags shared by the migration-running
// commands.
type MigrateOptions struct {
	SchemaFile     string
	ReportFile     string
	BatchSize      int
	DryRun         bool
	NoGapDetection bool
	NoValidation   bool
	Rollback       bool
	ContinueOnErr  bool
	MaxParallel    int
	FailThreshold  int
	ConflictPolicy string
	Escalate       []string
	MetricsListen  string
}

// MigrationConfig translates the CLI flags into the engine's run config.
func (o *MigrateOptions) MigrationConfig() models.MigrationConfig {
	cfg := models.DefaultMigrationConfig()
	cfg.BatchSize = o.BatchSize
	cfg.DryRun = o.DryRun
	cfg.EnableGapDetection = !o.NoGapDetection
	cfg.EnableValidation = !o.NoValidation
	cfg.RollbackOnFailure = o.Rollback
	cfg.ContinueOnBatchError = o.ContinueOnErr
	cfg.MaxParallelBatches = o.MaxParallel
	cfg.BatchFailureThreshold = o.FailThreshold
	cfg.ConflictPolicy = models.ConflictPolicy(o.ConflictPolicy)
	for _, check := range o.Escalate {
		cfg.EscalatedChecks = append(cfg.EscalatedChecks, models.ValidationCheck(check))
	}
	return cfg
}

func NewMigrateCmd() *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the batch migration from the legacy store to the document store",
		RunE: func(c *cobra.Command, args []string) error {
			return runMigration(c.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.SchemaFile, "schema", "s", "", "Path to the table-schema YAML file (built-in schema when omitted)")
	cmd.Flags().StringVarP(&opts.ReportFile, "report", "r", "", "Write the migration report JSON to this path")
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 100, "Records per batch")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Simulate the migration without persisting writes")
	cmd.Flags().BoolVar(&opts.NoGapDetection, "no-gap-detection", false, "Skip the pre- and post-migration gap scans")
	cmd.Flags().BoolVar(&opts.NoValidation, "no-validation", false, "Skip per-batch validation")
	cmd.Flags().BoolVar(&opts.Rollback, "rollback-on-failure", false, "Revert all journaled batches when a batch fails")
	cmd.Flags().BoolVar(&opts.ContinueOnErr, "continue-on-error", false, "Keep migrating after a failed batch")
	cmd.Flags().IntVar(&opts.MaxParallel, "max-parallel", 1, "How many batches may overlap write/validate with the next read")
	cmd.Flags().IntVar(&opts.FailThreshold, "failure-threshold", 0, "Failed records tolerated per batch before the batch counts as failed")
	cmd.Flags().StringVar(&opts.ConflictPolicy, "conflict-policy", "overwrite", "What to do when the target holds conflicting content: overwrite or skip")
	cmd.Flags().StringSliceVar(&opts.Escalate, "escalate", nil, "Advisory validation checks to treat as significant (e.g. CHECKSUM_MATCH)")
	cmd.Flags().StringVar(&opts.MetricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address for the duration of the run")

	return cmd
}
