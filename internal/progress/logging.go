// Package progress provides ProgressSink implementations the surrounding
// application can attach to a migration run: log output, Prometheus metrics
// and a fan-out combinator.
package progress

import (
	"github.com/BartekS5/flowmigrate/internal/engine"
	"github.com/BartekS5/flowmigrate/pkg/logger"
	"github.com/BartekS5/flowmigrate/pkg/models"
)

// LoggingSink reports run progress through the application logger.
type LoggingSink struct{}

var _ engine.ProgressSink = (*LoggingSink)(nil)

func NewLoggingSink() *LoggingSink {
	return &LoggingSink{}
}

func (l *LoggingSink) OnRunStarted(cfg models.MigrationConfig) {
	logger.Infof("Migration started. Batch size: %d, DryRun: %v, GapDetection: %v, Validation: %v",
		cfg.BatchSize, cfg.DryRun, cfg.EnableGapDetection, cfg.EnableValidation)
}

func (l *LoggingSink) OnBatchCompleted(batchIndex, migrated, skipped, failed int) {
	logger.Infof("Batch %d done. Migrated: %d, Skipped: %d, Failed: %d", batchIndex, migrated, skipped, failed)
}

func (l *LoggingSink) OnGapDetected(gap models.Gap) {
	switch gap.Severity {
	case models.SeverityError:
		logger.Errorf("Gap [%s]: %s", gap.Type, gap.Description)
	default:
		logger.Warnf("Gap [%s]: %s", gap.Type, gap.Description)
	}
}

func (l *LoggingSink) OnRunFinished(result *models.MigrationResult) {
	logger.Infof("Migration finished in %s. State: %s. Total: %d, Migrated: %d, Skipped: %d, Failed: %d, Gaps: %d",
		result.Duration, result.State, result.Total, result.Migrated, result.Skipped, result.Failed, len(result.Gaps))
}
