package progress

import (
	"github.com/BartekS5/flowmigrate/internal/engine"
	"github.com/BartekS5/flowmigrate/pkg/models"
)

// MultiSink fans every callback out to a list of sinks.
type MultiSink struct {
	sinks []engine.ProgressSink
}

var _ engine.ProgressSink = (*MultiSink)(nil)

func NewMultiSink(sinks ...engine.ProgressSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) OnRunStarted(cfg models.MigrationConfig) {
	for _, s := range m.sinks {
		s.OnRunStarted(cfg)
	}
}

func (m *MultiSink) OnBatchCompleted(batchIndex, migrated, skipped, failed int) {
	for _, s := range m.sinks {
		s.OnBatchCompleted(batchIndex, migrated, skipped, failed)
	}
}

func (m *MultiSink) OnGapDetected(gap models.Gap) {
	for _, s := range m.sinks {
		s.OnGapDetected(gap)
	}
}

func (m *MultiSink) OnRunFinished(result *models.MigrationResult) {
	for _, s := range m.sinks {
		s.OnRunFinished(result)
	}
}
