package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/BartekS5/flowmigrate/internal/config"
	"github.com/BartekS5/flowmigrate/internal/engine"
	"github.com/BartekS5/flowmigrate/internal/progress"
	"github.com/BartekS5/flowmigrate/pkg/database"
	"github.com/BartekS5/flowmigrate/pkg/logger"
	"github.com/BartekS5/flowmigrate/pkg/models"
)

// connections bundles the live source and target handles for one command.
type connections struct {
	sqlDB  *sql.DB
	client *mongo.Client
	source *engine.SQLRecordSource
	target *engine.MongoTargetStore
	schema *models.SchemaSet
}

func connect(schemaFile string) (*connections, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	schema, err := config.LoadSchema(schemaFile)
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.ConnectSQL(cfg.SQLDriver, cfg.SQLConnString)
	if err != nil {
		return nil, err
	}

	client, err := database.ConnectMongo(cfg.MongoConnString)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &connections{
		sqlDB:  sqlDB,
		client: client,
		source: engine.NewSQLRecordSource(sqlDB, schema, engine.Dialect(cfg.SQLDriver)),
		target: engine.NewMongoTargetStore(client, cfg.MongoDatabase),
		schema: schema,
	}, nil
}

func (c *connections) close() {
	c.sqlDB.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.client.Disconnect(ctx)
}

func runMigration(ctx context.Context, opts *MigrateOptions) error {
	conns, err := connect(opts.SchemaFile)
	if err != nil {
		return err
	}
	defer conns.close()

	sinks := []engine.ProgressSink{progress.NewLoggingSink()}
	if opts.MetricsListen != "" {
		metrics := progress.NewMetricsSink()
		sinks = append(sinks, metrics)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
		server := &http.Server{Addr: opts.MetricsListen, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Metrics server failed: %v", err)
			}
		}()
		defer server.Close()
	}

	migrator := engine.NewBatchMigrator(conns.source, conns.target, conns.schema, opts.MigrationConfig(), sinks...)

	result, runErr := migrator.Run(ctx)
	if result != nil && opts.ReportFile != "" {
		if err := engine.ExportResult(result, opts.ReportFile); err != nil {
			logger.Errorf("Failed to export migration report: %v", err)
		} else {
			logger.Infof("Migration report written to %s", opts.ReportFile)
		}
	}
	if runErr != nil {
		return runErr
	}

	if result.State != models.StateCompleted {
		logger.Warnf("Run ended in state %s", result.State)
	}
	return nil
}

func runScan(ctx context.Context, schemaFile, reportFile, phase string) error {
	if phase != "pre" && phase != "post" && phase != "both" {
		return fmt.Errorf("unknown scan phase %q (expected pre, post or both)", phase)
	}

	conns, err := connect(schemaFile)
	if err != nil {
		return err
	}
	defer conns.close()

	detector := engine.NewGapDetector(conns.source, conns.target, conns.schema)

	var gaps []models.Gap
	if phase == "pre" || phase == "both" {
		found, err := detector.PreScan(ctx)
		if err != nil {
			return err
		}
		gaps = append(gaps, found...)
	}
	if phase == "post" || phase == "both" {
		found, err := detector.PostScan(ctx)
		if err != nil {
			return err
		}
		gaps = append(gaps, found...)
	}

	sink := progress.NewLoggingSink()
	for _, gap := range gaps {
		sink.OnGapDetected(gap)
	}
	logger.Infof("Scan complete. %d gap(s) detected.", len(gaps))

	if reportFile != "" {
		return exportJSON(gaps, reportFile)
	}
	return nil
}

func runValidate(ctx context.Context, schemaFile, reportFile string, batchSize int) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be positive, got %d", batchSize)
	}

	conns, err := connect(schemaFile)
	if err != nil {
		return err
	}
	defer conns.close()

	transformer := engine.NewTransformer(conns.schema)
	validator := engine.NewDataValidator(conns.target, conns.schema)

	batchIndex := 0
	now := time.Now()
	for _, table := range conns.source.Tables() {
		offset := 0
		for {
			batch, err := conns.source.ReadBatch(ctx, table, offset, batchSize)
			if err != nil {
				return fmt.Errorf("failed to read batch from %s: %w", table, err)
			}
			if len(batch) == 0 {
				break
			}
			offset += len(batch)

			var records []*models.MigratedRecord
			for _, rec := range batch {
				transformed, err := transformer.Transform(rec, now)
				if err != nil {
					logger.Errorf("Cannot validate record %s/%s: %v", rec.Table, rec.ID, err)
					continue
				}
				records = append(records, transformed)
			}

			for _, issue := range validator.ValidateBatch(ctx, batchIndex, records) {
				logger.Warnf("Validation [%s] batch %d: %s", issue.Check, issue.BatchIndex, issue.Detail)
			}
			batchIndex++
		}
	}

	report := validator.Report()
	logger.Infof("Validation complete. Issues: %d, ID match rate: %.4f, checksum match rate: %.4f",
		len(report.Issues), report.IDMatchRate, report.ChecksumMatchRate)

	if reportFile != "" {
		return exportJSON(report, reportFile)
	}
	return nil
}

func exportJSON(v interface{}, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	logger.Infof("Report written to %s", path)
	return nil
}
