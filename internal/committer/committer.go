// Package committer implements the final pipeline stage: moving valid rows
// into production inside one atomic transaction, resolving duplicates by
// policy, rolling back entirely on unrecoverable failure.
package committer

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/validator"
	importerrors "github.com/bloodyteeths/mkfakturi-sub009/pkg/errors"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

const loadBatchSize = 500

// Config holds the committer's settings.
type Config struct {
	BaseCurrency string
	// KeepSourceFile disables the post-commit file deletion, used by the
	// force-commit surface when callers want the original retained.
	KeepSourceFile bool
}

// Stats accounts for every valid row the committer saw:
// Committed + Updated + Skipped + Failed equals the valid row count.
type Stats struct {
	Committed int `json:"committed"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Total returns the number of rows the committer processed.
func (s Stats) Total() int {
	return s.Committed + s.Updated + s.Skipped + s.Failed
}

// TxRunner runs a function inside a transaction, rolling back when it
// returns an error. Satisfied by db.Connection.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Committer writes validated rows to production.
type Committer struct {
	conn       TxRunner
	staging    repository.StagingRepository
	production repository.ProductionRepository
	logs       repository.ImportLogRepository
	cfg        Config
	log        logger.Logger
}

// New creates a committer over the shared connection.
func New(conn TxRunner, staging repository.StagingRepository, production repository.ProductionRepository, logs repository.ImportLogRepository, cfg Config, log logger.Logger) *Committer {
	return &Committer{
		conn:       conn,
		staging:    staging,
		production: production,
		logs:       logs,
		cfg:        cfg,
		log:        log.WithComponent("committer"),
	}
}

// Commit moves every valid row of the run into production inside a single
// transaction. Row construction failures are counted and logged without
// aborting; a storage failure rolls the whole transaction back, leaving
// production at the pre-commit checkpoint.
func (c *Committer) Commit(ctx context.Context, run domain.ImportRun) (Stats, error) {
	checkpoint, err := c.production.Counts(ctx, run.CompanyID)
	if err != nil {
		return Stats{}, importerrors.Transient(err, "committing", "failed to snapshot production counts")
	}

	groups, err := c.loadValidRows(ctx, run)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	var logEntries []domain.ImportLogEntry

	txErr := c.conn.WithTx(ctx, func(tx pgx.Tx) error {
		currency, curErr := c.production.GetOrCreateCurrency(ctx, tx, c.cfg.BaseCurrency, c.cfg.BaseCurrency)
		if curErr != nil {
			return importerrors.Commit(curErr, "failed to resolve base currency")
		}

		env := &commitEnv{
			committer: c,
			tx:        tx,
			run:       run,
			currency:  currency,
		}

		for _, entityType := range domain.StagedEntityTypes {
			for _, row := range groups[entityType] {
				entry, rowErr := env.commitRow(ctx, entityType, row)
				if rowErr != nil {
					var ie *importerrors.ImportError
					if stderrors.As(rowErr, &ie) && ie.Category == importerrors.CategoryCommit {
						// Transaction state is suspect; bail out and roll back.
						return rowErr
					}
					stats.Failed++
					logEntries = append(logEntries, failedEntry(run, entityType, row, rowErr))
					continue
				}
				switch entry.LogType {
				case domain.LogRecordCommitted:
					stats.Committed++
				case domain.LogDuplicateResolved:
					if entry.RuleApplied == string(domain.DuplicateUpdate) {
						stats.Updated++
					} else {
						stats.Skipped++
					}
				}
				logEntries = append(logEntries, entry)
			}
		}
		return nil
	})

	if txErr != nil {
		c.recordRollback(ctx, run, checkpoint, stats, txErr)
		return Stats{}, importerrors.Commit(txErr, "commit transaction rolled back")
	}

	if err := c.logs.RecordBatch(ctx, logEntries); err != nil {
		c.log.WithError(err).Warn("failed to record commit audit entries")
	}

	c.cleanup(ctx, run)

	c.log.WithFields(logger.Fields{
		"run_id":    run.ID,
		"committed": stats.Committed,
		"updated":   stats.Updated,
		"skipped":   stats.Skipped,
		"failed":    stats.Failed,
	}).Info("commit completed")

	return stats, nil
}

// loadValidRows pages the run's valid rows out of staging and groups them by
// entity type in dependency order: customers and items before invoices,
// invoices before payments, expenses last.
func (c *Committer) loadValidRows(ctx context.Context, run domain.ImportRun) (map[domain.EntityType][]domain.StagingRow, error) {
	valid := domain.RowValid
	partition := run.Type.StagingPartition()
	groups := make(map[domain.EntityType][]domain.StagingRow)

	offset := 0
	for {
		rows, err := c.staging.ListByRun(ctx, partition, run.ID, &valid, loadBatchSize, offset)
		if err != nil {
			return nil, importerrors.Transient(err, "committing", "failed to read valid rows")
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			entityType := validator.EntityFor(run.Type, row.Transformed)
			groups[entityType] = append(groups[entityType], row)
		}
		if len(rows) < loadBatchSize {
			break
		}
		offset += len(rows)
	}
	return groups, nil
}

// recordRollback writes the rollback audit entry with the checkpoint and the
// partial statistics gathered before the transaction unwound.
func (c *Committer) recordRollback(ctx context.Context, run domain.ImportRun, checkpoint repository.ProductionCounts, stats Stats, cause error) {
	entry := domain.NewLogEntry(run.ID, domain.LogRollbackExecuted, domain.SeverityError,
		"commit transaction rolled back, production data unchanged")
	entry.DetailedMessage = cause.Error()
	entry.ProcessStage = "committing"
	entry.FinalData = map[string]any{
		"checkpoint":    checkpoint,
		"partial_stats": stats,
	}
	if err := c.logs.Record(ctx, entry); err != nil {
		c.log.WithError(err).Error("failed to record rollback entry")
	}
	c.log.WithFields(logger.Fields{"run_id": run.ID}).WithError(cause).Error("commit rolled back")
}

// cleanup removes the staged rows and the source file once their contents
// are safely in production. Failures here are logged, never fatal.
func (c *Committer) cleanup(ctx context.Context, run domain.ImportRun) {
	if err := c.staging.DeleteByRun(ctx, run.Type.StagingPartition(), run.ID); err != nil {
		c.log.WithError(err).Warn("failed to delete staged rows after commit")
	}
	if c.cfg.KeepSourceFile {
		return
	}
	if err := os.Remove(run.FilePath); err != nil && !os.IsNotExist(err) {
		c.log.WithError(err).Warn("failed to delete source file after commit")
	}
}

func failedEntry(run domain.ImportRun, entityType domain.EntityType, row domain.StagingRow, cause error) domain.ImportLogEntry {
	rowNumber := row.RowNumber
	entry := domain.NewLogEntry(run.ID, domain.LogRecordFailed, domain.SeverityError,
		fmt.Sprintf("row %d could not be committed", row.RowNumber))
	entry.DetailedMessage = cause.Error()
	entry.EntityType = entityType
	entry.RowNumber = &rowNumber
	entry.ProcessStage = "committing"
	return entry
}
