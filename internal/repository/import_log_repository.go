package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type importLogRepository struct {
	pool *pgxpool.Pool
}

// NewImportLogRepository wires a repository backed by pgxpool.
func NewImportLogRepository(pool *pgxpool.Pool) ImportLogRepository {
	return &importLogRepository{pool: pool}
}

const importLogInsert = `INSERT INTO import_logs (id, run_id, mapping_rule_id, log_type, severity,
	message, detailed_message, field_name, field_value, entity_type, entity_id, row_number,
	process_stage, confidence_score, rule_applied, processing_time, memory_usage,
	records_processed, final_data, created_at)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

func (r *importLogRepository) Record(ctx context.Context, entry domain.ImportLogEntry) error {
	args, err := importLogArgs(entry)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, importLogInsert, args...); err != nil {
		return fmt.Errorf("failed to record import log: %w", err)
	}
	return nil
}

func (r *importLogRepository) RecordBatch(ctx context.Context, entries []domain.ImportLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		args, err := importLogArgs(entry)
		if err != nil {
			return err
		}
		batch.Queue(importLogInsert, args...)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to record import log batch: %w", err)
		}
	}
	return nil
}

func (r *importLogRepository) List(ctx context.Context, runID uuid.UUID, severity *domain.LogSeverity, limit, offset int) ([]domain.ImportLogEntry, int, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM import_logs WHERE run_id = $1 AND ($2::text IS NULL OR severity = $2)`
	if err := r.pool.QueryRow(ctx, countQuery, runID, severity).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count import logs: %w", err)
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, run_id, mapping_rule_id, log_type, severity,
			message, detailed_message, field_name, field_value, entity_type, entity_id, row_number,
			process_stage, confidence_score, rule_applied, processing_time, memory_usage,
			records_processed, final_data, created_at
		 FROM import_logs
		 WHERE run_id = $1 AND ($2::text IS NULL OR severity = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		runID, severity, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list import logs: %w", err)
	}
	defer rows.Close()

	entries := []domain.ImportLogEntry{}
	for rows.Next() {
		var (
			entry            domain.ImportLogEntry
			mappingRuleID    pgtype.UUID
			entityID         pgtype.UUID
			rowNumber        pgtype.Int4
			confidenceScore  pgtype.Float8
			processingTime   pgtype.Float8
			memoryUsage      pgtype.Int8
			recordsProcessed pgtype.Int4
			finalData        []byte
		)
		if scanErr := rows.Scan(
			&entry.ID, &entry.RunID, &mappingRuleID, &entry.LogType, &entry.Severity,
			&entry.Message, &entry.DetailedMessage, &entry.FieldName, &entry.FieldValue,
			&entry.EntityType, &entityID, &rowNumber,
			&entry.ProcessStage, &confidenceScore, &entry.RuleApplied, &processingTime, &memoryUsage,
			&recordsProcessed, &finalData, &entry.CreatedAt,
		); scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan import log: %w", scanErr)
		}

		if mappingRuleID.Valid {
			id := uuid.UUID(mappingRuleID.Bytes)
			entry.MappingRuleID = &id
		}
		if entityID.Valid {
			id := uuid.UUID(entityID.Bytes)
			entry.EntityID = &id
		}
		if rowNumber.Valid {
			v := int(rowNumber.Int32)
			entry.RowNumber = &v
		}
		if confidenceScore.Valid {
			v := confidenceScore.Float64
			entry.ConfidenceScore = &v
		}
		if processingTime.Valid {
			v := processingTime.Float64
			entry.ProcessingTime = &v
		}
		if memoryUsage.Valid {
			v := memoryUsage.Int64
			entry.MemoryUsage = &v
		}
		if recordsProcessed.Valid {
			v := int(recordsProcessed.Int32)
			entry.RecordsProcessed = &v
		}
		if len(finalData) > 0 {
			if err := json.Unmarshal(finalData, &entry.FinalData); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal log final data: %w", err)
			}
		}

		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("failed to iterate import logs: %w", rowsErr)
	}

	return entries, total, nil
}

func importLogArgs(entry domain.ImportLogEntry) ([]any, error) {
	finalData, err := marshalNullableMap(entry.FinalData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log final data: %w", err)
	}
	return []any{
		entry.ID, entry.RunID, entry.MappingRuleID, entry.LogType, entry.Severity,
		entry.Message, entry.DetailedMessage, entry.FieldName, entry.FieldValue,
		entry.EntityType, entry.EntityID, entry.RowNumber,
		entry.ProcessStage, entry.ConfidenceScore, entry.RuleApplied, entry.ProcessingTime,
		entry.MemoryUsage, entry.RecordsProcessed, finalData, entry.CreatedAt,
	}, nil
}
