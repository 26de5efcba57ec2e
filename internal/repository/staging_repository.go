package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type stagingRepository struct {
	pool *pgxpool.Pool
}

// NewStagingRepository wires a repository backed by pgxpool.
func NewStagingRepository(pool *pgxpool.Pool) StagingRepository {
	return &stagingRepository{pool: pool}
}

// stagingTable resolves an entity type to its staging table. The switch is
// deliberately closed: SQL identifiers never come from input data.
func stagingTable(entityType domain.EntityType) (string, error) {
	switch entityType {
	case domain.EntityCustomers:
		return "staging_customers", nil
	case domain.EntityInvoices:
		return "staging_invoices", nil
	case domain.EntityItems:
		return "staging_items", nil
	case domain.EntityPayments:
		return "staging_payments", nil
	case domain.EntityExpenses:
		return "staging_expenses", nil
	}
	return "", fmt.Errorf("no staging table for entity type %q", entityType)
}

func (r *stagingRepository) CreateBatch(ctx context.Context, entityType domain.EntityType, rows []domain.StagingRow) error {
	table, err := stagingTable(entityType)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, sr := range rows {
		raw, mErr := json.Marshal(sr.Raw)
		if mErr != nil {
			return fmt.Errorf("failed to marshal raw data for row %d: %w", sr.RowNumber, mErr)
		}
		cleaned, mErr := json.Marshal(sr.Cleaned)
		if mErr != nil {
			return fmt.Errorf("failed to marshal cleaned data for row %d: %w", sr.RowNumber, mErr)
		}
		batch.Queue(
			fmt.Sprintf(`INSERT INTO %s (id, run_id, row_number, raw_data, cleaned_data, validation_status, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, table),
			sr.ID, sr.RunID, sr.RowNumber, raw, cleaned, sr.ValidationStatus, sr.CreatedAt, sr.UpdatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("failed to stage rows into %s: %w", table, execErr)
		}
	}
	return nil
}

func (r *stagingRepository) ListByRun(ctx context.Context, entityType domain.EntityType, runID uuid.UUID, status *domain.ValidationStatus, limit, offset int) ([]domain.StagingRow, error) {
	table, err := stagingTable(entityType)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		fmt.Sprintf(`SELECT id, run_id, row_number, raw_data, cleaned_data, mapped_data, transformed_data,
				validation_status, validation_errors, duplicate_info, created_at, updated_at
			 FROM %s
			 WHERE run_id = $1 AND ($2::text IS NULL OR validation_status = $2)
			 ORDER BY row_number
			 LIMIT $3 OFFSET $4`, table),
		runID, status, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged rows from %s: %w", table, err)
	}
	defer rows.Close()

	staged := []domain.StagingRow{}
	for rows.Next() {
		sr, scanErr := scanStagingRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan staged row from %s: %w", table, scanErr)
		}
		staged = append(staged, sr)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate staged rows from %s: %w", table, rowsErr)
	}
	return staged, nil
}

func (r *stagingRepository) UpdateMapped(ctx context.Context, entityType domain.EntityType, rows []domain.StagingRow) error {
	table, err := stagingTable(entityType)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	now := time.Now()
	for _, sr := range rows {
		mapped, mErr := json.Marshal(sr.Mapped)
		if mErr != nil {
			return fmt.Errorf("failed to marshal mapped data for row %d: %w", sr.RowNumber, mErr)
		}
		batch.Queue(
			fmt.Sprintf(`UPDATE %s SET mapped_data = $2, updated_at = $3 WHERE id = $1`, table),
			sr.ID, mapped, now,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("failed to update mapped data in %s: %w", table, execErr)
		}
	}
	return nil
}

func (r *stagingRepository) UpdateValidation(ctx context.Context, entityType domain.EntityType, rows []domain.StagingRow) error {
	table, err := stagingTable(entityType)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	now := time.Now()
	for _, sr := range rows {
		transformed, mErr := json.Marshal(sr.Transformed)
		if mErr != nil {
			return fmt.Errorf("failed to marshal transformed data for row %d: %w", sr.RowNumber, mErr)
		}
		validationErrors, mErr := marshalNullableSlice(sr.ValidationErrors)
		if mErr != nil {
			return fmt.Errorf("failed to marshal validation errors for row %d: %w", sr.RowNumber, mErr)
		}
		duplicateInfo, mErr := marshalNullable(sr.DuplicateInfo)
		if mErr != nil {
			return fmt.Errorf("failed to marshal duplicate info for row %d: %w", sr.RowNumber, mErr)
		}
		batch.Queue(
			fmt.Sprintf(`UPDATE %s SET transformed_data = $2, validation_status = $3,
					validation_errors = $4, duplicate_info = $5, updated_at = $6
				 WHERE id = $1`, table),
			sr.ID, transformed, sr.ValidationStatus, validationErrors, duplicateInfo, now,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("failed to update validation results in %s: %w", table, execErr)
		}
	}
	return nil
}

func (r *stagingRepository) CountByStatus(ctx context.Context, entityType domain.EntityType, runID uuid.UUID) (map[domain.ValidationStatus]int, error) {
	table, err := stagingTable(entityType)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(
		ctx,
		fmt.Sprintf(`SELECT validation_status, COUNT(*) FROM %s WHERE run_id = $1 GROUP BY validation_status`, table),
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count staged rows in %s: %w", table, err)
	}
	defer rows.Close()

	counts := map[domain.ValidationStatus]int{}
	for rows.Next() {
		var (
			status domain.ValidationStatus
			count  int
		)
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan staged row counts from %s: %w", table, scanErr)
		}
		counts[status] = count
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate staged row counts from %s: %w", table, rowsErr)
	}
	return counts, nil
}

func (r *stagingRepository) DeleteByRun(ctx context.Context, entityType domain.EntityType, runID uuid.UUID) error {
	table, err := stagingTable(entityType)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE run_id = $1`, table), runID); err != nil {
		return fmt.Errorf("failed to delete staged rows from %s: %w", table, err)
	}
	return nil
}

func scanStagingRow(row pgx.Row) (domain.StagingRow, error) {
	var (
		sr               domain.StagingRow
		raw              []byte
		cleaned          []byte
		mapped           []byte
		transformed      []byte
		validationErrors []byte
		duplicateInfo    []byte
	)

	if err := row.Scan(
		&sr.ID, &sr.RunID, &sr.RowNumber, &raw, &cleaned, &mapped, &transformed,
		&sr.ValidationStatus, &validationErrors, &duplicateInfo, &sr.CreatedAt, &sr.UpdatedAt,
	); err != nil {
		return domain.StagingRow{}, err
	}

	if err := json.Unmarshal(raw, &sr.Raw); err != nil {
		return domain.StagingRow{}, fmt.Errorf("failed to unmarshal raw data: %w", err)
	}
	if err := json.Unmarshal(cleaned, &sr.Cleaned); err != nil {
		return domain.StagingRow{}, fmt.Errorf("failed to unmarshal cleaned data: %w", err)
	}
	if len(mapped) > 0 {
		if err := json.Unmarshal(mapped, &sr.Mapped); err != nil {
			return domain.StagingRow{}, fmt.Errorf("failed to unmarshal mapped data: %w", err)
		}
	}
	if len(transformed) > 0 {
		if err := json.Unmarshal(transformed, &sr.Transformed); err != nil {
			return domain.StagingRow{}, fmt.Errorf("failed to unmarshal transformed data: %w", err)
		}
	}
	if len(validationErrors) > 0 {
		if err := json.Unmarshal(validationErrors, &sr.ValidationErrors); err != nil {
			return domain.StagingRow{}, fmt.Errorf("failed to unmarshal validation errors: %w", err)
		}
	}
	if len(duplicateInfo) > 0 {
		info := &domain.DuplicateInfo{}
		if err := json.Unmarshal(duplicateInfo, info); err != nil {
			return domain.StagingRow{}, fmt.Errorf("failed to unmarshal duplicate info: %w", err)
		}
		sr.DuplicateInfo = info
	}

	return sr, nil
}

func marshalNullableSlice(values []string) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return json.Marshal(values)
}
