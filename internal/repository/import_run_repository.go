package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type importRunRepository struct {
	pool *pgxpool.Pool
}

// NewImportRunRepository wires a repository backed by pgxpool.
func NewImportRunRepository(pool *pgxpool.Pool) ImportRunRepository {
	return &importRunRepository{pool: pool}
}

const importRunColumns = `id, company_id, creator_id, type, source_system, file_path, file_info,
	status, total_records, processed_records, successful_records, failed_records,
	mapping_config, duplicate_policy, error_message, error_context,
	started_at, completed_at, created_at, updated_at`

func (r *importRunRepository) Create(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error) {
	fileInfo, err := marshalNullable(run.FileInfo)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to marshal file info: %w", err)
	}
	mappingConfig, err := marshalNullable(run.MappingConfig)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to marshal mapping config: %w", err)
	}
	errorContext, err := marshalNullableMap(run.ErrorContext)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to marshal error context: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO import_runs (id, company_id, creator_id, type, source_system, file_path, file_info,
			status, total_records, processed_records, successful_records, failed_records,
			mapping_config, duplicate_policy, error_message, error_context,
			started_at, completed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		run.ID, run.CompanyID, run.CreatorID, run.Type, run.SourceSystem, run.FilePath, fileInfo,
		run.Status, run.Counters.TotalRecords, run.Counters.ProcessedRecords,
		run.Counters.SuccessfulRecords, run.Counters.FailedRecords,
		mappingConfig, run.DuplicatePolicy, run.ErrorMessage, errorContext,
		run.StartedAt, run.CompletedAt, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to create import run: %w", err)
	}

	return run, nil
}

func (r *importRunRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportRun, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+importRunColumns+` FROM import_runs WHERE id = $1`,
		id,
	)
	run, err := scanImportRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportRun{}, runNotFound(id)
		}
		return domain.ImportRun{}, fmt.Errorf("failed to get import run: %w", err)
	}
	return run, nil
}

// runNotFound keeps pgx.ErrNoRows in the chain; the HTTP layer maps the
// sentinel to 404.
func runNotFound(id uuid.UUID) error {
	return fmt.Errorf("import run not found %s: %w", id, pgx.ErrNoRows)
}

func (r *importRunRepository) List(ctx context.Context, companyID uuid.UUID, status *domain.RunStatus, limit, offset int) ([]domain.ImportRun, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM import_runs WHERE company_id = $1 AND ($2::text IS NULL OR status = $2)`
	if err := r.pool.QueryRow(ctx, countQuery, companyID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count import runs: %w", err)
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+importRunColumns+`
		 FROM import_runs
		 WHERE company_id = $1 AND ($2::text IS NULL OR status = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		companyID, status, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list import runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.ImportRun{}
	for rows.Next() {
		run, scanErr := scanImportRun(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan import run: %w", scanErr)
		}
		runs = append(runs, run)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("failed to iterate import runs: %w", rowsErr)
	}

	return runs, total, nil
}

func (r *importRunRepository) Update(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error) {
	fileInfo, err := marshalNullable(run.FileInfo)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to marshal file info: %w", err)
	}
	mappingConfig, err := marshalNullable(run.MappingConfig)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to marshal mapping config: %w", err)
	}
	errorContext, err := marshalNullableMap(run.ErrorContext)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to marshal error context: %w", err)
	}

	run.UpdatedAt = time.Now()
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE import_runs SET
			file_info = $2, status = $3,
			total_records = $4, processed_records = $5, successful_records = $6, failed_records = $7,
			mapping_config = $8, duplicate_policy = $9, error_message = $10, error_context = $11,
			started_at = $12, completed_at = $13, updated_at = $14
		 WHERE id = $1`,
		run.ID, fileInfo, run.Status,
		run.Counters.TotalRecords, run.Counters.ProcessedRecords,
		run.Counters.SuccessfulRecords, run.Counters.FailedRecords,
		mappingConfig, run.DuplicatePolicy, run.ErrorMessage, errorContext,
		run.StartedAt, run.CompletedAt, run.UpdatedAt,
	)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to update import run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ImportRun{}, runNotFound(run.ID)
	}

	return run, nil
}

func (r *importRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM import_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete import run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return runNotFound(id)
	}
	return nil
}

func scanImportRun(row pgx.Row) (domain.ImportRun, error) {
	var (
		run           domain.ImportRun
		fileInfo      []byte
		mappingConfig []byte
		errorContext  []byte
		startedAt     pgtype.Timestamptz
		completedAt   pgtype.Timestamptz
	)

	if err := row.Scan(
		&run.ID, &run.CompanyID, &run.CreatorID, &run.Type, &run.SourceSystem, &run.FilePath, &fileInfo,
		&run.Status, &run.Counters.TotalRecords, &run.Counters.ProcessedRecords,
		&run.Counters.SuccessfulRecords, &run.Counters.FailedRecords,
		&mappingConfig, &run.DuplicatePolicy, &run.ErrorMessage, &errorContext,
		&startedAt, &completedAt, &run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		return domain.ImportRun{}, err
	}

	if len(fileInfo) > 0 {
		info := &domain.FileInfo{}
		if err := json.Unmarshal(fileInfo, info); err != nil {
			return domain.ImportRun{}, fmt.Errorf("failed to unmarshal file info: %w", err)
		}
		run.FileInfo = info
	}
	if len(mappingConfig) > 0 {
		cfg := &domain.MappingConfig{}
		if err := json.Unmarshal(mappingConfig, cfg); err != nil {
			return domain.ImportRun{}, fmt.Errorf("failed to unmarshal mapping config: %w", err)
		}
		run.MappingConfig = cfg
	}
	if len(errorContext) > 0 {
		if err := json.Unmarshal(errorContext, &run.ErrorContext); err != nil {
			return domain.ImportRun{}, fmt.Errorf("failed to unmarshal error context: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}

	return run, nil
}

// marshalNullable serializes a pointer value, keeping SQL NULL for nil.
func marshalNullable[T any](p *T) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func marshalNullableMap[K comparable, V any](m map[K]V) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
