package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type mappingRuleRepository struct {
	pool *pgxpool.Pool
}

// NewMappingRuleRepository wires a repository backed by pgxpool.
func NewMappingRuleRepository(pool *pgxpool.Pool) MappingRuleRepository {
	return &mappingRuleRepository{pool: pool}
}

const mappingRuleColumns = `id, company_id, name, source_system, entity_type, source_field, target_field,
	transformation_kind, confidence_score, is_active, created_by_system,
	usage_count, success_rate, last_used_at, created_at, updated_at`

func (r *mappingRuleRepository) ListActive(ctx context.Context, companyID uuid.UUID, sourceSystem string, entityType domain.EntityType) ([]domain.MappingRule, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+mappingRuleColumns+`
		 FROM mapping_rules
		 WHERE company_id = $1 AND source_system = $2 AND entity_type = $3 AND is_active
		 ORDER BY confidence_score DESC, usage_count DESC`,
		companyID, sourceSystem, entityType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list mapping rules: %w", err)
	}
	defer rows.Close()

	rules := []domain.MappingRule{}
	for rows.Next() {
		rule, scanErr := scanMappingRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan mapping rule: %w", scanErr)
		}
		rules = append(rules, rule)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate mapping rules: %w", rowsErr)
	}
	return rules, nil
}

// Save upserts on the rule's identity tuple. A conflict means the mapping was
// seen before: usage count and confidence are refreshed, the row is reused.
func (r *mappingRuleRepository) Save(ctx context.Context, rule domain.MappingRule) (domain.MappingRule, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO mapping_rules (id, company_id, name, source_system, entity_type, source_field, target_field,
			transformation_kind, confidence_score, is_active, created_by_system,
			usage_count, success_rate, last_used_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (company_id, source_system, entity_type, source_field, target_field)
		 DO UPDATE SET
			usage_count = mapping_rules.usage_count + 1,
			confidence_score = GREATEST(mapping_rules.confidence_score, EXCLUDED.confidence_score),
			last_used_at = EXCLUDED.last_used_at,
			updated_at = EXCLUDED.updated_at
		 RETURNING `+mappingRuleColumns,
		rule.ID, rule.CompanyID, rule.Name, rule.SourceSystem, rule.EntityType, rule.SourceField, rule.TargetField,
		rule.TransformationKind, rule.ConfidenceScore, rule.IsActive, rule.CreatedBySystem,
		rule.UsageCount, rule.SuccessRate, rule.LastUsedAt, rule.CreatedAt, rule.UpdatedAt,
	)

	saved, err := scanMappingRule(row)
	if err != nil {
		return domain.MappingRule{}, fmt.Errorf("failed to save mapping rule: %w", err)
	}
	return saved, nil
}

func (r *mappingRuleRepository) RecordUsage(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE mapping_rules SET usage_count = usage_count + 1, last_used_at = $2, updated_at = $2 WHERE id = $1`,
		id, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record mapping rule usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mapping rule not found: %s", id)
	}
	return nil
}

func scanMappingRule(row pgx.Row) (domain.MappingRule, error) {
	var (
		rule       domain.MappingRule
		lastUsedAt pgtype.Timestamptz
	)

	if err := row.Scan(
		&rule.ID, &rule.CompanyID, &rule.Name, &rule.SourceSystem, &rule.EntityType,
		&rule.SourceField, &rule.TargetField,
		&rule.TransformationKind, &rule.ConfidenceScore, &rule.IsActive, &rule.CreatedBySystem,
		&rule.UsageCount, &rule.SuccessRate, &lastUsedAt, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return domain.MappingRule{}, err
	}

	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		rule.LastUsedAt = &t
	}
	return rule, nil
}
