package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransformationKind tells the validator which value transform a mapped
// field needs before rule checks run.
type TransformationKind string

const (
	TransformDirect   TransformationKind = "direct"
	TransformDate     TransformationKind = "date"
	TransformDecimal  TransformationKind = "decimal"
	TransformCurrency TransformationKind = "currency"
)

// MappingRule is a persisted field-mapping decision scoped to a company and
// source system. Rules are unique per
// (company, source_system, entity_type, source_field, target_field).
type MappingRule struct {
	ID                 uuid.UUID          `json:"id"`
	CompanyID          uuid.UUID          `json:"company_id"`
	Name               string             `json:"name"`
	SourceSystem       string             `json:"source_system"`
	EntityType         EntityType         `json:"entity_type"`
	SourceField        string             `json:"source_field"`
	TargetField        string             `json:"target_field"`
	TransformationKind TransformationKind `json:"transformation_kind"`
	ConfidenceScore    float64            `json:"confidence_score"`
	IsActive           bool               `json:"is_active"`
	CreatedBySystem    bool               `json:"created_by_system"`
	UsageCount         int                `json:"usage_count"`
	SuccessRate        float64            `json:"success_rate"`
	LastUsedAt         *time.Time         `json:"last_used_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewMappingRule creates a system-generated rule from a high-confidence
// mapping decision.
func NewMappingRule(companyID uuid.UUID, sourceSystem string, entityType EntityType, sourceField, targetField string, kind TransformationKind, confidence float64) MappingRule {
	now := time.Now()
	return MappingRule{
		ID:                 uuid.New(),
		CompanyID:          companyID,
		Name:               fmt.Sprintf("Auto: %s → %s", sourceField, targetField),
		SourceSystem:       sourceSystem,
		EntityType:         entityType,
		SourceField:        sourceField,
		TargetField:        targetField,
		TransformationKind: kind,
		ConfidenceScore:    confidence,
		IsActive:           true,
		CreatedBySystem:    true,
		UsageCount:         1,
		SuccessRate:        100,
		LastUsedAt:         &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
