package domain

import (
	"time"

	"github.com/google/uuid"
)

// ValidationStatus is the per-row outcome of the validation stage.
type ValidationStatus string

const (
	RowPending ValidationStatus = "pending"
	RowValid   ValidationStatus = "valid"
	RowInvalid ValidationStatus = "invalid"
)

// DuplicateInfo records the result of a duplicate lookup against production
// data. MatchField names the first field that matched, in lookup order.
type DuplicateInfo struct {
	Exists       bool       `json:"exists"`
	MatchField   string     `json:"match_field,omitempty"`
	ExistingID   *uuid.UUID `json:"existing_id,omitempty"`
	ExistingName string     `json:"existing_name,omitempty"`
	FuzzyMatch   bool       `json:"fuzzy_match,omitempty"`
}

// StagingRow is one source row passing through the pipeline. Raw is written
// once by the parser and never mutated afterwards; Cleaned, Mapped and
// Transformed are filled in by later stages.
type StagingRow struct {
	ID               uuid.UUID         `json:"id"`
	RunID            uuid.UUID         `json:"run_id"`
	RowNumber        int               `json:"row_number"`
	Raw              map[string]string `json:"raw"`
	Cleaned          map[string]string `json:"cleaned"`
	Mapped           map[string]string `json:"mapped,omitempty"`
	Transformed      map[string]string `json:"transformed,omitempty"`
	ValidationStatus ValidationStatus  `json:"validation_status"`
	ValidationErrors []string          `json:"validation_errors,omitempty"`
	DuplicateInfo    *DuplicateInfo    `json:"duplicate_info,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// NewStagingRow creates a pending row from parsed source data.
func NewStagingRow(runID uuid.UUID, rowNumber int, raw, cleaned map[string]string) StagingRow {
	now := time.Now()
	return StagingRow{
		ID:               uuid.New(),
		RunID:            runID,
		RowNumber:        rowNumber,
		Raw:              copyValues(raw),
		Cleaned:          copyValues(cleaned),
		ValidationStatus: RowPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func copyValues(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
