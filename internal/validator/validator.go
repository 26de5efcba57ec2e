// Package validator implements the fourth pipeline stage: value transforms,
// business-rule checks and duplicate detection over mapped rows.
package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/transform"
	importerrors "github.com/bloodyteeths/mkfakturi-sub009/pkg/errors"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

// Config holds the validator's tunables.
type Config struct {
	BatchSize int
}

// Result aggregates the validation pass.
type Result struct {
	Processed int
	Valid     int
	Invalid   int
}

// Validator checks and transforms staged rows.
type Validator struct {
	staging    repository.StagingRepository
	production repository.ProductionRepository
	logs       repository.ImportLogRepository
	converter  *transform.Converter
	cfg        Config
	log        logger.Logger
}

// New creates a validator. The converter carries the company's base
// currency for amount scaling.
func New(staging repository.StagingRepository, production repository.ProductionRepository, logs repository.ImportLogRepository, converter *transform.Converter, cfg Config, log logger.Logger) *Validator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Validator{
		staging:    staging,
		production: production,
		logs:       logs,
		converter:  converter,
		cfg:        cfg,
		log:        log.WithComponent("validator"),
	}
}

// Validate processes every staged row of the run: transform, rule check,
// duplicate lookup. Rows are independent; one row's failure never blocks
// another's. A run where zero rows validate is a failure.
func (v *Validator) Validate(ctx context.Context, run domain.ImportRun) (Result, error) {
	if run.MappingConfig == nil || len(run.MappingConfig.Mappings) == 0 {
		return Result{}, importerrors.Structural("validating", "run has no mapping configuration")
	}
	kinds := kindsByTarget(run.MappingConfig)
	partition := run.Type.StagingPartition()
	refs := &customerRefCache{}

	var result Result
	offset := 0
	for {
		rows, err := v.staging.ListByRun(ctx, partition, run.ID, nil, v.cfg.BatchSize, offset)
		if err != nil {
			return result, importerrors.Transient(err, "validating", "failed to read staged rows")
		}
		if len(rows) == 0 {
			break
		}

		var logEntries []domain.ImportLogEntry
		for i := range rows {
			entries := v.validateRow(ctx, run, &rows[i], kinds, refs)
			logEntries = append(logEntries, entries...)
			result.Processed++
			if rows[i].ValidationStatus == domain.RowValid {
				result.Valid++
			} else {
				result.Invalid++
			}
		}

		if err := v.staging.UpdateValidation(ctx, partition, rows); err != nil {
			return result, importerrors.Transient(err, "validating", "failed to persist validation results")
		}
		if err := v.logs.RecordBatch(ctx, logEntries); err != nil {
			v.log.WithError(err).Warn("failed to record validation audit entries")
		}

		if len(rows) < v.cfg.BatchSize {
			break
		}
		offset += len(rows)
	}

	v.log.WithFields(logger.Fields{
		"run_id":  run.ID,
		"valid":   result.Valid,
		"invalid": result.Invalid,
	}).Info("validation completed")

	if result.Valid == 0 {
		return result, importerrors.New(importerrors.CategoryValidation, "validating",
			fmt.Sprintf("no rows passed validation (%d invalid)", result.Invalid))
	}
	return result, nil
}

// validateRow mutates the row in place and returns its audit entries.
func (v *Validator) validateRow(ctx context.Context, run domain.ImportRun, row *domain.StagingRow, kinds map[string]domain.TransformationKind, refs *customerRefCache) []domain.ImportLogEntry {
	var entries []domain.ImportLogEntry

	if len(row.Mapped) == 0 {
		row.ValidationStatus = domain.RowInvalid
		row.ValidationErrors = []string{"row has no mapped values"}
		entries = append(entries, v.failureEntry(run, row))
		return entries
	}

	transformed, violations := v.transformValues(row.Mapped, kinds)
	row.Transformed = transformed

	entityType := EntityFor(run.Type, transformed)
	violations = append(violations, checkFields(entityType, transformed)...)

	if len(violations) > 0 {
		row.ValidationStatus = domain.RowInvalid
		row.ValidationErrors = violations
		entries = append(entries, v.failureEntry(run, row))
		return entries
	}

	dup, err := v.detectDuplicate(ctx, run, entityType, transformed, refs)
	if err != nil {
		row.ValidationStatus = domain.RowInvalid
		row.ValidationErrors = []string{fmt.Sprintf("duplicate lookup failed: %v", err)}
		entries = append(entries, v.failureEntry(run, row))
		return entries
	}

	row.ValidationStatus = domain.RowValid
	row.ValidationErrors = nil
	row.DuplicateInfo = dup

	if dup.Exists {
		rowNumber := row.RowNumber
		entry := domain.NewLogEntry(run.ID, domain.LogDuplicateDetected, domain.SeverityWarning,
			fmt.Sprintf("row %d matches existing %s record by %s", row.RowNumber, entityType, dup.MatchField))
		entry.EntityType = entityType
		entry.EntityID = dup.ExistingID
		entry.RowNumber = &rowNumber
		entry.FieldName = dup.MatchField
		entry.ProcessStage = "validating"
		entries = append(entries, entry)
	}
	return entries
}

func (v *Validator) failureEntry(run domain.ImportRun, row *domain.StagingRow) domain.ImportLogEntry {
	rowNumber := row.RowNumber
	entry := domain.NewLogEntry(run.ID, domain.LogValidationFailed, domain.SeverityError,
		fmt.Sprintf("row %d failed validation", row.RowNumber))
	entry.DetailedMessage = strings.Join(row.ValidationErrors, "; ")
	entry.RowNumber = &rowNumber
	entry.ProcessStage = "validating"
	return entry
}

// transformValues applies the per-field transformation kinds, returning the
// transformed map and any conversion violations.
func (v *Validator) transformValues(mapped map[string]string, kinds map[string]domain.TransformationKind) (map[string]string, []string) {
	transformed := make(map[string]string, len(mapped))
	var violations []string

	for target, value := range mapped {
		value = strings.TrimSpace(value)
		kind := kinds[target]

		switch kind {
		case domain.TransformDate:
			if value == "" {
				transformed[target] = ""
				continue
			}
			_, canonical, err := transform.Date(value)
			if err != nil {
				violations = append(violations, fmt.Sprintf("invalid %s: %v", target, err))
				transformed[target] = value
				continue
			}
			transformed[target] = canonical

		case domain.TransformDecimal:
			if value == "" {
				transformed[target] = ""
				continue
			}
			d, err := transform.Decimal(value)
			if err != nil {
				violations = append(violations, fmt.Sprintf("invalid %s: %v", target, err))
				transformed[target] = value
				continue
			}
			transformed[target] = d.String()

		case domain.TransformCurrency:
			if value == "" {
				transformed[target] = ""
				continue
			}
			d, err := transform.Decimal(value)
			if err != nil {
				violations = append(violations, fmt.Sprintf("invalid %s: %v", target, err))
				transformed[target] = value
				continue
			}
			converted, err := v.converter.Convert(d, mapped["currency"])
			if err != nil {
				violations = append(violations, fmt.Sprintf("cannot convert %s: %v", target, err))
				transformed[target] = d.StringFixed(2)
				continue
			}
			transformed[target] = converted.StringFixed(2)

		default:
			transformed[target] = value
		}
	}
	return transformed, violations
}

func kindsByTarget(cfg *domain.MappingConfig) map[string]domain.TransformationKind {
	kinds := make(map[string]domain.TransformationKind, len(cfg.Mappings))
	for _, result := range cfg.Mappings {
		if result.TargetField != "" {
			kinds[result.TargetField] = domain.TransformationKind(result.TransformationKind)
		}
	}
	return kinds
}

// EntityFor resolves which entity's rules apply to a row. Declared
// single-entity runs are fixed; complete imports infer from the shape of the
// mapped fields.
func EntityFor(runType domain.EntityType, values map[string]string) domain.EntityType {
	if runType != domain.EntityComplete {
		return runType
	}
	switch {
	case values["expense_number"] != "" || values["expense_date"] != "" || values["vendor"] != "" || values["expense_category"] != "":
		return domain.EntityExpenses
	case values["payment_number"] != "" || values["payment_date"] != "" || values["payment_method"] != "":
		return domain.EntityPayments
	case values["invoice_number"] != "" && (values["total"] != "" || values["invoice_date"] != ""):
		return domain.EntityInvoices
	case values["sku"] != "" || values["price"] != "" || values["unit_name"] != "":
		return domain.EntityItems
	default:
		return domain.EntityCustomers
	}
}
