// Package mapper implements the third pipeline stage: proposing a target
// schema field for every source column with a confidence score, learning
// high-confidence decisions as reusable rules.
package mapper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
	importerrors "github.com/bloodyteeths/mkfakturi-sub009/pkg/errors"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

const projectionBatchSize = 500

// Config holds the mapper's confidence thresholds.
type Config struct {
	// MinConfidence admits a mapping; HighConfidence auto-applies it and
	// persists it as a rule.
	MinConfidence  float64
	HighConfidence float64
}

// Mapper proposes and applies field mappings.
type Mapper struct {
	rules   repository.MappingRuleRepository
	staging repository.StagingRepository
	logs    repository.ImportLogRepository
	cfg     Config
	log     logger.Logger
}

// New creates a mapper over the rule store and staging store.
func New(rules repository.MappingRuleRepository, staging repository.StagingRepository, logs repository.ImportLogRepository, cfg Config, log logger.Logger) *Mapper {
	return &Mapper{rules: rules, staging: staging, logs: logs, cfg: cfg, log: log.WithComponent("mapper")}
}

// Map resolves every source field of the run to a target field, persists
// learned rules, projects auto-applied mappings onto all staged rows and
// returns the mapping configuration to store on the run.
func (m *Mapper) Map(ctx context.Context, run domain.ImportRun) (*domain.MappingConfig, error) {
	sourceFields, err := m.sourceFields(ctx, run)
	if err != nil {
		return nil, err
	}
	if len(sourceFields) == 0 {
		return nil, importerrors.Structural("mapping", "no source fields to map")
	}

	stored, err := m.rules.ListActive(ctx, run.CompanyID, run.SourceSystem, run.Type)
	if err != nil {
		return nil, importerrors.Transient(err, "mapping", "failed to load mapping rules")
	}
	storedBySource := make(map[string]domain.MappingRule, len(stored))
	for _, rule := range stored {
		if _, ok := storedBySource[rule.SourceField]; !ok {
			storedBySource[rule.SourceField] = rule
		}
	}

	var overrides map[string]string
	if run.MappingConfig != nil {
		overrides = run.MappingConfig.Overrides
	}

	cfg := &domain.MappingConfig{
		AutoMappingCompleted: true,
		AutoMappingTimestamp: time.Now(),
		TotalFields:          len(sourceFields),
		Mappings:             make(map[string]domain.FieldResult, len(sourceFields)),
		Overrides:            overrides,
	}

	var logEntries []domain.ImportLogEntry
	for _, source := range sourceFields {
		result := m.resolveField(ctx, run, source, storedBySource, overrides)
		cfg.Mappings[source] = result
		if result.Mapped {
			cfg.MappedFields++
		}
		if result.Confidence >= m.cfg.HighConfidence {
			cfg.HighConfidenceMappings++
		}
		logEntries = append(logEntries, mappingLogEntry(run.ID, result))

		if result.AutoApplied && result.Algorithm != algorithmStoredRule && result.Algorithm != algorithmOverride {
			rule := domain.NewMappingRule(run.CompanyID, run.SourceSystem, run.Type,
				result.SourceField, result.TargetField,
				domain.TransformationKind(result.TransformationKind), result.Confidence)
			if _, saveErr := m.rules.Save(ctx, rule); saveErr != nil {
				return nil, importerrors.Transient(saveErr, "mapping", "failed to persist mapping rule")
			}
		}
	}

	if err := m.logs.RecordBatch(ctx, logEntries); err != nil {
		m.log.WithError(err).Warn("failed to record mapping audit entries")
	}

	mappedFraction := float64(cfg.MappedFields) / float64(cfg.TotalFields)
	cfg.RequiresManualReview = mappedFraction < m.cfg.MinConfidence

	if err := m.project(ctx, run, cfg); err != nil {
		return nil, err
	}

	m.log.WithFields(logger.Fields{
		"run_id":        run.ID,
		"total_fields":  cfg.TotalFields,
		"mapped_fields": cfg.MappedFields,
		"manual_review": cfg.RequiresManualReview,
	}).Info("field mapping completed")

	return cfg, nil
}

const (
	algorithmExact         = "exact"
	algorithmStoredRule    = "stored_rule"
	algorithmSourcePattern = "source_pattern"
	algorithmSynonym       = "synonym"
	algorithmSimilarity    = "similarity"
	algorithmOverride      = "override"
)

// resolveField picks the best target for one source field. Resolution order:
// caller override, stored rule, competitor pattern, exact or synonym match,
// then the similarity blend.
func (m *Mapper) resolveField(ctx context.Context, run domain.ImportRun, source string, stored map[string]domain.MappingRule, overrides map[string]string) domain.FieldResult {
	if target, ok := overrides[source]; ok {
		return domain.FieldResult{
			SourceField:        source,
			TargetField:        target,
			Confidence:         1.0,
			TransformationKind: string(KindFor(run.Type, target)),
			Mapped:             true,
			AutoApplied:        true,
			Algorithm:          algorithmOverride,
		}
	}

	if rule, ok := stored[source]; ok {
		if err := m.rules.RecordUsage(ctx, rule.ID); err != nil {
			m.log.WithError(err).Warn("failed to record mapping rule usage")
		}
		return domain.FieldResult{
			SourceField:        source,
			TargetField:        rule.TargetField,
			Confidence:         1.0,
			TransformationKind: string(rule.TransformationKind),
			Mapped:             true,
			AutoApplied:        true,
			Algorithm:          algorithmStoredRule,
		}
	}

	normalized := normalize(source)
	targets := TargetsFor(run.Type)

	if target := patternTarget(run.SourceSystem, normalized); target != "" {
		return m.heuristicResult(run.Type, source, target, 1.0, algorithmSourcePattern)
	}

	for _, tf := range targets {
		if normalized == tf.Name {
			return m.heuristicResult(run.Type, source, tf.Name, 1.0, algorithmExact)
		}
	}

	if target := synonymTarget(normalized, targets); target != "" {
		return m.heuristicResult(run.Type, source, target, 0.95, algorithmSynonym)
	}

	best, bestScore, alternatives := bestSimilarity(normalized, targets)
	result := m.heuristicResult(run.Type, source, best, bestScore, algorithmSimilarity)
	result.Alternatives = alternatives
	if !result.Mapped {
		result.TargetField = ""
		result.TransformationKind = string(domain.TransformDirect)
	}
	return result
}

func (m *Mapper) heuristicResult(entityType domain.EntityType, source, target string, confidence float64, algorithm string) domain.FieldResult {
	return domain.FieldResult{
		SourceField:        source,
		TargetField:        target,
		Confidence:         confidence,
		TransformationKind: string(KindFor(entityType, target)),
		Mapped:             confidence >= m.cfg.MinConfidence,
		AutoApplied:        confidence >= m.cfg.HighConfidence,
		Algorithm:          algorithm,
	}
}

func targetExists(targets []TargetField, name string) bool {
	for _, tf := range targets {
		if tf.Name == name {
			return true
		}
	}
	return false
}

func bestSimilarity(normalized string, targets []TargetField) (best string, bestScore float64, alternatives []string) {
	type scored struct {
		name  string
		score float64
	}
	var ranked []scored
	for _, tf := range targets {
		score := similarity(normalized, tf.Name)
		ranked = append(ranked, scored{name: tf.Name, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) == 0 {
		return "", 0, nil
	}
	best, bestScore = ranked[0].name, ranked[0].score
	for _, candidate := range ranked[1:] {
		if candidate.score < 0.5 || len(alternatives) == 3 {
			break
		}
		alternatives = append(alternatives, candidate.name)
	}
	return best, bestScore, alternatives
}

// project copies values under target field names into the mapped-values map
// of every staged row, for mappings confident enough to auto-apply.
func (m *Mapper) project(ctx context.Context, run domain.ImportRun, cfg *domain.MappingConfig) error {
	applied := make(map[string]string)
	for source, result := range cfg.Mappings {
		if result.AutoApplied && result.TargetField != "" {
			applied[source] = result.TargetField
		}
	}
	if len(applied) == 0 {
		return nil
	}

	partition := run.Type.StagingPartition()
	offset := 0
	for {
		rows, err := m.staging.ListByRun(ctx, partition, run.ID, nil, projectionBatchSize, offset)
		if err != nil {
			return importerrors.Transient(err, "mapping", "failed to read staged rows")
		}
		if len(rows) == 0 {
			return nil
		}

		for i := range rows {
			mapped := make(map[string]string, len(applied))
			for source, target := range applied {
				value, ok := rows[i].Cleaned[source]
				if !ok {
					value = rows[i].Raw[source]
				}
				mapped[target] = value
			}
			rows[i].Mapped = mapped
		}

		if err := m.staging.UpdateMapped(ctx, partition, rows); err != nil {
			return importerrors.Transient(err, "mapping", "failed to write mapped rows")
		}

		if len(rows) < projectionBatchSize {
			return nil
		}
		offset += len(rows)
	}
}

// sourceFields prefers the analyzer's header list, falling back to the keys
// of the first staged row for headerless files.
func (m *Mapper) sourceFields(ctx context.Context, run domain.ImportRun) ([]string, error) {
	if run.FileInfo != nil && len(run.FileInfo.Headers) > 0 {
		return run.FileInfo.Headers, nil
	}

	rows, err := m.staging.ListByRun(ctx, run.Type.StagingPartition(), run.ID, nil, 1, 0)
	if err != nil {
		return nil, importerrors.Transient(err, "mapping", "failed to read staged rows")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(rows[0].Raw))
	for field := range rows[0].Raw {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields, nil
}

// mappingLogEntry records one mapping attempt, successful or not.
func mappingLogEntry(runID uuid.UUID, result domain.FieldResult) domain.ImportLogEntry {
	severity := domain.SeverityInfo
	message := fmt.Sprintf("mapped %q to %q", result.SourceField, result.TargetField)
	logType := domain.LogAutoMapping
	switch {
	case !result.Mapped:
		severity = domain.SeverityWarning
		message = fmt.Sprintf("no confident mapping for %q", result.SourceField)
	case result.Algorithm == algorithmStoredRule:
		logType = domain.LogCustomRuleApplied
	case result.AutoApplied:
		logType = domain.LogMappingApplied
	}

	entry := domain.NewLogEntry(runID, logType, severity, message)
	entry.FieldName = result.SourceField
	entry.ProcessStage = "mapping"
	entry.RuleApplied = result.Algorithm
	confidence := result.Confidence
	entry.ConfidenceScore = &confidence
	return entry
}
