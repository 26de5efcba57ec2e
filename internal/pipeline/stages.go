package pipeline

import (
	"context"
	"fmt"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/analyzer"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/committer"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/mapper"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/parser"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/validator"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

// Stages binds the five stage implementations to the run lifecycle: each
// method executes one stage, persists its outcome on the run, and returns
// the mutated run for the engine to advance.
type Stages struct {
	runs      repository.ImportRunRepository
	logs      repository.ImportLogRepository
	analyzer  *analyzer.Analyzer
	parser    *parser.Parser
	mapper    *mapper.Mapper
	validator *validator.Validator
	committer *committer.Committer
	log       logger.Logger
}

// NewStages wires the stage set.
func NewStages(
	runs repository.ImportRunRepository,
	logs repository.ImportLogRepository,
	an *analyzer.Analyzer,
	pa *parser.Parser,
	ma *mapper.Mapper,
	va *validator.Validator,
	co *committer.Committer,
	log logger.Logger,
) *Stages {
	return &Stages{
		runs:      runs,
		logs:      logs,
		analyzer:  an,
		parser:    pa,
		mapper:    ma,
		validator: va,
		committer: co,
		log:       log.WithComponent("stages"),
	}
}

// Parse covers analysis and parsing: fingerprint the file, persist its
// structural summary, then stream rows into staging.
func (s *Stages) Parse(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error) {
	info, err := s.analyzer.Analyze(run)
	if info != nil {
		run.FileInfo = info
		if updated, uerr := s.runs.Update(ctx, run); uerr == nil {
			run = updated
		} else {
			s.log.WithError(uerr).Warn("failed to persist file analysis")
		}
	}
	if err != nil {
		return run, err
	}

	result, err := s.parser.Parse(ctx, run)
	if err != nil {
		return run, err
	}

	run.Counters.TotalRecords = result.TotalRows
	if len(run.FileInfo.Headers) == 0 {
		run.FileInfo.Headers = result.Headers
	}

	updated, err := s.runs.Update(ctx, run)
	if err != nil {
		return run, fmt.Errorf("failed to persist parse results: %w", err)
	}

	entry := domain.NewLogEntry(run.ID, domain.LogFileParsed, domain.SeverityInfo,
		fmt.Sprintf("parsed %d rows from %s", result.TotalRows, run.FileInfo.Name))
	entry.ProcessStage = "parsing"
	records := result.TotalRows
	entry.RecordsProcessed = &records
	if err := s.logs.Record(ctx, entry); err != nil {
		s.log.WithError(err).Warn("failed to record parse log")
	}

	return updated, nil
}

// MapFields runs automatic field mapping and persists the configuration on
// the run.
func (s *Stages) MapFields(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error) {
	cfg, err := s.mapper.Map(ctx, run)
	if err != nil {
		return run, err
	}

	run.MappingConfig = cfg
	updated, err := s.runs.Update(ctx, run)
	if err != nil {
		return run, fmt.Errorf("failed to persist mapping configuration: %w", err)
	}
	return updated, nil
}

// Validate transforms and checks every staged row, updating the run's
// counters from the aggregate pass.
func (s *Stages) Validate(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error) {
	result, err := s.validator.Validate(ctx, run)

	run.Counters.ProcessedRecords = result.Processed
	run.Counters.SuccessfulRecords = result.Valid
	run.Counters.FailedRecords = result.Invalid
	if updated, uerr := s.runs.Update(ctx, run); uerr == nil {
		run = updated
	} else {
		s.log.WithError(uerr).Warn("failed to persist validation counters")
	}

	if err != nil {
		return run, err
	}
	return run, nil
}

// Commit moves valid rows to production and finalizes the counters.
func (s *Stages) Commit(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error) {
	stats, err := s.committer.Commit(ctx, run)
	if err != nil {
		return run, err
	}

	run.Counters.SuccessfulRecords = stats.Committed + stats.Updated
	run.Counters.FailedRecords += stats.Failed
	updated, uerr := s.runs.Update(ctx, run)
	if uerr != nil {
		return run, fmt.Errorf("failed to persist commit results: %w", uerr)
	}
	return updated, nil
}
