// Package parser implements the second pipeline stage: streaming the full
// file into the staging store in bounded batches.
package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
	importerrors "github.com/bloodyteeths/mkfakturi-sub009/pkg/errors"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

// memoryCheckInterval is how many rows pass between resident-memory checks.
const memoryCheckInterval = 1000

// Config holds the parser's tunables.
type Config struct {
	BatchSize         int
	MemoryThresholdMB int
}

// Result summarizes a completed parse.
type Result struct {
	TotalRows int
	Headers   []string
}

// Parser streams files into the staging store.
type Parser struct {
	staging repository.StagingRepository
	logs    repository.ImportLogRepository
	cfg     Config
	log     logger.Logger
}

// New creates a parser over the staging store.
func New(staging repository.StagingRepository, logs repository.ImportLogRepository, cfg Config, log logger.Logger) *Parser {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Parser{staging: staging, logs: logs, cfg: cfg, log: log.WithComponent("parser")}
}

// Parse streams the run's file row by row into staging. On failure every row
// staged so far for this run is deleted so a retry starts clean.
func (p *Parser) Parse(ctx context.Context, run domain.ImportRun) (Result, error) {
	if run.FileInfo == nil {
		return Result{}, importerrors.Structural("parsing", "run has no file analysis")
	}

	result, err := p.parse(ctx, run)
	if err != nil {
		if cleanupErr := p.staging.DeleteByRun(ctx, run.Type.StagingPartition(), run.ID); cleanupErr != nil {
			p.log.WithError(cleanupErr).Error("failed to clean up staged rows after parse failure")
		}
		return Result{}, err
	}

	if result.TotalRows == 0 {
		return Result{}, importerrors.Structural("parsing", "file produced no data rows")
	}

	p.log.WithFields(logger.Fields{
		"run_id": run.ID,
		"rows":   result.TotalRows,
	}).Info("file parsed")

	return result, nil
}

func (p *Parser) parse(ctx context.Context, run domain.ImportRun) (Result, error) {
	switch run.FileInfo.Type {
	case domain.FileTypeCSV:
		return p.parseCSV(ctx, run)
	case domain.FileTypeExcel:
		return p.parseExcel(ctx, run)
	case domain.FileTypeXML:
		return p.parseXML(ctx, run)
	}
	return Result{}, importerrors.Structural("parsing", fmt.Sprintf("unsupported file type %q", run.FileInfo.Type))
}

func (p *Parser) parseCSV(ctx context.Context, run domain.ImportRun) (Result, error) {
	f, err := os.Open(run.FilePath)
	if err != nil {
		return Result{}, importerrors.Transient(err, "parsing", "failed to open file")
	}
	defer f.Close()

	reader := csv.NewReader(decodeReader(f, run.FileInfo.Encoding))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if run.FileInfo.Structure.Delimiter != "" {
		reader.Comma = []rune(run.FileInfo.Structure.Delimiter)[0]
	}

	var headers []string
	if run.FileInfo.Structure.HasHeader {
		record, readErr := reader.Read()
		if readErr != nil {
			return Result{}, importerrors.Structural("parsing", fmt.Sprintf("failed to read header row: %v", readErr))
		}
		headers = cleanRow(record)
	}

	collector := p.newCollector(run)
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Result{}, importerrors.Structural("parsing",
				fmt.Sprintf("malformed record at row %d: %v", collector.total+1, readErr))
		}
		if headers == nil {
			headers = positionalHeaders(len(record))
		}
		if emptyRow(record) {
			continue
		}
		if err := collector.add(ctx, rowValues(headers, record)); err != nil {
			return Result{}, err
		}
	}

	if err := collector.flush(ctx); err != nil {
		return Result{}, err
	}
	return Result{TotalRows: collector.total, Headers: headers}, nil
}

// collector accumulates rows and writes them out in batches, checking
// resident memory as it goes.
type collector struct {
	parser  *Parser
	run     domain.ImportRun
	entity  domain.EntityType
	pending []domain.StagingRow
	total   int
}

func (p *Parser) newCollector(run domain.ImportRun) *collector {
	return &collector{
		parser: p,
		run:    run,
		entity: run.Type.StagingPartition(),
	}
}

func (c *collector) add(ctx context.Context, raw map[string]string) error {
	c.total++
	cleaned := make(map[string]string, len(raw))
	for k, v := range raw {
		cleaned[k] = cleanValue(v)
	}
	c.pending = append(c.pending, domain.NewStagingRow(c.run.ID, c.total, raw, cleaned))

	if len(c.pending) >= c.parser.cfg.BatchSize {
		if err := c.flush(ctx); err != nil {
			return err
		}
	}
	if c.total%memoryCheckInterval == 0 {
		c.parser.checkMemory(ctx, c.run, c.total)
	}
	return nil
}

func (c *collector) flush(ctx context.Context) error {
	if len(c.pending) == 0 {
		return nil
	}
	if err := c.parser.staging.CreateBatch(ctx, c.entity, c.pending); err != nil {
		return importerrors.Transient(err, "parsing", "failed to write staging batch")
	}
	c.pending = c.pending[:0]
	return nil
}

// checkMemory forces a garbage pass when resident memory crosses the
// configured threshold, recording a performance warning on the run.
func (p *Parser) checkMemory(ctx context.Context, run domain.ImportRun, rowsSoFar int) {
	if p.cfg.MemoryThresholdMB <= 0 {
		return
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	allocMB := int(stats.Alloc / (1024 * 1024))
	if allocMB < p.cfg.MemoryThresholdMB {
		return
	}

	runtime.GC()

	usage := int64(stats.Alloc)
	processed := rowsSoFar
	entry := domain.NewLogEntry(run.ID, domain.LogPerformanceWarning, domain.SeverityWarning,
		fmt.Sprintf("memory usage %d MB exceeded threshold %d MB during parsing", allocMB, p.cfg.MemoryThresholdMB))
	entry.ProcessStage = "parsing"
	entry.MemoryUsage = &usage
	entry.RecordsProcessed = &processed
	if err := p.logs.Record(ctx, entry); err != nil {
		p.log.WithError(err).Warn("failed to record performance warning")
	}
	p.log.WithFields(logger.Fields{"run_id": run.ID, "alloc_mb": allocMB}).Warn("memory threshold exceeded, forced GC")
}

func rowValues(headers, record []string) map[string]string {
	values := make(map[string]string, len(headers))
	for i, header := range headers {
		if header == "" {
			header = fmt.Sprintf("column_%d", i+1)
		}
		if i < len(record) {
			values[header] = record[i]
		} else {
			values[header] = ""
		}
	}
	return values
}

func positionalHeaders(n int) []string {
	headers := make([]string, n)
	for i := range headers {
		headers[i] = fmt.Sprintf("column_%d", i+1)
	}
	return headers
}

func emptyRow(record []string) bool {
	for _, cell := range record {
		if cleanValue(cell) != "" {
			return false
		}
	}
	return true
}
