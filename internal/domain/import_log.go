package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogSeverity classifies a log entry for filtering.
type LogSeverity string

const (
	SeverityInfo    LogSeverity = "info"
	SeverityWarning LogSeverity = "warning"
	SeverityError   LogSeverity = "error"
)

// LogType is the semantic kind of a pipeline log entry.
type LogType string

const (
	LogJobStarted         LogType = "job_started"
	LogJobCompleted       LogType = "job_completed"
	LogJobFailed          LogType = "job_failed"
	LogFileParsed         LogType = "file_parsed"
	LogParsingError       LogType = "parsing_error"
	LogAutoMapping        LogType = "auto_mapping"
	LogMappingApplied     LogType = "mapping_applied"
	LogCustomRuleApplied  LogType = "custom_rule_applied"
	LogValidationPassed   LogType = "validation_passed"
	LogValidationFailed   LogType = "validation_failed"
	LogDuplicateDetected  LogType = "duplicate_detected"
	LogDuplicateResolved  LogType = "duplicate_resolved"
	LogRecordCommitted    LogType = "record_committed"
	LogRecordFailed       LogType = "record_failed"
	LogRollbackExecuted   LogType = "rollback_executed"
	LogPerformanceWarning LogType = "performance_warning"
)

// ImportLogEntry is an append-only audit record tied to an import run. It is
// the only surface observers consume; entries are never mutated.
type ImportLogEntry struct {
	ID               uuid.UUID      `json:"id"`
	RunID            uuid.UUID      `json:"run_id"`
	MappingRuleID    *uuid.UUID     `json:"mapping_rule_id,omitempty"`
	LogType          LogType        `json:"log_type"`
	Severity         LogSeverity    `json:"severity"`
	Message          string         `json:"message"`
	DetailedMessage  string         `json:"detailed_message,omitempty"`
	FieldName        string         `json:"field_name,omitempty"`
	FieldValue       string         `json:"field_value,omitempty"`
	EntityType       EntityType     `json:"entity_type,omitempty"`
	EntityID         *uuid.UUID     `json:"entity_id,omitempty"`
	RowNumber        *int           `json:"row_number,omitempty"`
	ProcessStage     string         `json:"process_stage,omitempty"`
	ConfidenceScore  *float64       `json:"confidence_score,omitempty"`
	RuleApplied      string         `json:"rule_applied,omitempty"`
	ProcessingTime   *float64       `json:"processing_time,omitempty"`
	MemoryUsage      *int64         `json:"memory_usage,omitempty"`
	RecordsProcessed *int           `json:"records_processed,omitempty"`
	FinalData        map[string]any `json:"final_data,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// NewLogEntry creates an entry with the required fields set; callers fill in
// the optional context before recording it.
func NewLogEntry(runID uuid.UUID, logType LogType, severity LogSeverity, message string) ImportLogEntry {
	return ImportLogEntry{
		ID:        uuid.New(),
		RunID:     runID,
		LogType:   logType,
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now(),
	}
}
