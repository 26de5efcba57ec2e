package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityType identifies which business records an import run carries.
type EntityType string

const (
	EntityCustomers EntityType = "customers"
	EntityInvoices  EntityType = "invoices"
	EntityItems     EntityType = "items"
	EntityPayments  EntityType = "payments"
	EntityExpenses  EntityType = "expenses"
	EntityComplete  EntityType = "complete"
)

// StagedEntityTypes lists the concrete staging partitions. A complete import
// touches all of them in dependency order.
var StagedEntityTypes = []EntityType{
	EntityCustomers,
	EntityItems,
	EntityInvoices,
	EntityPayments,
	EntityExpenses,
}

// StagingPartition returns the staging partition a run's rows live in.
// Complete imports stage everything in one partition; the declared type of
// each row is resolved during mapping.
func (t EntityType) StagingPartition() EntityType {
	if t == EntityComplete {
		return EntityCustomers
	}
	return t
}

// Valid reports whether the entity type is one the pipeline accepts.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCustomers, EntityInvoices, EntityItems, EntityPayments, EntityExpenses, EntityComplete:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of an import run.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunParsing    RunStatus = "parsing"
	RunMapping    RunStatus = "mapping"
	RunValidating RunStatus = "validating"
	RunCommitting RunStatus = "committing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether no further stage may run.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// InStage reports whether the run is actively inside a pipeline stage,
// which blocks deletion and cancellation.
func (s RunStatus) InStage() bool {
	switch s {
	case RunParsing, RunMapping, RunValidating, RunCommitting:
		return true
	}
	return false
}

// FileType is the detected format of the uploaded file.
type FileType string

const (
	FileTypeCSV     FileType = "csv"
	FileTypeExcel   FileType = "excel"
	FileTypeXML     FileType = "xml"
	FileTypeUnknown FileType = "unknown"
)

// FileStructure describes tabular layout detected during analysis.
type FileStructure struct {
	Delimiter   string `json:"delimiter,omitempty"`
	HasHeader   bool   `json:"has_header"`
	Columns     int    `json:"columns,omitempty"`
	RootElement string `json:"root_element,omitempty"`
}

// FileInfo is the structural summary the analyzer persists on the run.
type FileInfo struct {
	Name             string        `json:"name"`
	Size             int64         `json:"size"`
	FormattedSize    string        `json:"formatted_size"`
	Extension        string        `json:"extension"`
	MimeType         string        `json:"mime_type"`
	Encoding         string        `json:"encoding"`
	Type             FileType      `json:"type"`
	Structure        FileStructure `json:"structure"`
	EstimatedRows    int           `json:"estimated_rows"`
	Headers          []string      `json:"headers"`
	SampleData       [][]string    `json:"sample_data"`
	ValidationErrors []string      `json:"validation_errors"`
}

// RunCounters tracks record-level progress across stages.
type RunCounters struct {
	TotalRecords      int `json:"total_records"`
	ProcessedRecords  int `json:"processed_records"`
	SuccessfulRecords int `json:"successful_records"`
	FailedRecords     int `json:"failed_records"`
}

// MappingConfig is the persisted outcome of the mapping stage plus any
// caller-supplied overrides.
type MappingConfig struct {
	AutoMappingCompleted   bool                   `json:"auto_mapping_completed"`
	AutoMappingTimestamp   time.Time              `json:"auto_mapping_timestamp"`
	TotalFields            int                    `json:"total_fields"`
	MappedFields           int                    `json:"mapped_fields"`
	HighConfidenceMappings int                    `json:"high_confidence_mappings"`
	Mappings               map[string]FieldResult `json:"mappings"`
	Overrides              map[string]string      `json:"overrides,omitempty"`
	RequiresManualReview   bool                   `json:"requires_manual_review"`
}

// FieldResult is one source field's mapping outcome.
type FieldResult struct {
	SourceField        string   `json:"source_field"`
	TargetField        string   `json:"target_field,omitempty"`
	Confidence         float64  `json:"confidence"`
	TransformationKind string   `json:"transformation_kind"`
	Mapped             bool     `json:"mapped"`
	AutoApplied        bool     `json:"auto_applied"`
	Algorithm          string   `json:"algorithm"`
	Alternatives       []string `json:"alternatives,omitempty"`
}

// ImportRun is one end-to-end attempt to import a single uploaded file.
type ImportRun struct {
	ID              uuid.UUID       `json:"id"`
	CompanyID       uuid.UUID       `json:"company_id"`
	CreatorID       uuid.UUID       `json:"creator_id"`
	Type            EntityType      `json:"type"`
	SourceSystem    string          `json:"source_system"`
	FilePath        string          `json:"file_path"`
	FileInfo        *FileInfo       `json:"file_info,omitempty"`
	Status          RunStatus       `json:"status"`
	Counters        RunCounters     `json:"counters"`
	MappingConfig   *MappingConfig  `json:"mapping_config,omitempty"`
	DuplicatePolicy DuplicatePolicy `json:"duplicate_policy"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ErrorContext    map[string]any  `json:"error_context,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewImportRun creates a pending run for a submitted file.
func NewImportRun(companyID, creatorID uuid.UUID, entityType EntityType, sourceSystem, filePath string) ImportRun {
	now := time.Now()
	return ImportRun{
		ID:              uuid.New(),
		CompanyID:       companyID,
		CreatorID:       creatorID,
		Type:            entityType,
		SourceSystem:    sourceSystem,
		FilePath:        filePath,
		Status:          RunPending,
		DuplicatePolicy: DuplicateSkip,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ProgressPercent derives completion from the counters; terminal states pin
// the value so progress queries stay truthful after failure.
func (r ImportRun) ProgressPercent() float64 {
	if r.Status == RunCompleted {
		return 100
	}
	if r.Counters.TotalRecords == 0 {
		return 0
	}
	pct := float64(r.Counters.ProcessedRecords) / float64(r.Counters.TotalRecords) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Elapsed returns how long the run has been (or was) active.
func (r ImportRun) Elapsed() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(*r.StartedAt)
	}
	return time.Since(*r.StartedAt)
}

// Deletable reports whether the run may be removed. Runs inside a stage are
// protected until the stage either finishes or rolls back.
func (r ImportRun) Deletable() bool {
	return !r.Status.InStage()
}

// AcceptsMappingConfig reports whether caller-supplied mapping overrides may
// still be applied to this run.
func (r ImportRun) AcceptsMappingConfig() bool {
	return r.Status == RunPending || r.Status == RunMapping
}
