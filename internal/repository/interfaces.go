package repository

import (
	"context"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ImportRunRepository defines the interface for import run lifecycle operations.
type ImportRunRepository interface {
	Create(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportRun, error)
	List(ctx context.Context, companyID uuid.UUID, status *domain.RunStatus, limit, offset int) ([]domain.ImportRun, int, error)
	Update(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// StagingRepository stores pipeline rows. Each entity type maps to its own
// staging table; an unknown entity type is an error, never a dynamic table
// name.
type StagingRepository interface {
	CreateBatch(ctx context.Context, entityType domain.EntityType, rows []domain.StagingRow) error
	ListByRun(ctx context.Context, entityType domain.EntityType, runID uuid.UUID, status *domain.ValidationStatus, limit, offset int) ([]domain.StagingRow, error)
	UpdateMapped(ctx context.Context, entityType domain.EntityType, rows []domain.StagingRow) error
	UpdateValidation(ctx context.Context, entityType domain.EntityType, rows []domain.StagingRow) error
	CountByStatus(ctx context.Context, entityType domain.EntityType, runID uuid.UUID) (map[domain.ValidationStatus]int, error)
	DeleteByRun(ctx context.Context, entityType domain.EntityType, runID uuid.UUID) error
}

// MappingRuleRepository persists learned field mappings. Save upserts on the
// (company, source system, entity type, source field, target field) tuple,
// bumping usage instead of duplicating.
type MappingRuleRepository interface {
	ListActive(ctx context.Context, companyID uuid.UUID, sourceSystem string, entityType domain.EntityType) ([]domain.MappingRule, error)
	Save(ctx context.Context, rule domain.MappingRule) (domain.MappingRule, error)
	RecordUsage(ctx context.Context, id uuid.UUID) error
}

// ImportLogRepository stores the append-only audit trail for observability.
type ImportLogRepository interface {
	Record(ctx context.Context, entry domain.ImportLogEntry) error
	RecordBatch(ctx context.Context, entries []domain.ImportLogEntry) error
	List(ctx context.Context, runID uuid.UUID, severity *domain.LogSeverity, limit, offset int) ([]domain.ImportLogEntry, int, error)
}

// CustomerRef is the minimal projection used for fuzzy name matching.
type CustomerRef struct {
	ID   uuid.UUID
	Name string
}

// ProductionCounts snapshots per-entity production row counts for a company.
// The committer records one before its transaction as the rollback checkpoint.
type ProductionCounts map[domain.EntityType]int

// ProductionRepository covers the production-side reads the validator needs
// for duplicate detection and the transaction-scoped writes the committer
// performs. Write methods take the transaction explicitly so every mutation
// shares the committer's all-or-nothing scope.
type ProductionRepository interface {
	Counts(ctx context.Context, companyID uuid.UUID) (ProductionCounts, error)

	// Duplicate lookups, in match priority order per entity.
	FindCustomerByEmail(ctx context.Context, companyID uuid.UUID, email string) (*domain.Customer, error)
	FindCustomerByTaxID(ctx context.Context, companyID uuid.UUID, taxID string) (*domain.Customer, error)
	ListCustomerRefs(ctx context.Context, companyID uuid.UUID) ([]CustomerRef, error)
	FindInvoiceByNumber(ctx context.Context, companyID uuid.UUID, number string) (*domain.Invoice, error)
	FindItemBySKU(ctx context.Context, companyID uuid.UUID, sku string) (*domain.Item, error)
	FindItemByName(ctx context.Context, companyID uuid.UUID, name string) (*domain.Item, error)

	// Transaction-scoped writes.
	CreateCustomer(ctx context.Context, tx pgx.Tx, c domain.Customer) error
	UpdateCustomer(ctx context.Context, tx pgx.Tx, c domain.Customer) error
	CreateItem(ctx context.Context, tx pgx.Tx, i domain.Item) error
	UpdateItem(ctx context.Context, tx pgx.Tx, i domain.Item) error
	CreateInvoice(ctx context.Context, tx pgx.Tx, inv domain.Invoice) error
	UpdateInvoice(ctx context.Context, tx pgx.Tx, inv domain.Invoice) error
	CreatePayment(ctx context.Context, tx pgx.Tx, p domain.Payment) error
	CreateExpense(ctx context.Context, tx pgx.Tx, e domain.Expense) error

	// Transaction-scoped lookups for record linking and numbering.
	InvoiceNumberExists(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, number string) (bool, error)
	FindCustomerIDByName(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, name string) (*uuid.UUID, error)
	FindInvoiceIDByNumber(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, number string) (*uuid.UUID, error)
	NextSequence(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, entityType domain.EntityType) (int, error)

	// Lazily created lookups.
	GetOrCreateCurrency(ctx context.Context, tx pgx.Tx, code, name string) (domain.Currency, error)
	GetOrCreatePaymentMethod(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, name string) (domain.PaymentMethod, error)
	GetOrCreateExpenseCategory(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, name string) (domain.ExpenseCategory, error)
}
