package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/analyzer"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/committer"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/mapper"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/parser"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/transform"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/validator"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

// The fixtures below are in-memory stand-ins for the Postgres repositories,
// mutex-guarded because engine workers run on their own goroutines.

type memRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]domain.ImportRun
}

func newMemRuns() *memRuns {
	return &memRuns{runs: make(map[uuid.UUID]domain.ImportRun)}
}

func (m *memRuns) Create(_ context.Context, run domain.ImportRun) (domain.ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return run, nil
}

func (m *memRuns) GetByID(_ context.Context, id uuid.UUID) (domain.ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return domain.ImportRun{}, fmt.Errorf("run %s not found", id)
	}
	return run, nil
}

func (m *memRuns) List(context.Context, uuid.UUID, *domain.RunStatus, int, int) ([]domain.ImportRun, int, error) {
	return nil, 0, nil
}

func (m *memRuns) Update(_ context.Context, run domain.ImportRun) (domain.ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.UpdatedAt = time.Now()
	m.runs[run.ID] = run
	return run, nil
}

func (m *memRuns) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	return nil
}

type memStaging struct {
	mu         sync.Mutex
	rows       map[domain.EntityType][]domain.StagingRow
	failWrites int
}

func newMemStaging() *memStaging {
	return &memStaging{rows: make(map[domain.EntityType][]domain.StagingRow)}
}

func (m *memStaging) CreateBatch(_ context.Context, entityType domain.EntityType, rows []domain.StagingRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites > 0 {
		m.failWrites--
		return fmt.Errorf("staging write refused")
	}
	m.rows[entityType] = append(m.rows[entityType], rows...)
	return nil
}

func (m *memStaging) ListByRun(_ context.Context, entityType domain.EntityType, runID uuid.UUID, status *domain.ValidationStatus, limit, offset int) ([]domain.StagingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.StagingRow
	for _, row := range m.rows[entityType] {
		if row.RunID != runID {
			continue
		}
		if status != nil && row.ValidationStatus != *status {
			continue
		}
		matched = append(matched, row)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return append([]domain.StagingRow(nil), matched[offset:end]...), nil
}

func (m *memStaging) UpdateMapped(_ context.Context, entityType domain.EntityType, rows []domain.StagingRow) error {
	return m.replace(entityType, rows)
}

func (m *memStaging) UpdateValidation(_ context.Context, entityType domain.EntityType, rows []domain.StagingRow) error {
	return m.replace(entityType, rows)
}

func (m *memStaging) replace(entityType domain.EntityType, rows []domain.StagingRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[uuid.UUID]domain.StagingRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	stored := m.rows[entityType]
	for i := range stored {
		if updated, ok := byID[stored[i].ID]; ok {
			stored[i] = updated
		}
	}
	return nil
}

func (m *memStaging) CountByStatus(context.Context, domain.EntityType, uuid.UUID) (map[domain.ValidationStatus]int, error) {
	return nil, nil
}

func (m *memStaging) DeleteByRun(_ context.Context, entityType domain.EntityType, runID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.StagingRow
	for _, row := range m.rows[entityType] {
		if row.RunID != runID {
			kept = append(kept, row)
		}
	}
	m.rows[entityType] = kept
	return nil
}

func (m *memStaging) count(entityType domain.EntityType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[entityType])
}

type memRules struct {
	mu    sync.Mutex
	saved []domain.MappingRule
}

func (m *memRules) ListActive(context.Context, uuid.UUID, string, domain.EntityType) ([]domain.MappingRule, error) {
	return nil, nil
}

func (m *memRules) Save(_ context.Context, rule domain.MappingRule) (domain.MappingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, rule)
	return rule, nil
}

func (m *memRules) RecordUsage(context.Context, uuid.UUID) error { return nil }

type memLogs struct {
	mu      sync.Mutex
	entries []domain.ImportLogEntry
}

func (m *memLogs) Record(_ context.Context, entry domain.ImportLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memLogs) RecordBatch(_ context.Context, entries []domain.ImportLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memLogs) List(context.Context, uuid.UUID, *domain.LogSeverity, int, int) ([]domain.ImportLogEntry, int, error) {
	return nil, 0, nil
}

type memProduction struct {
	mu        sync.Mutex
	customers []domain.Customer
}

func (m *memProduction) Counts(context.Context, uuid.UUID) (repository.ProductionCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return repository.ProductionCounts{domain.EntityCustomers: len(m.customers)}, nil
}

func (m *memProduction) FindCustomerByEmail(context.Context, uuid.UUID, string) (*domain.Customer, error) {
	return nil, nil
}

func (m *memProduction) FindCustomerByTaxID(context.Context, uuid.UUID, string) (*domain.Customer, error) {
	return nil, nil
}

func (m *memProduction) ListCustomerRefs(context.Context, uuid.UUID) ([]repository.CustomerRef, error) {
	return nil, nil
}

func (m *memProduction) FindInvoiceByNumber(context.Context, uuid.UUID, string) (*domain.Invoice, error) {
	return nil, nil
}

func (m *memProduction) FindItemBySKU(context.Context, uuid.UUID, string) (*domain.Item, error) {
	return nil, nil
}

func (m *memProduction) FindItemByName(context.Context, uuid.UUID, string) (*domain.Item, error) {
	return nil, nil
}

func (m *memProduction) CreateCustomer(_ context.Context, _ pgx.Tx, c domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers = append(m.customers, c)
	return nil
}

func (m *memProduction) UpdateCustomer(context.Context, pgx.Tx, domain.Customer) error { return nil }
func (m *memProduction) CreateItem(context.Context, pgx.Tx, domain.Item) error         { return nil }
func (m *memProduction) UpdateItem(context.Context, pgx.Tx, domain.Item) error         { return nil }
func (m *memProduction) CreateInvoice(context.Context, pgx.Tx, domain.Invoice) error   { return nil }
func (m *memProduction) UpdateInvoice(context.Context, pgx.Tx, domain.Invoice) error   { return nil }
func (m *memProduction) CreatePayment(context.Context, pgx.Tx, domain.Payment) error   { return nil }
func (m *memProduction) CreateExpense(context.Context, pgx.Tx, domain.Expense) error   { return nil }

func (m *memProduction) InvoiceNumberExists(context.Context, pgx.Tx, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (m *memProduction) FindCustomerIDByName(context.Context, pgx.Tx, uuid.UUID, string) (*uuid.UUID, error) {
	return nil, nil
}

func (m *memProduction) FindInvoiceIDByNumber(context.Context, pgx.Tx, uuid.UUID, string) (*uuid.UUID, error) {
	return nil, nil
}

func (m *memProduction) NextSequence(context.Context, pgx.Tx, uuid.UUID, domain.EntityType) (int, error) {
	return 1, nil
}

func (m *memProduction) GetOrCreateCurrency(_ context.Context, _ pgx.Tx, code, name string) (domain.Currency, error) {
	return domain.Currency{ID: uuid.New(), Code: code, Name: name}, nil
}

func (m *memProduction) GetOrCreatePaymentMethod(_ context.Context, _ pgx.Tx, _ uuid.UUID, name string) (domain.PaymentMethod, error) {
	return domain.PaymentMethod{ID: uuid.New(), Name: name}, nil
}

func (m *memProduction) GetOrCreateExpenseCategory(_ context.Context, _ pgx.Tx, _ uuid.UUID, name string) (domain.ExpenseCategory, error) {
	return domain.ExpenseCategory{ID: uuid.New(), Name: name}, nil
}

func (m *memProduction) customerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.customers)
}

type memTxRunner struct{}

func (memTxRunner) WithTx(_ context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

type fixture struct {
	runs       *memRuns
	staging    *memStaging
	logs       *memLogs
	production *memProduction
	engine     *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Discard()
	runs := newMemRuns()
	staging := newMemStaging()
	rules := &memRules{}
	logs := &memLogs{}
	production := &memProduction{}

	an := analyzer.New(0, log)
	pa := parser.New(staging, logs, parser.Config{}, log)
	ma := mapper.New(rules, staging, logs, mapper.Config{MinConfidence: 0.7, HighConfidence: 0.9}, log)
	va := validator.New(staging, production, logs, transform.NewConverter("MKD", nil), validator.Config{}, log)
	co := committer.New(memTxRunner{}, staging, production, logs, committer.Config{BaseCurrency: "MKD"}, log)

	stages := NewStages(runs, logs, an, pa, ma, va, co, log)
	engine := NewEngine(runs, logs, stages, Config{Workers: 2, StageDelay: 0}, log)
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)

	return &fixture{runs: runs, staging: staging, logs: logs, production: production, engine: engine}
}

func (f *fixture) submitFile(t *testing.T, content string) domain.ImportRun {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	run := domain.NewImportRun(uuid.New(), uuid.New(), domain.EntityCustomers, "", path)
	if _, err := f.runs.Create(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Submit(run.ID); err != nil {
		t.Fatal(err)
	}
	return run
}

func (f *fixture) waitForStatus(t *testing.T, id uuid.UUID, want domain.RunStatus) domain.ImportRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := f.runs.GetByID(context.Background(), id)
		if err == nil && run.Status == want {
			return run
		}
		if err == nil && run.Status.Terminal() && !want.Terminal() {
			t.Fatalf("run reached terminal status %s (error %q) while waiting for %s",
				run.Status, run.ErrorMessage, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
	run, _ := f.runs.GetByID(context.Background(), id)
	t.Fatalf("run never reached %s, last status %s (error %q)", want, run.Status, run.ErrorMessage)
	return domain.ImportRun{}
}

func TestEngineRunsFullPipeline(t *testing.T) {
	f := newFixture(t)
	run := f.submitFile(t, "name;email\nPekara Ilinden;info@ilinden.mk\nMlekara Bitola;kontakt@mlekara.mk\n")

	final := f.waitForStatus(t, run.ID, domain.RunCompleted)

	if final.Counters.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", final.Counters.TotalRecords)
	}
	if final.Counters.SuccessfulRecords != 2 || final.Counters.FailedRecords != 0 {
		t.Errorf("counters = %+v", final.Counters)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if f.production.customerCount() != 2 {
		t.Errorf("production customers = %d, want 2", f.production.customerCount())
	}
	if f.staging.count(domain.EntityCustomers) != 0 {
		t.Error("staging rows should be cleaned up after commit")
	}
	if _, err := os.Stat(final.FilePath); !os.IsNotExist(err) {
		t.Error("source file should be deleted after commit")
	}
}

func TestEngineFailsRunOnStructuralError(t *testing.T) {
	f := newFixture(t)
	run := domain.NewImportRun(uuid.New(), uuid.New(), domain.EntityCustomers, "", "/nonexistent/missing.csv")
	if _, err := f.runs.Create(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Submit(run.ID); err != nil {
		t.Fatal(err)
	}

	final := f.waitForStatus(t, run.ID, domain.RunFailed)
	if final.ErrorMessage == "" {
		t.Error("failed run should carry an error message")
	}
	if final.ErrorContext["stage"] != "parsing" {
		t.Errorf("error context stage = %v, want parsing", final.ErrorContext["stage"])
	}
	if final.CompletedAt == nil {
		t.Error("failed run should be closed out")
	}
}

func TestEngineRetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	f.staging.failWrites = 2

	run := f.submitFile(t, "name;email\nPekara Ilinden;info@ilinden.mk\n")
	final := f.waitForStatus(t, run.ID, domain.RunCompleted)

	if final.Counters.SuccessfulRecords != 1 {
		t.Errorf("SuccessfulRecords = %d, want 1", final.Counters.SuccessfulRecords)
	}
}

func TestEngineAdvancesPastMappingReview(t *testing.T) {
	f := newFixture(t)
	run := f.submitFile(t, "qq_ww;zz_xx\nPekara Ilinden;skopje\n")

	// Unmappable headers flag the run for review, but the chain keeps
	// going; with nothing mapped the validator then fails the run.
	final := f.waitForStatus(t, run.ID, domain.RunFailed)

	if final.MappingConfig == nil || !final.MappingConfig.RequiresManualReview {
		t.Error("mapping review flag should survive on the failed run")
	}
	if final.ErrorContext["stage"] != "validating" {
		t.Errorf("error context stage = %v, want validating", final.ErrorContext["stage"])
	}
}

func TestEngineAppliesMappingOverrides(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "upload.csv")
	if err := os.WriteFile(path, []byte("qq_ww;zz_xx\nPekara Ilinden;skopje\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Overrides submitted with the run carry cryptic headers end to end.
	run := domain.NewImportRun(uuid.New(), uuid.New(), domain.EntityCustomers, "", path)
	run.MappingConfig = &domain.MappingConfig{
		Overrides: map[string]string{"qq_ww": "name", "zz_xx": "city"},
	}
	if _, err := f.runs.Create(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Submit(run.ID); err != nil {
		t.Fatal(err)
	}

	final := f.waitForStatus(t, run.ID, domain.RunCompleted)
	if final.Counters.SuccessfulRecords != 1 {
		t.Errorf("SuccessfulRecords = %d, want 1", final.Counters.SuccessfulRecords)
	}
	if f.production.customerCount() != 1 {
		t.Errorf("production customers = %d, want 1", f.production.customerCount())
	}
}

func TestEngineCommitsValidRowsDespiteFailures(t *testing.T) {
	f := newFixture(t)
	run := f.submitFile(t, "name;email\nPekara Ilinden;info@ilinden.mk\n;bez.ime@firma.mk\n")

	// Partial validation failures never stall the run: the valid row is
	// committed automatically, the invalid one stays reported.
	final := f.waitForStatus(t, run.ID, domain.RunCompleted)

	if f.production.customerCount() != 1 {
		t.Errorf("production customers = %d, want 1", f.production.customerCount())
	}
	if final.Counters.SuccessfulRecords != 1 {
		t.Errorf("SuccessfulRecords = %d, want 1", final.Counters.SuccessfulRecords)
	}
	if final.Counters.FailedRecords != 1 {
		t.Errorf("FailedRecords = %d, want 1", final.Counters.FailedRecords)
	}
}
