package validator

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/transform"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

type stubStaging struct {
	rows    []domain.StagingRow
	updated []domain.StagingRow
}

func (s *stubStaging) CreateBatch(context.Context, domain.EntityType, []domain.StagingRow) error {
	return nil
}

func (s *stubStaging) ListByRun(_ context.Context, _ domain.EntityType, _ uuid.UUID, _ *domain.ValidationStatus, limit, offset int) ([]domain.StagingRow, error) {
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return append([]domain.StagingRow(nil), s.rows[offset:end]...), nil
}

func (s *stubStaging) UpdateMapped(context.Context, domain.EntityType, []domain.StagingRow) error {
	return nil
}

func (s *stubStaging) UpdateValidation(_ context.Context, _ domain.EntityType, rows []domain.StagingRow) error {
	s.updated = append(s.updated, rows...)
	return nil
}

func (s *stubStaging) CountByStatus(context.Context, domain.EntityType, uuid.UUID) (map[domain.ValidationStatus]int, error) {
	return nil, nil
}

func (s *stubStaging) DeleteByRun(context.Context, domain.EntityType, uuid.UUID) error {
	return nil
}

type stubLogs struct {
	entries []domain.ImportLogEntry
}

func (s *stubLogs) Record(_ context.Context, entry domain.ImportLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLogs) RecordBatch(_ context.Context, entries []domain.ImportLogEntry) error {
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *stubLogs) List(context.Context, uuid.UUID, *domain.LogSeverity, int, int) ([]domain.ImportLogEntry, int, error) {
	return nil, 0, nil
}

// stubProduction serves duplicate lookups from in-memory maps. Lookup
// failures are simulated with failLookups.
type stubProduction struct {
	customersByEmail map[string]*domain.Customer
	customersByTaxID map[string]*domain.Customer
	refs             []repository.CustomerRef
	invoicesByNumber map[string]*domain.Invoice
	itemsBySKU       map[string]*domain.Item
	itemsByName      map[string]*domain.Item
	failLookups      bool
}

func (s *stubProduction) Counts(context.Context, uuid.UUID) (repository.ProductionCounts, error) {
	return repository.ProductionCounts{}, nil
}

func (s *stubProduction) FindCustomerByEmail(_ context.Context, _ uuid.UUID, email string) (*domain.Customer, error) {
	if s.failLookups {
		return nil, fmt.Errorf("production unavailable")
	}
	return s.customersByEmail[email], nil
}

func (s *stubProduction) FindCustomerByTaxID(_ context.Context, _ uuid.UUID, taxID string) (*domain.Customer, error) {
	if s.failLookups {
		return nil, fmt.Errorf("production unavailable")
	}
	return s.customersByTaxID[taxID], nil
}

func (s *stubProduction) ListCustomerRefs(context.Context, uuid.UUID) ([]repository.CustomerRef, error) {
	if s.failLookups {
		return nil, fmt.Errorf("production unavailable")
	}
	return s.refs, nil
}

func (s *stubProduction) FindInvoiceByNumber(_ context.Context, _ uuid.UUID, number string) (*domain.Invoice, error) {
	if s.failLookups {
		return nil, fmt.Errorf("production unavailable")
	}
	return s.invoicesByNumber[number], nil
}

func (s *stubProduction) FindItemBySKU(_ context.Context, _ uuid.UUID, sku string) (*domain.Item, error) {
	return s.itemsBySKU[sku], nil
}

func (s *stubProduction) FindItemByName(_ context.Context, _ uuid.UUID, name string) (*domain.Item, error) {
	return s.itemsByName[name], nil
}

func (s *stubProduction) CreateCustomer(context.Context, pgx.Tx, domain.Customer) error { return nil }
func (s *stubProduction) UpdateCustomer(context.Context, pgx.Tx, domain.Customer) error { return nil }
func (s *stubProduction) CreateItem(context.Context, pgx.Tx, domain.Item) error         { return nil }
func (s *stubProduction) UpdateItem(context.Context, pgx.Tx, domain.Item) error         { return nil }
func (s *stubProduction) CreateInvoice(context.Context, pgx.Tx, domain.Invoice) error   { return nil }
func (s *stubProduction) UpdateInvoice(context.Context, pgx.Tx, domain.Invoice) error   { return nil }
func (s *stubProduction) CreatePayment(context.Context, pgx.Tx, domain.Payment) error   { return nil }
func (s *stubProduction) CreateExpense(context.Context, pgx.Tx, domain.Expense) error   { return nil }

func (s *stubProduction) InvoiceNumberExists(context.Context, pgx.Tx, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (s *stubProduction) FindCustomerIDByName(context.Context, pgx.Tx, uuid.UUID, string) (*uuid.UUID, error) {
	return nil, nil
}

func (s *stubProduction) FindInvoiceIDByNumber(context.Context, pgx.Tx, uuid.UUID, string) (*uuid.UUID, error) {
	return nil, nil
}

func (s *stubProduction) NextSequence(context.Context, pgx.Tx, uuid.UUID, domain.EntityType) (int, error) {
	return 1, nil
}

func (s *stubProduction) GetOrCreateCurrency(context.Context, pgx.Tx, string, string) (domain.Currency, error) {
	return domain.Currency{}, nil
}

func (s *stubProduction) GetOrCreatePaymentMethod(context.Context, pgx.Tx, uuid.UUID, string) (domain.PaymentMethod, error) {
	return domain.PaymentMethod{}, nil
}

func (s *stubProduction) GetOrCreateExpenseCategory(context.Context, pgx.Tx, uuid.UUID, string) (domain.ExpenseCategory, error) {
	return domain.ExpenseCategory{}, nil
}

func newValidator(staging *stubStaging, production *stubProduction, logs *stubLogs) *Validator {
	return New(staging, production, logs, transform.NewConverter("MKD", nil), Config{BatchSize: 2}, logger.Discard())
}

func invoiceRun() domain.ImportRun {
	run := domain.NewImportRun(uuid.New(), uuid.New(), domain.EntityInvoices, "", "invoices.csv")
	run.MappingConfig = &domain.MappingConfig{
		Mappings: map[string]domain.FieldResult{
			"broj":  {SourceField: "broj", TargetField: "invoice_number", TransformationKind: string(domain.TransformDirect), Mapped: true, AutoApplied: true},
			"datum": {SourceField: "datum", TargetField: "invoice_date", TransformationKind: string(domain.TransformDate), Mapped: true, AutoApplied: true},
			"osnov": {SourceField: "osnov", TargetField: "sub_total", TransformationKind: string(domain.TransformCurrency), Mapped: true, AutoApplied: true},
			"ddv":   {SourceField: "ddv", TargetField: "tax", TransformationKind: string(domain.TransformCurrency), Mapped: true, AutoApplied: true},
			"vkupno": {SourceField: "vkupno", TargetField: "total", TransformationKind: string(domain.TransformCurrency), Mapped: true, AutoApplied: true},
		},
	}
	return run
}

func mappedRow(rowNumber int, mapped map[string]string) domain.StagingRow {
	row := domain.NewStagingRow(uuid.New(), rowNumber, mapped, mapped)
	row.Mapped = mapped
	return row
}

func TestValidateCountersAddUp(t *testing.T) {
	staging := &stubStaging{rows: []domain.StagingRow{
		mappedRow(1, map[string]string{
			"invoice_number": "F-001", "invoice_date": "15.03.2024",
			"sub_total": "1.000,00", "tax": "180,00", "total": "1.180,00",
		}),
		mappedRow(2, map[string]string{
			"invoice_number": "F-002", "invoice_date": "15.03.2024",
			"sub_total": "1.000,00", "tax": "180,00", "total": "2.000,00",
		}),
		mappedRow(3, map[string]string{
			"invoice_number": "F-003", "invoice_date": "16.03.2024",
			"sub_total": "500,00", "tax": "90,00", "total": "590,00",
		}),
	}}
	logs := &stubLogs{}
	v := newValidator(staging, &stubProduction{}, logs)

	result, err := v.Validate(context.Background(), invoiceRun())
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	if result.Processed != 3 || result.Valid != 2 || result.Invalid != 1 {
		t.Fatalf("result = %+v, want processed 3, valid 2, invalid 1", result)
	}
	if result.Processed != result.Valid+result.Invalid {
		t.Error("processed must equal valid plus invalid")
	}

	if len(staging.updated) != 3 {
		t.Fatalf("updated %d rows, want 3", len(staging.updated))
	}

	bad := staging.updated[1]
	if bad.ValidationStatus != domain.RowInvalid {
		t.Errorf("mismatched total row status = %s, want invalid", bad.ValidationStatus)
	}
	if len(bad.ValidationErrors) == 0 {
		t.Error("invalid row should carry its violations")
	}

	good := staging.updated[0]
	if good.ValidationStatus != domain.RowValid {
		t.Errorf("row 1 status = %s, want valid", good.ValidationStatus)
	}
	if good.Transformed["total"] != "1180.00" {
		t.Errorf("transformed total = %q, want 1180.00", good.Transformed["total"])
	}
	if good.Transformed["invoice_date"] != "2024-03-15" {
		t.Errorf("transformed invoice_date = %q, want 2024-03-15", good.Transformed["invoice_date"])
	}
}

func TestValidateWithoutMappingConfig(t *testing.T) {
	v := newValidator(&stubStaging{}, &stubProduction{}, &stubLogs{})
	run := domain.NewImportRun(uuid.New(), uuid.New(), domain.EntityInvoices, "", "x.csv")

	if _, err := v.Validate(context.Background(), run); err == nil {
		t.Fatal("Validate without mapping configuration succeeded, want error")
	}
}

func TestValidateAllRowsInvalid(t *testing.T) {
	staging := &stubStaging{rows: []domain.StagingRow{
		mappedRow(1, map[string]string{"invoice_number": "", "total": "not a number"}),
	}}
	v := newValidator(staging, &stubProduction{}, &stubLogs{})

	result, err := v.Validate(context.Background(), invoiceRun())
	if err == nil {
		t.Fatal("Validate with zero valid rows succeeded, want error")
	}
	if result.Invalid != 1 || result.Processed != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestValidateRowWithoutMappedValues(t *testing.T) {
	row := domain.NewStagingRow(uuid.New(), 1, map[string]string{"a": "b"}, map[string]string{"a": "b"})
	staging := &stubStaging{rows: []domain.StagingRow{row}}
	v := newValidator(staging, &stubProduction{}, &stubLogs{})

	result, err := v.Validate(context.Background(), invoiceRun())
	if err == nil {
		t.Fatal("expected error, all rows invalid")
	}
	if result.Invalid != 1 {
		t.Errorf("Invalid = %d, want 1", result.Invalid)
	}
}

func TestValidateDetectsCustomerDuplicate(t *testing.T) {
	existing := &domain.Customer{ID: uuid.New(), Name: "Pekara Ilinden", Email: "info@ilinden.mk"}
	production := &stubProduction{
		customersByEmail: map[string]*domain.Customer{"info@ilinden.mk": existing},
	}
	staging := &stubStaging{rows: []domain.StagingRow{
		mappedRow(1, map[string]string{"name": "Pekara Ilinden DOOEL", "email": "info@ilinden.mk"}),
	}}
	logs := &stubLogs{}
	v := newValidator(staging, production, logs)

	run := domain.NewImportRun(uuid.New(), uuid.New(), domain.EntityCustomers, "", "c.csv")
	run.MappingConfig = &domain.MappingConfig{
		Mappings: map[string]domain.FieldResult{
			"ime":   {SourceField: "ime", TargetField: "name", TransformationKind: string(domain.TransformDirect), Mapped: true},
			"email": {SourceField: "email", TargetField: "email", TransformationKind: string(domain.TransformDirect), Mapped: true},
		},
	}

	result, err := v.Validate(context.Background(), run)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if result.Valid != 1 {
		t.Fatalf("Valid = %d, want 1; duplicates stay valid rows", result.Valid)
	}

	dup := staging.updated[0].DuplicateInfo
	if dup == nil || !dup.Exists || dup.MatchField != "email" || *dup.ExistingID != existing.ID {
		t.Errorf("DuplicateInfo = %+v", dup)
	}

	found := false
	for _, entry := range logs.entries {
		if entry.LogType == domain.LogDuplicateDetected {
			found = true
		}
	}
	if !found {
		t.Error("expected a duplicate_detected audit entry")
	}
}

func TestValidateLookupFailureMarksRowInvalid(t *testing.T) {
	production := &stubProduction{failLookups: true}
	staging := &stubStaging{rows: []domain.StagingRow{
		mappedRow(1, map[string]string{"name": "Pekara", "email": "a@b.mk"}),
	}}
	v := newValidator(staging, production, &stubLogs{})

	run := domain.NewImportRun(uuid.New(), uuid.New(), domain.EntityCustomers, "", "c.csv")
	run.MappingConfig = &domain.MappingConfig{
		Mappings: map[string]domain.FieldResult{
			"ime": {SourceField: "ime", TargetField: "name", TransformationKind: string(domain.TransformDirect), Mapped: true},
		},
	}

	result, err := v.Validate(context.Background(), run)
	if err == nil {
		t.Fatal("expected error, the only row failed its lookup")
	}
	if result.Invalid != 1 {
		t.Errorf("Invalid = %d, want 1", result.Invalid)
	}
}

func TestEntityForCompleteRuns(t *testing.T) {
	cases := []struct {
		values map[string]string
		want   domain.EntityType
	}{
		{map[string]string{"expense_number": "EXP-1"}, domain.EntityExpenses},
		{map[string]string{"payment_date": "2024-01-01"}, domain.EntityPayments},
		{map[string]string{"invoice_number": "F-1", "total": "100"}, domain.EntityInvoices},
		{map[string]string{"sku": "A-1", "name": "Leb"}, domain.EntityItems},
		{map[string]string{"name": "Pekara"}, domain.EntityCustomers},
	}
	for _, tc := range cases {
		if got := EntityFor(domain.EntityComplete, tc.values); got != tc.want {
			t.Errorf("EntityFor(complete, %v) = %s, want %s", tc.values, got, tc.want)
		}
	}

	if got := EntityFor(domain.EntityInvoices, map[string]string{"sku": "A"}); got != domain.EntityInvoices {
		t.Error("declared run type must not be overridden by field shape")
	}
}

func TestFuzzyNameMatch(t *testing.T) {
	refs := []repository.CustomerRef{
		{ID: uuid.New(), Name: "Pekara Ilinden DOOEL"},
		{ID: uuid.New(), Name: "Mlekara Bitola"},
	}

	if ref := fuzzyNameMatch("Pekara Ilinden", refs); ref == nil || ref.Name != "Pekara Ilinden DOOEL" {
		t.Errorf("containment match failed, got %+v", ref)
	}
	if ref := fuzzyNameMatch("mlekara bitola", refs); ref == nil {
		t.Error("case-folded exact match failed")
	}
	if ref := fuzzyNameMatch("Sosema Druga Firma", refs); ref != nil {
		t.Errorf("unrelated name matched %+v", ref)
	}
	if ref := fuzzyNameMatch("", refs); ref != nil {
		t.Error("empty name must not match")
	}
}
