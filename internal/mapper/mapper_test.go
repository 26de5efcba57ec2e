package mapper

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

type stubRules struct {
	active []domain.MappingRule
	saved  []domain.MappingRule
	usage  []uuid.UUID
}

func (s *stubRules) ListActive(context.Context, uuid.UUID, string, domain.EntityType) ([]domain.MappingRule, error) {
	return s.active, nil
}

func (s *stubRules) Save(_ context.Context, rule domain.MappingRule) (domain.MappingRule, error) {
	s.saved = append(s.saved, rule)
	return rule, nil
}

func (s *stubRules) RecordUsage(_ context.Context, id uuid.UUID) error {
	s.usage = append(s.usage, id)
	return nil
}

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

func (s *stubStaging) UpdateMapped(_ context.Context, _ domain.EntityType, rows []domain.StagingRow) error {
	s.updated = append(s.updated, rows...)
	return nil
}

func (s *stubStaging) UpdateValidation(context.Context, domain.EntityType, []domain.StagingRow) error {
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

func testConfig() Config {
	return Config{MinConfidence: 0.7, HighConfidence: 0.9}
}

func customerRun(headers ...string) domain.ImportRun {
	run := domain.NewImportRun(uuid.New(), uuid.New(), domain.EntityCustomers, "", "customers.csv")
	run.FileInfo = &domain.FileInfo{Headers: headers}
	return run
}

func TestMapExactAndSynonym(t *testing.T) {
	rules := &stubRules{}
	staging := &stubStaging{
		rows: []domain.StagingRow{
			domain.NewStagingRow(uuid.New(), 1, map[string]string{
				"name": "Pekara Ilinden", "email": "info@ilinden.mk", "telefon": "070123456", "nepoznato_pole_xyz": "?",
			}, map[string]string{
				"name": "Pekara Ilinden", "email": "info@ilinden.mk", "telefon": "070123456", "nepoznato_pole_xyz": "?",
			}),
		},
	}
	m := New(rules, staging, &stubLogs{}, testConfig(), logger.Discard())
	run := customerRun("name", "email", "telefon", "nepoznato_pole_xyz")

	cfg, err := m.Map(context.Background(), run)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}

	if cfg.TotalFields != 4 {
		t.Errorf("TotalFields = %d, want 4", cfg.TotalFields)
	}
	if cfg.MappedFields != 3 {
		t.Errorf("MappedFields = %d, want 3", cfg.MappedFields)
	}
	if cfg.RequiresManualReview {
		t.Error("three of four fields mapped, review should not be required")
	}

	name := cfg.Mappings["name"]
	if name.Algorithm != "exact" || name.Confidence != 1.0 || !name.AutoApplied {
		t.Errorf("name mapping = %+v", name)
	}
	phone := cfg.Mappings["telefon"]
	if phone.TargetField != "phone" || phone.Algorithm != "synonym" {
		t.Errorf("telefon mapping = %+v", phone)
	}
	unknown := cfg.Mappings["nepoznato_pole_xyz"]
	if unknown.Mapped {
		t.Errorf("nepoznato_pole_xyz should stay unmapped, got %+v", unknown)
	}

	// Every auto-applied heuristic decision becomes a stored rule.
	if len(rules.saved) != 3 {
		t.Errorf("saved %d rules, want 3", len(rules.saved))
	}

	if len(staging.updated) != 1 {
		t.Fatalf("updated %d rows, want 1", len(staging.updated))
	}
	mapped := staging.updated[0].Mapped
	if mapped["phone"] != "070123456" {
		t.Errorf("projected phone = %q", mapped["phone"])
	}
	if _, ok := mapped["nepoznato_pole_xyz"]; ok {
		t.Error("unmapped source field leaked into mapped values")
	}
}

func TestMapStoredRuleShortCircuits(t *testing.T) {
	rule := domain.NewMappingRule(uuid.New(), "onivo", domain.EntityCustomers,
		"kupuvac_ime", "name", domain.TransformDirect, 0.92)
	rules := &stubRules{active: []domain.MappingRule{rule}}
	staging := &stubStaging{}
	m := New(rules, staging, &stubLogs{}, testConfig(), logger.Discard())

	run := customerRun("kupuvac_ime")
	run.SourceSystem = "onivo"

	cfg, err := m.Map(context.Background(), run)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}

	result := cfg.Mappings["kupuvac_ime"]
	if result.Algorithm != "stored_rule" || result.TargetField != "name" || result.Confidence != 1.0 {
		t.Errorf("stored rule mapping = %+v", result)
	}
	if len(rules.usage) != 1 || rules.usage[0] != rule.ID {
		t.Errorf("usage recorded = %v, want rule ID once", rules.usage)
	}
	if len(rules.saved) != 0 {
		t.Errorf("stored rule resolution should not save a new rule, saved %d", len(rules.saved))
	}
}

func TestMapOverrideWins(t *testing.T) {
	rules := &stubRules{}
	m := New(rules, &stubStaging{}, &stubLogs{}, testConfig(), logger.Discard())

	run := customerRun("cudno_ime_na_pole")
	run.MappingConfig = &domain.MappingConfig{
		Overrides: map[string]string{"cudno_ime_na_pole": "email"},
	}

	cfg, err := m.Map(context.Background(), run)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}

	result := cfg.Mappings["cudno_ime_na_pole"]
	if result.Algorithm != "override" || result.TargetField != "email" || result.Confidence != 1.0 {
		t.Errorf("override mapping = %+v", result)
	}
	if len(rules.saved) != 0 {
		t.Error("overrides should not be persisted as learned rules")
	}
}

func TestMapSourcePattern(t *testing.T) {
	m := New(&stubRules{}, &stubStaging{}, &stubLogs{}, testConfig(), logger.Discard())

	run := customerRun("ACNAME")
	run.SourceSystem = "pantheon"

	cfg, err := m.Map(context.Background(), run)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}

	result := cfg.Mappings["ACNAME"]
	if result.Algorithm != "source_pattern" || result.TargetField != "name" {
		t.Errorf("pantheon pattern mapping = %+v", result)
	}
}

func TestMapRequiresReviewWhenMostFieldsUnmapped(t *testing.T) {
	m := New(&stubRules{}, &stubStaging{}, &stubLogs{}, testConfig(), logger.Discard())
	run := customerRun("qqqq_wwww", "zzzz_xxxx", "name")

	cfg, err := m.Map(context.Background(), run)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}
	if !cfg.RequiresManualReview {
		t.Error("one of three fields mapped, review should be required")
	}
}

func TestMapNoSourceFields(t *testing.T) {
	m := New(&stubRules{}, &stubStaging{}, &stubLogs{}, testConfig(), logger.Discard())
	run := domain.NewImportRun(uuid.New(), uuid.New(), domain.EntityCustomers, "", "x.csv")

	if _, err := m.Map(context.Background(), run); err == nil {
		t.Fatal("Map without source fields succeeded, want error")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Naziv ":          "naziv",
		"E-Mail":            "e_mail",
		"Датум на фактура":  "datum_na_faktura",
		"Износ (ден.)":      "iznos_den",
		"šifra":             "sifra",
	}
	for input, want := range cases {
		if got := normalize(input); got != want {
			t.Errorf("normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSynonymTarget(t *testing.T) {
	customers := TargetsFor(domain.EntityCustomers)
	cases := map[string]string{
		"telefon":      "phone",
		"edb":          "tax_id",
		"naziv":        "name",
		"broj_faktura": "",
	}
	for input, want := range cases {
		if got := synonymTarget(input, customers); got != want {
			t.Errorf("synonymTarget(%q) = %q, want %q", input, got, want)
		}
	}
	if got := synonymTarget("broj_faktura", TargetsFor(domain.EntityInvoices)); got != "invoice_number" {
		t.Errorf("synonymTarget(broj_faktura, invoices) = %q, want invoice_number", got)
	}
}

func TestSynonymTargetResolvesSharedTokensByEntity(t *testing.T) {
	invoices := TargetsFor(domain.EntityInvoices)
	payments := TargetsFor(domain.EntityPayments)
	customers := TargetsFor(domain.EntityCustomers)

	// "iznos" and "klient" appear under several targets; the winner must
	// depend only on the entity, identical on every call.
	for i := 0; i < 100; i++ {
		if got := synonymTarget("iznos", invoices); got != "total" {
			t.Fatalf("synonymTarget(iznos, invoices) = %q, want total", got)
		}
		if got := synonymTarget("iznos", payments); got != "amount" {
			t.Fatalf("synonymTarget(iznos, payments) = %q, want amount", got)
		}
		if got := synonymTarget("klient", customers); got != "name" {
			t.Fatalf("synonymTarget(klient, customers) = %q, want name", got)
		}
		if got := synonymTarget("klient", invoices); got != "customer_name" {
			t.Fatalf("synonymTarget(klient, invoices) = %q, want customer_name", got)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := similarity("invoice_number", "invoice_number"); got != 1 {
		t.Errorf("identical fields = %f, want 1", got)
	}
	if got := similarity("", "name"); got != 0 {
		t.Errorf("empty source = %f, want 0", got)
	}
	if got := similarity("invoice_numbr", "invoice_number"); got < 0.7 {
		t.Errorf("one-typo similarity = %f, want >= 0.7", got)
	}
	if close, far := similarity("customer_name", "name"), similarity("customer_name", "tax_id"); close <= far {
		t.Errorf("customer_name should score closer to name (%f) than tax_id (%f)", close, far)
	}
}
