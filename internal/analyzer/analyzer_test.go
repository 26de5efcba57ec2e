package analyzer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	importerrors "github.com/bloodyteeths/mkfakturi-sub009/pkg/errors"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runFor(path string) domain.ImportRun {
	return domain.NewImportRun(uuid.New(), uuid.New(), domain.EntityCustomers, "", path)
}

func TestDetectDelimiter(t *testing.T) {
	cases := map[string]rune{
		"name,email,phone":          ',',
		"name;email;phone":          ';',
		"name\temail\tphone":        '\t',
		"name|email|phone":          '|',
		"name;surname,email;phone":  ';',
		"single_column_without_sep": ',',
	}
	for line, want := range cases {
		if got := DetectDelimiter([]byte(line)); got != want {
			t.Errorf("DetectDelimiter(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestLooksLikeHeader(t *testing.T) {
	if !looksLikeHeader([]string{"name", "email", "total"}) {
		t.Error("all-text row should classify as header")
	}
	if looksLikeHeader([]string{"Pekara Ilinden", "100", "23", "123"}) {
		t.Error("mostly numeric row should not classify as header")
	}
	if looksLikeHeader([]string{"1.234,56", "42", ""}) {
		t.Error("numeric row with European decimals should not classify as header")
	}
}

func TestAnalyzeCSV(t *testing.T) {
	path := writeFile(t, "customers.csv",
		"ime;email;telefon\nPekara Ilinden;info@ilinden.mk;070123456\nMlekara Bitola;kontakt@mlekara.mk;071234567\n")
	a := New(0, logger.Discard())

	info, err := a.Analyze(runFor(path))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if info.Type != domain.FileTypeCSV {
		t.Errorf("Type = %s, want csv", info.Type)
	}
	if info.Structure.Delimiter != ";" {
		t.Errorf("Delimiter = %q, want ;", info.Structure.Delimiter)
	}
	if !info.Structure.HasHeader {
		t.Error("expected header detection")
	}
	if len(info.Headers) != 3 || info.Headers[0] != "ime" {
		t.Errorf("Headers = %v", info.Headers)
	}
	if len(info.SampleData) != 2 {
		t.Errorf("SampleData rows = %d, want 2", len(info.SampleData))
	}
	if info.EstimatedRows == 0 {
		t.Error("EstimatedRows should be nonzero")
	}
	if info.Encoding != "UTF-8" {
		t.Errorf("Encoding = %s, want UTF-8", info.Encoding)
	}
}

func TestAnalyzeEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.csv", "")
	a := New(0, logger.Discard())

	info, err := a.Analyze(runFor(path))
	if err == nil {
		t.Fatal("Analyze of empty file succeeded, want error")
	}
	if importerrors.IsRetryable(err) {
		t.Error("empty file should be a terminal error, not retryable")
	}
	if info == nil || len(info.ValidationErrors) == 0 {
		t.Error("expected validation errors on the returned summary")
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	a := New(0, logger.Discard())
	if _, err := a.Analyze(runFor(filepath.Join(t.TempDir(), "missing.csv"))); err == nil {
		t.Fatal("Analyze of missing file succeeded, want error")
	}
}

func TestAnalyzeOversizeFile(t *testing.T) {
	path := writeFile(t, "big.csv", strings.Repeat("a,b,c\n", 100))
	a := New(16, logger.Discard())

	if _, err := a.Analyze(runFor(path)); err == nil {
		t.Fatal("Analyze of oversize file succeeded, want error")
	}
}

func TestAnalyzeXML(t *testing.T) {
	path := writeFile(t, "invoices.xml",
		`<?xml version="1.0"?><invoices><invoice><number>F-1</number></invoice><invoice><number>F-2</number></invoice></invoices>`)
	a := New(0, logger.Discard())

	info, err := a.Analyze(runFor(path))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if info.Type != domain.FileTypeXML {
		t.Errorf("Type = %s, want xml", info.Type)
	}
	if info.Structure.RootElement != "invoices" {
		t.Errorf("RootElement = %q, want invoices", info.Structure.RootElement)
	}
	if info.EstimatedRows != 2 {
		t.Errorf("EstimatedRows = %d, want 2", info.EstimatedRows)
	}
}

func TestAnalyzeUnsupportedType(t *testing.T) {
	path := writeFile(t, "notes.pdf", "%PDF-1.4 not really a spreadsheet")
	a := New(0, logger.Discard())

	if _, err := a.Analyze(runFor(path)); err == nil {
		t.Fatal("Analyze of unsupported type succeeded, want error")
	}
}

func TestDetectEncoding(t *testing.T) {
	if got := detectEncoding([]byte{0xEF, 0xBB, 0xBF, 'a'}); got != "UTF-8" {
		t.Errorf("BOM prefix = %s, want UTF-8", got)
	}
	if got := detectEncoding([]byte{0xFF, 0xFE, 'a', 0}); got != "UTF-16" {
		t.Errorf("UTF-16 LE BOM = %s, want UTF-16", got)
	}
	if got := detectEncoding([]byte("plain ascii")); got != "UTF-8" {
		t.Errorf("ascii = %s, want UTF-8", got)
	}
	// 0xE6 alone is not valid UTF-8; Windows-1252 ae ligature.
	if got := detectEncoding([]byte{'c', 'a', 0xE6, 'x'}); got != "Windows-1252" {
		t.Errorf("high byte = %s, want Windows-1252", got)
	}
}

func TestFormatSize(t *testing.T) {
	if got := formatSize(512); got != "512 B" {
		t.Errorf("formatSize(512) = %q", got)
	}
	if got := formatSize(2048); got != "2.0 KB" {
		t.Errorf("formatSize(2048) = %q", got)
	}
}
