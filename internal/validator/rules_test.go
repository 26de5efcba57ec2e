package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
)

func TestValidPhone(t *testing.T) {
	valid := []string{
		"070123456",
		"070 123 456",
		"070-123-456",
		"+38970123456",
		"38970123456",
		"02/3123456",
		"(02) 3123 456",
	}
	for _, phone := range valid {
		if !validPhone(phone) {
			t.Errorf("validPhone(%q) = false, want true", phone)
		}
	}

	invalid := []string{"12", "abcdefg", "999999999999999999"}
	for _, phone := range invalid {
		if validPhone(phone) {
			t.Errorf("validPhone(%q) = true, want false", phone)
		}
	}
}

func TestValidTaxID(t *testing.T) {
	if !validTaxID("4030992222222") {
		t.Error("13-digit tax id rejected")
	}
	if !validTaxID("MK4030992222222") {
		t.Error("MK-prefixed tax id rejected")
	}
	if !validTaxID(" mk4030992222222 ") {
		t.Error("lowercase prefixed tax id with spaces rejected")
	}
	for _, bad := range []string{"12345", "40309922222221", "403099222222a"} {
		if validTaxID(bad) {
			t.Errorf("validTaxID(%q) = true, want false", bad)
		}
	}
}

func TestCheckInvoiceTotalMismatch(t *testing.T) {
	violations := checkInvoice(map[string]string{
		"invoice_number": "F-1",
		"invoice_date":   "2024-03-15",
		"sub_total":      "1000.00",
		"tax":            "180.00",
		"total":          "1200.00",
	})
	if len(violations) != 1 || !strings.Contains(violations[0], "does not equal") {
		t.Errorf("violations = %v", violations)
	}
}

func TestCheckInvoiceToleratesRounding(t *testing.T) {
	violations := checkInvoice(map[string]string{
		"invoice_number": "F-1",
		"invoice_date":   "2024-03-15",
		"sub_total":      "100.00",
		"tax":            "18.00",
		"total":          "118.01",
	})
	if len(violations) != 0 {
		t.Errorf("rounding inside tolerance flagged: %v", violations)
	}
}

func TestCheckInvoiceFutureDate(t *testing.T) {
	future := time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	violations := checkInvoice(map[string]string{
		"invoice_number": "F-1",
		"invoice_date":   future,
		"total":          "100.00",
	})
	if len(violations) != 1 || !strings.Contains(violations[0], "future") {
		t.Errorf("violations = %v", violations)
	}
}

func TestCheckInvoiceDueBeforeInvoiceDate(t *testing.T) {
	violations := checkInvoice(map[string]string{
		"invoice_number": "F-1",
		"invoice_date":   "2024-03-15",
		"due_date":       "2024-03-01",
		"total":          "100.00",
	})
	if len(violations) != 1 || !strings.Contains(violations[0], "before invoice date") {
		t.Errorf("violations = %v", violations)
	}
}

func TestCheckInvoiceCollectsEveryViolation(t *testing.T) {
	violations := checkInvoice(map[string]string{})
	if len(violations) < 3 {
		t.Errorf("empty invoice produced only %v", violations)
	}
}

func TestCheckCustomer(t *testing.T) {
	if v := checkCustomer(map[string]string{"name": "Pekara"}); len(v) != 0 {
		t.Errorf("minimal customer flagged: %v", v)
	}
	if v := checkCustomer(map[string]string{}); len(v) != 1 {
		t.Errorf("missing name produced %v", v)
	}
	if v := checkCustomer(map[string]string{"name": "X", "email": "not-an-email"}); len(v) != 1 {
		t.Errorf("bad email produced %v", v)
	}
}

func TestCheckPayment(t *testing.T) {
	if v := checkPayment(map[string]string{"amount": "100.00", "payment_date": "2024-03-15"}); len(v) != 0 {
		t.Errorf("valid payment flagged: %v", v)
	}
	if v := checkPayment(map[string]string{"amount": "-5", "payment_date": "2024-03-15"}); len(v) != 1 {
		t.Errorf("negative amount produced %v", v)
	}
}

func TestCheckItem(t *testing.T) {
	if v := checkItem(map[string]string{"name": "Leb", "price": "25.00"}); len(v) != 0 {
		t.Errorf("valid item flagged: %v", v)
	}
	if v := checkItem(map[string]string{"name": "Leb", "price": "-1"}); len(v) != 1 {
		t.Errorf("negative price produced %v", v)
	}
}

func TestCheckFieldsDispatch(t *testing.T) {
	if v := checkFields(domain.EntityExpenses, map[string]string{"amount": "", "expense_date": ""}); len(v) != 2 {
		t.Errorf("expense dispatch produced %v", v)
	}
}
