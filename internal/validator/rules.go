package validator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/transform"
)

// totalEpsilon is the tolerance for the subtotal+tax=total arithmetic check,
// absorbing rounding applied by the source system.
var totalEpsilon = decimal.NewFromFloat(0.01)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// phoneRe matches the regional numbering families after separators are
// stripped: +389 prefixed, bare country code, or domestic 0-prefixed numbers
// for mobile (7x) and area (2x/3x/4x) ranges.
var phoneRe = regexp.MustCompile(`^(\+?389|0)?[234578][0-9]{6,8}$`)

var taxIDRe = regexp.MustCompile(`^[0-9]{13}$`)

// checkFields runs the per-entity field and business rules over transformed
// values. It returns every violation, not just the first.
func checkFields(entityType domain.EntityType, values map[string]string) []string {
	var violations []string

	switch entityType {
	case domain.EntityCustomers:
		violations = append(violations, checkCustomer(values)...)
	case domain.EntityInvoices:
		violations = append(violations, checkInvoice(values)...)
	case domain.EntityItems:
		violations = append(violations, checkItem(values)...)
	case domain.EntityPayments:
		violations = append(violations, checkPayment(values)...)
	case domain.EntityExpenses:
		violations = append(violations, checkExpense(values)...)
	}

	return violations
}

func checkCustomer(values map[string]string) []string {
	var violations []string
	if values["name"] == "" {
		violations = append(violations, "name is required")
	}
	if email := values["email"]; email != "" && !emailRe.MatchString(email) {
		violations = append(violations, fmt.Sprintf("invalid email format: %q", email))
	}
	if phone := values["phone"]; phone != "" && !validPhone(phone) {
		violations = append(violations, fmt.Sprintf("unrecognized phone number: %q", phone))
	}
	if taxID := values["tax_id"]; taxID != "" && !validTaxID(taxID) {
		violations = append(violations, fmt.Sprintf("tax id must be 13 digits: %q", taxID))
	}
	return violations
}

func checkInvoice(values map[string]string) []string {
	var violations []string
	if values["invoice_number"] == "" {
		violations = append(violations, "invoice number is required")
	}

	invoiceDate, ok := requireDate(values, "invoice_date", &violations)
	dueDate, dueOK := optionalDate(values, "due_date", &violations)
	if ok && futureDate(invoiceDate) {
		violations = append(violations, "invoice date is in the future")
	}
	if ok && dueOK && dueDate.Before(invoiceDate) {
		violations = append(violations, "due date is before invoice date")
	}

	total, totalOK := requireAmount(values, "total", &violations)
	subTotal, subOK := optionalAmount(values, "sub_total", &violations)
	tax, taxOK := optionalAmount(values, "tax", &violations)
	if totalOK && subOK && taxOK {
		if total.Sub(subTotal.Add(tax)).Abs().GreaterThan(totalEpsilon) {
			violations = append(violations, fmt.Sprintf(
				"total %s does not equal subtotal %s plus tax %s",
				total.StringFixed(2), subTotal.StringFixed(2), tax.StringFixed(2)))
		}
	}
	return violations
}

func checkItem(values map[string]string) []string {
	var violations []string
	if values["name"] == "" {
		violations = append(violations, "name is required")
	}
	if price, ok := optionalAmount(values, "price", &violations); ok && price.IsNegative() {
		violations = append(violations, "price must not be negative")
	}
	return violations
}

func checkPayment(values map[string]string) []string {
	var violations []string
	if amount, ok := requireAmount(values, "amount", &violations); ok && !amount.IsPositive() {
		violations = append(violations, "amount must be positive")
	}
	if date, ok := requireDate(values, "payment_date", &violations); ok && futureDate(date) {
		violations = append(violations, "payment date is in the future")
	}
	return violations
}

func checkExpense(values map[string]string) []string {
	var violations []string
	if amount, ok := requireAmount(values, "amount", &violations); ok && !amount.IsPositive() {
		violations = append(violations, "amount must be positive")
	}
	if date, ok := requireDate(values, "expense_date", &violations); ok && futureDate(date) {
		violations = append(violations, "expense date is in the future")
	}
	return violations
}

func validPhone(phone string) bool {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '/', '(', ')', '.':
			return -1
		}
		return r
	}, phone)
	return phoneRe.MatchString(stripped)
}

func validTaxID(taxID string) bool {
	s := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(taxID)), "MK")
	return taxIDRe.MatchString(s)
}

func futureDate(t time.Time) bool {
	return t.After(time.Now().Truncate(24 * time.Hour).Add(24 * time.Hour))
}

func requireDate(values map[string]string, field string, violations *[]string) (time.Time, bool) {
	raw := values[field]
	if raw == "" {
		*violations = append(*violations, field+" is required")
		return time.Time{}, false
	}
	t, _, err := transform.Date(raw)
	if err != nil {
		*violations = append(*violations, fmt.Sprintf("invalid %s: %v", field, err))
		return time.Time{}, false
	}
	return t, true
}

func optionalDate(values map[string]string, field string, violations *[]string) (time.Time, bool) {
	raw := values[field]
	if raw == "" {
		return time.Time{}, false
	}
	t, _, err := transform.Date(raw)
	if err != nil {
		*violations = append(*violations, fmt.Sprintf("invalid %s: %v", field, err))
		return time.Time{}, false
	}
	return t, true
}

func requireAmount(values map[string]string, field string, violations *[]string) (decimal.Decimal, bool) {
	raw := values[field]
	if raw == "" {
		*violations = append(*violations, field+" is required")
		return decimal.Zero, false
	}
	d, err := transform.Decimal(raw)
	if err != nil {
		*violations = append(*violations, fmt.Sprintf("invalid %s: %v", field, err))
		return decimal.Zero, false
	}
	return d, true
}

func optionalAmount(values map[string]string, field string, violations *[]string) (decimal.Decimal, bool) {
	raw := values[field]
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := transform.Decimal(raw)
	if err != nil {
		*violations = append(*violations, fmt.Sprintf("invalid %s: %v", field, err))
		return decimal.Zero, false
	}
	return d, true
}
