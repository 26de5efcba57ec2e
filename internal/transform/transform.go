// Package transform normalizes mapped cell values into canonical forms:
// ISO dates, decimal amounts, integer cents.
package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical date representation stored in transformed
// values.
const DateLayout = "2006-01-02"

// dateLayouts covers the formats regional exports actually use, most
// specific first. Dotted day-first forms dominate.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"02.01.2006.",
	"2.1.2006.",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2.1.06",
	"02.01.06",
}

// Date parses a date in any supported layout and returns it with its
// canonical string form.
func Date(value string) (time.Time, string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, "", fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, t.Format(DateLayout), nil
		}
	}
	return time.Time{}, "", fmt.Errorf("unrecognized date format: %q", value)
}

// currencyMarkers are stripped before numeric parsing. Both the Macedonian
// denar markers and the common symbols appear glued to amounts in exports.
var currencyMarkers = []string{
	"ден.", "ден", "МКД", "MKD", "mkd", "ДИН", "din", "РСД", "RSD",
	"EUR", "eur", "€", "$", "USD",
}

// Decimal parses an amount written in either European (1.234,56) or
// Anglo (1,234.56) style, tolerating currency markers and spaces.
func Decimal(value string) (decimal.Decimal, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	for _, marker := range currencyMarkers {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = normalizeSeparators(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("no digits in amount: %q", value)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q: %w", value, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites the string with '.' as the decimal separator.
// When both separators occur the rightmost one is decimal; a lone comma is
// decimal only when followed by one or two digits, otherwise it groups
// thousands.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		fraction := len(s) - lastComma - 1
		if strings.Count(s, ",") == 1 && fraction > 0 && fraction <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		// A dot grouping thousands (1.234.567) has multiple dots or
		// exactly three digits after a single dot with 4+ before it.
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

// Cents converts a decimal amount to integer cents, the at-rest money
// representation.
func Cents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CentsString renders integer cents back as a two-decimal string.
func CentsString(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// fallbackEURMKD is the pegged rate used when no configured rate exists for
// an EUR amount entering a denar ledger.
var fallbackEURMKD = decimal.NewFromFloat(61.5)

// Converter converts amounts into the company's base currency.
type Converter struct {
	baseCurrency string
	rates        map[string]decimal.Decimal
}

// NewConverter creates a converter into baseCurrency. rates maps source
// currency codes to multipliers; EUR to MKD falls back to the peg when
// absent.
func NewConverter(baseCurrency string, rates map[string]decimal.Decimal) *Converter {
	if rates == nil {
		rates = map[string]decimal.Decimal{}
	}
	return &Converter{baseCurrency: strings.ToUpper(baseCurrency), rates: rates}
}

// BaseCurrency returns the target currency code.
func (c *Converter) BaseCurrency() string {
	return c.baseCurrency
}

// Convert converts an amount from the given currency into the base
// currency. Amounts already in the base currency pass through.
func (c *Converter) Convert(amount decimal.Decimal, from string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	if from == "" || from == c.baseCurrency {
		return amount, nil
	}
	if rate, ok := c.rates[from]; ok {
		return amount.Mul(rate), nil
	}
	if from == "EUR" && c.baseCurrency == "MKD" {
		return amount.Mul(fallbackEURMKD), nil
	}
	return decimal.Zero, fmt.Errorf("no conversion rate from %s to %s", from, c.baseCurrency)
}
