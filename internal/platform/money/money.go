// Package money represents currency amounts as integer minor units.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is the operator's settlement currency.
const DefaultCurrency = "KES"

// Amount is a value in minor units (cents).
type Amount int64

// FromMajor converts whole currency units to an Amount.
func FromMajor(units int64) Amount {
	return Amount(units * 100)
}

// Parse reads a decimal string such as "1200", "1200.5" or "-3.25".
// More than two fractional digits is an error.
func Parse(value string) (Amount, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("amount is required")
	}
	negative := false
	if strings.HasPrefix(value, "-") {
		negative = true
		value = value[1:]
	}
	whole, frac, hasFrac := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, fmt.Errorf("amount %q must have at most two decimal places", value)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return 0, fmt.Errorf("parse amount %q: invalid fraction", value)
	}
	total := units*100 + cents
	if negative {
		total = -total
	}
	return Amount(total), nil
}

// Major returns the whole currency units, truncated toward zero.
func (a Amount) Major() int64 {
	return int64(a) / 100
}

// String renders the amount with two decimal places.
func (a Amount) String() string {
	sign := ""
	value := int64(a)
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("%s%d.%02d", sign, value/100, value%100)
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ValidateCurrency checks that code is an ISO 4217 currency.
func ValidateCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	if _, err := currency.ParseISO(code); err != nil {
		return "", fmt.Errorf("unknown currency %q", code)
	}
	return code, nil
}

// Formatter renders amounts for display in one locale.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter returns a formatter for a BCP 47 locale, falling back to English.
func NewFormatter(locale string) Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	return Formatter{printer: message.NewPrinter(tag)}
}

// Format renders "KES 1,200.00" style output with locale digit grouping.
func (f Formatter) Format(a Amount, currencyCode string) string {
	code, err := ValidateCurrency(currencyCode)
	if err != nil {
		code = strings.ToUpper(strings.TrimSpace(currencyCode))
	}
	printer := f.printer
	if printer == nil {
		printer = message.NewPrinter(language.English)
	}
	return printer.Sprintf("%s %.2f", code, float64(a)/100)
}
