package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	minAddressLen    = 10
	maxAddressLen    = 500
	maxDeliveryNotes = 200
	maxItemNotes     = 200
)

var (
	phonePlus7  = regexp.MustCompile(`^\+7\d{10}$`)
	phoneLocal8 = regexp.MustCompile(`^8\d{10}$`)
	phoneBare7  = regexp.MustCompile(`^7\d{10}$`)
	phoneJunk   = regexp.MustCompile(`[\s\-()]`)

	suspiciousInput = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)\b(drop|delete|insert|update)\s+(table|from|into)\b`),
		regexp.MustCompile(`(?i)union\s+select`),
	}
)

// NormalizePhone accepts +7XXXXXXXXXX, 8XXXXXXXXXX and 7XXXXXXXXXX, with
// optional spaces, dashes and parentheses, and returns +7XXXXXXXXXX.
func NormalizePhone(raw string) (string, error) {
	p := phoneJunk.ReplaceAllString(strings.TrimSpace(raw), "")
	switch {
	case phonePlus7.MatchString(p):
		return p, nil
	case phoneLocal8.MatchString(p), phoneBare7.MatchString(p):
		return "+7" + p[1:], nil
	}
	return "", NewValidationError("delivery_phone", "phone must look like +7XXXXXXXXXX")
}

func ValidateAddress(raw string) (string, error) {
	a := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(a)
	if n < minAddressLen || n > maxAddressLen {
		return "", NewValidationError("delivery_address", "address must be between 10 and 500 characters")
	}
	if containsSuspicious(a) {
		return "", NewValidationError("delivery_address", "address contains forbidden content")
	}
	return a, nil
}

func ValidateDeliveryNotes(raw string) (string, error) {
	n := strings.TrimSpace(raw)
	if utf8.RuneCountInString(n) > maxDeliveryNotes {
		return "", NewValidationError("delivery_notes", "notes must be at most 200 characters")
	}
	if containsSuspicious(n) {
		return "", NewValidationError("delivery_notes", "notes contain forbidden content")
	}
	return n, nil
}

func ValidateItemNotes(raw string) (string, error) {
	n := strings.TrimSpace(raw)
	if utf8.RuneCountInString(n) > maxItemNotes {
		return "", NewValidationError("notes", "notes must be at most 200 characters")
	}
	return n, nil
}

// MaxAmount bounds every money value accepted from a caller so that its
// minor-unit form fits comfortably in a BIGINT column.
var MaxAmount = decimal.NewFromInt(1_000_000)

// ValidateAmount accepts non-negative values with at most two decimal places
// and no larger than MaxAmount.
func ValidateAmount(field string, c decimal.Decimal) error {
	switch {
	case c.IsNegative():
		return NewValidationError(field, field+" must not be negative")
	case !c.Equal(c.Round(2)):
		return NewValidationError(field, field+" must have at most 2 decimal places")
	case c.GreaterThan(MaxAmount):
		return NewValidationError(field, field+" must not exceed "+MaxAmount.String())
	}
	return nil
}

func ValidateDeliveryCost(c decimal.Decimal) error {
	return ValidateAmount("delivery_cost", c)
}

func ValidateQuantity(q int) error {
	if q <= 0 || q > MaxLineQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

func containsSuspicious(s string) bool {
	for _, re := range suspiciousInput {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
