package domain

import (
	"fmt"
	"regexp"
	"time"
)

const orderDateLayout = "20060102"

var orderNumberRe = regexp.MustCompile(`^ORD-(\d{8})-(\d{4,})$`)

// FormatOrderNumber renders ORD-YYYYMMDD-NNNN for the given UTC day and
// per-day sequence.
func FormatOrderNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%04d", day.UTC().Format(orderDateLayout), seq)
}

func OrderDay(t time.Time) string {
	return t.UTC().Format(orderDateLayout)
}

func ValidOrderNumber(s string) bool {
	m := orderNumberRe.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	_, err := time.Parse(orderDateLayout, m[1])
	return err == nil
}

// OrderDateFromNumber extracts the creation day encoded in an order number.
func OrderDateFromNumber(s string) (time.Time, error) {
	m := orderNumberRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, NewValidationError("order_number", fmt.Sprintf("malformed order number %q", s))
	}
	return time.Parse(orderDateLayout, m[1])
}
