package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+79991234567":       "+79991234567",
		"89991234567":        "+79991234567",
		"79991234567":        "+79991234567",
		"+7 (999) 123-45-67": "+79991234567",
	}
	for in, want := range cases {
		got, err := NormalizePhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "12345", "+19991234567", "999123456789"} {
		_, err := NormalizePhone(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestValidateAddress(t *testing.T) {
	a, err := ValidateAddress("  Lenina st. 10, apt 5  ")
	require.NoError(t, err)
	assert.Equal(t, "Lenina st. 10, apt 5", a)

	_, err = ValidateAddress("short")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ValidateAddress(strings.Repeat("a", 501))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ValidateAddress("Main street <script>alert(1)</script>")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ValidateAddress("x'; DROP TABLE orders; --")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateDeliveryNotes(t *testing.T) {
	_, err := ValidateDeliveryNotes(strings.Repeat("n", 200))
	assert.NoError(t, err)

	_, err = ValidateDeliveryNotes(strings.Repeat("n", 201))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateQuantity(t *testing.T) {
	assert.NoError(t, ValidateQuantity(1))
	assert.NoError(t, ValidateQuantity(MaxLineQuantity))
	assert.ErrorIs(t, ValidateQuantity(0), ErrInvalidQuantity)
	assert.ErrorIs(t, ValidateQuantity(-3), ErrInvalidQuantity)
	assert.ErrorIs(t, ValidateQuantity(MaxLineQuantity+1), ErrInvalidQuantity)
}

func TestValidateDeliveryCost(t *testing.T) {
	assert.NoError(t, ValidateDeliveryCost(decimal.Zero))
	assert.ErrorIs(t, ValidateDeliveryCost(decimal.NewFromInt(-1)), ErrValidation)
	assert.NoError(t, ValidateDeliveryCost(decimal.RequireFromString("2.50")))
	assert.NoError(t, ValidateDeliveryCost(decimal.RequireFromString("2.500")))
	assert.NoError(t, ValidateDeliveryCost(MaxAmount))

	err := ValidateDeliveryCost(decimal.RequireFromString("2.005"))
	require.ErrorIs(t, err, ErrValidation)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "delivery_cost", ve.Field)

	assert.ErrorIs(t, ValidateDeliveryCost(MaxAmount.Add(decimal.RequireFromString("0.01"))), ErrValidation)
	assert.ErrorIs(t, ValidateDeliveryCost(decimal.RequireFromString("1e30")), ErrValidation)
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := ParsePaymentMethod("cash")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodCash, m)

	_, err = ParsePaymentMethod("bitcoin")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOrderNumber(t *testing.T) {
	day := time.Date(2026, 3, 7, 23, 59, 0, 0, time.UTC)
	n := FormatOrderNumber(day, 12)
	assert.Equal(t, "ORD-20260307-0012", n)
	assert.True(t, ValidOrderNumber(n))
	assert.True(t, ValidOrderNumber("ORD-20260307-12345"))
	assert.False(t, ValidOrderNumber("ORD-20261399-0001"))
	assert.False(t, ValidOrderNumber("ORD-2026037-0001"))

	d, err := OrderDateFromNumber(n)
	require.NoError(t, err)
	assert.Equal(t, "20260307", OrderDay(d))

	_, err = OrderDateFromNumber("nope")
	assert.ErrorIs(t, err, ErrValidation)
}
