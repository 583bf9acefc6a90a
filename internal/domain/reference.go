package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places the ledger keeps.
const AmountScale = 2

// NewInternalRef returns prefix + "-" + a ULID, e.g. WAL-01J9Z3K7RZ8V6N2X4Q5T1M0ABC.
func NewInternalRef(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "-_")
	if prefix == "" {
		return id.String()
	}
	return strings.ToUpper(prefix) + "-" + id.String()
}

// ValidateAmount checks that amount is positive and fits the ledger scale.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.Exponent() < -AmountScale && !amount.Equal(amount.Truncate(AmountScale)) {
		return ErrInvalidAmountScale
	}
	return nil
}

// ParseAmount parses a decimal amount from user input.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrAmountRequired
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidAmountFormat
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}
