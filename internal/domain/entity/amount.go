package entity

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// amountScale is the number of fractional digits every Amount carries
const amountScale = 2

var amountContext = apd.BaseContext.WithPrecision(34)

// Amount is a non-negative fixed-point money value with two fractional
// digits. It is held in canonical text form ("42.50") so signer and
// verifier never round-trip through binary floating point.
type Amount struct {
	value string
}

// ParseAmount parses a decimal string into an Amount
func ParseAmount(s string) (Amount, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: amount %q is not a decimal", ErrInvalidReport, s)
	}
	return NewAmount(d)
}

// MustParseAmount is like ParseAmount but panics on error
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NewAmount converts a decimal into an Amount, rejecting negative values and
// values with more than two fractional digits
func NewAmount(d *apd.Decimal) (Amount, error) {
	if d.Form != apd.Finite {
		return Amount{}, fmt.Errorf("%w: amount must be finite", ErrInvalidReport)
	}
	if d.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidReport)
	}

	var q apd.Decimal
	cond, err := amountContext.Quantize(&q, d, -amountScale)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: amount: %v", ErrInvalidReport, err)
	}
	if cond.Inexact() {
		return Amount{}, fmt.Errorf("%w: amount %s has more than %d decimal places", ErrInvalidReport, d.String(), amountScale)
	}
	q.Negative = false

	return Amount{value: q.Text('f')}, nil
}

// String returns the canonical fixed-point representation
func (a Amount) String() string {
	if a.value == "" {
		return "0.00"
	}
	return a.value
}

// Decimal returns a fresh decimal holding the amount
func (a Amount) Decimal() *apd.Decimal {
	d, _, err := apd.NewFromString(a.String())
	if err != nil {
		return apd.New(0, -amountScale)
	}
	return d
}

// Equal reports whether two amounts hold the same value
func (a Amount) Equal(b Amount) bool {
	return a.String() == b.String()
}

// Add returns the sum of two amounts
func (a Amount) Add(b Amount) Amount {
	var sum apd.Decimal
	if _, err := amountContext.Add(&sum, a.Decimal(), b.Decimal()); err != nil {
		return a
	}
	out, err := NewAmount(&sum)
	if err != nil {
		return a
	}
	return out
}

// MarshalJSON encodes the amount as a JSON number with two fractional digits
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return fmt.Errorf("%w: amount is required", ErrInvalidReport)
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseAmount(v)
		if err != nil {
			return err
		}
		*a = parsed
	case []byte:
		parsed, err := ParseAmount(string(v))
		if err != nil {
			return err
		}
		*a = parsed
	case nil:
		*a = Amount{}
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
	return nil
}
