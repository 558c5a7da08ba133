// Package fixedpoint provides the deterministic fixed-point arithmetic used
// everywhere prices, quantities, balances, and PnL appear in the engine.
//
// It wraps github.com/shopspring/decimal (arbitrary-precision, base-10,
// exact add/sub/mul) so the rest of the module never imports decimal
// directly and never reaches for float64 on a state-carrying field.
// Division can fail (zero divisor) and is exposed as a checked operation
// returning (Decimal, bool) rather than panicking or silently producing
// Inf/NaN.
package fixedpoint

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DivisionPrecision is the number of decimal places retained by checked
// division. 28 matches the significant-digit floor required of the type.
const DivisionPrecision = 28

// Decimal is a signed, arbitrary-precision fixed-point number.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{d: decimal.Zero}

// NewFromInt builds a Decimal from an integer.
func NewFromInt(v int64) Decimal {
	return Decimal{d: decimal.NewFromInt(v)}
}

// NewFromFloat builds a Decimal from a float64. Reserved for boundary
// conversions (e.g. analytics output) — never use this for a value that
// will be written back into state, an order, or a position.
func NewFromFloat(v float64) Decimal {
	return Decimal{d: decimal.NewFromFloat(v)}
}

// Parse parses a decimal string (e.g. wire-format prices/sizes).
func Parse(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	return Decimal{d: d}, nil
}

// MustParse is Parse but panics on error; only safe for literals.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (a Decimal) Add(b Decimal) Decimal { return Decimal{d: a.d.Add(b.d)} }
func (a Decimal) Sub(b Decimal) Decimal { return Decimal{d: a.d.Sub(b.d)} }
func (a Decimal) Mul(b Decimal) Decimal { return Decimal{d: a.d.Mul(b.d)} }
func (a Decimal) Neg() Decimal          { return Decimal{d: a.d.Neg()} }
func (a Decimal) Abs() Decimal         { return Decimal{d: a.d.Abs()} }

// Div performs checked division. It returns (Zero, false) when b is zero,
// matching spec's requirement that division "may fail ... and must return
// an optional or error" rather than panic.
func (a Decimal) Div(b Decimal) (Decimal, bool) {
	if b.IsZero() {
		return Zero, false
	}
	return Decimal{d: a.d.DivRound(b.d, DivisionPrecision)}, true
}

func (a Decimal) Cmp(b Decimal) int     { return a.d.Cmp(b.d) }
func (a Decimal) Equal(b Decimal) bool  { return a.d.Equal(b.d) }
func (a Decimal) GreaterThan(b Decimal) bool { return a.d.GreaterThan(b.d) }
func (a Decimal) LessThan(b Decimal) bool    { return a.d.LessThan(b.d) }
func (a Decimal) GreaterThanOrEqual(b Decimal) bool { return a.d.GreaterThanOrEqual(b.d) }
func (a Decimal) LessThanOrEqual(b Decimal) bool    { return a.d.LessThanOrEqual(b.d) }
func (a Decimal) IsZero() bool          { return a.d.IsZero() }
func (a Decimal) IsPositive() bool      { return a.d.IsPositive() }
func (a Decimal) IsNegative() bool      { return a.d.IsNegative() }
func (a Decimal) Sign() int             { return a.d.Sign() }

// Float64 converts to float64 for analytics/logging only. Never feed the
// result back into a Decimal field.
func (a Decimal) Float64() float64 { return a.d.InexactFloat64() }

func (a Decimal) String() string { return a.d.String() }

// MarshalJSON/UnmarshalJSON delegate to decimal.Decimal's string encoding
// so wire payloads and the sqlite store round-trip exactly.
func (a Decimal) MarshalJSON() ([]byte, error) { return a.d.MarshalJSON() }
func (a *Decimal) UnmarshalJSON(b []byte) error { return a.d.UnmarshalJSON(b) }

// MarshalBinary/UnmarshalBinary back the msgpack encoding used by the audit
// wire format.
func (a Decimal) MarshalBinary() ([]byte, error) { return []byte(a.d.String()), nil }
func (a *Decimal) UnmarshalBinary(b []byte) error {
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return err
	}
	a.d = d
	return nil
}
