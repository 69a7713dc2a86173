package domain

import "fmt"

// Cents represents monetary values in minor currency units (1/100 of the
// operation's accounting currency). Using integer cents avoids floating-point
// drift when medication costs and death losses are accumulated across many
// small updates.
type Cents int64

const (
	// CentsPerUnit is the number of cents in one major currency unit.
	CentsPerUnit = 100
)

// String formats cents as a major-unit amount (e.g. 150 → "1.50").
func (c Cents) String() string { return fmt.Sprintf("%.2f", float64(c)/CentsPerUnit) }

// IsZero returns true if the amount is zero.
func (c Cents) IsZero() bool { return c == 0 }

// Add returns the sum of two cent amounts.
func (c Cents) Add(x Cents) Cents { return c + x }

// Mul returns the amount multiplied by a unitless count.
func (c Cents) Mul(n int64) Cents { return c * Cents(n) }

// DividedBy splits the amount evenly across n units, rounding down.
// Returns zero when n is not positive.
func (c Cents) DividedBy(n int64) Cents {
	if n <= 0 {
		return 0
	}
	return c / Cents(n)
}
