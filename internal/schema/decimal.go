package schema

import "github.com/cockroachdb/apd/v3"

// DecimalContext is the arithmetic context for DECIMAL values: 34 digits
// (IEEE 754 decimal128) with half-up rounding. Contexts are read-only during
// operations and safe to share.
var DecimalContext = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundHalfUp
	return c
}()
