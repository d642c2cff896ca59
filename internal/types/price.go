// Package types holds the primitive value types shared by the ring queue,
// the order book, and the wire parser: fixed-point prices, quantities,
// symbols and the engine's monotonic timestamp domain.
package types

import (
	"fmt"
	"strconv"
)

// PriceScale is the fixed-point scale applied to every Price: a Price of
// 1500000 displays as 150.0000.
const PriceScale = 10000

// Price is a fixed-point price scaled by PriceScale, avoiding float drift in
// book accounting. Zero is used as the "no price" sentinel throughout.
type Price int64

// Display returns the price in display units (e.g. 150.0000).
func (p Price) Display() float64 {
	return float64(p) / PriceScale
}

// String implements fmt.Stringer.
func (p Price) String() string {
	return strconv.FormatFloat(p.Display(), 'f', 4, 64)
}

// ParsePriceASCII parses a decimal ASCII price (e.g. "150.25") into a Price
// without allocating. It locates the decimal point and scales the integer
// and fractional parts directly, rather than routing through strconv.ParseFloat.
func ParsePriceASCII(b []byte) (Price, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("types: empty price")
	}
	neg := false
	i := 0
	if b[0] == '-' {
		neg = true
		i++
	} else if b[0] == '+' {
		i++
	}
	if i >= len(b) {
		return 0, fmt.Errorf("types: malformed price %q", b)
	}

	var whole int64
	var frac int64
	fracDigits := 0
	seenDot := false
	for ; i < len(b); i++ {
		c := b[i]
		if c == '.' {
			if seenDot {
				return 0, fmt.Errorf("types: malformed price %q", b)
			}
			seenDot = true
			continue
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("types: malformed price %q", b)
		}
		if !seenDot {
			whole = whole*10 + int64(c-'0')
			continue
		}
		// Only the first 4 fractional digits carry into the fixed-point
		// value; any beyond that are below the engine's precision and
		// dropped (truncated, not rounded).
		if fracDigits < 4 {
			frac = frac*10 + int64(c-'0')
			fracDigits++
		}
	}
	for fracDigits < 4 {
		frac *= 10
		fracDigits++
	}

	scaled := whole*PriceScale + frac
	if neg {
		scaled = -scaled
	}
	return Price(scaled), nil
}

// Quantity is an unsigned order/level size. There is no negative quantity.
type Quantity uint64
