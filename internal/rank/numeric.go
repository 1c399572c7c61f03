package rank

import (
	"errors"
	"fmt"
)

// Numeric keys are the older float scheme: new items land at max+Step and
// moves take the arithmetic mean of their neighbours. Each move halves the
// gap, so roughly 50 moves into the same slot exhaust a float64 mantissa.
// These helpers are kept for migrating and comparing old data only.

// Step is the gap left between numeric keys appended at the end.
const Step = 1000

// ErrPrecisionExhausted reports that no float64 lies strictly between two
// numeric keys.
var ErrPrecisionExhausted = errors.New("rank precision exhausted")

// Midpoint returns the mean of lo and hi.
func Midpoint(lo, hi float64) (float64, error) {
	if !(lo < hi) {
		return 0, fmt.Errorf("%w: %v is not below %v", ErrInvalidKey, lo, hi)
	}
	m := lo + (hi-lo)/2
	if m <= lo || m >= hi {
		return 0, fmt.Errorf("%w: between %v and %v", ErrPrecisionExhausted, lo, hi)
	}
	return m, nil
}

// NumericAfter returns a key past the current maximum.
func NumericAfter(max float64) float64 {
	return max + Step
}

// NumericBefore halves the current minimum, keeping keys positive.
func NumericBefore(min float64) (float64, error) {
	k := min / 2
	if k <= 0 || k >= min {
		return 0, fmt.Errorf("%w: below %v", ErrPrecisionExhausted, min)
	}
	return k, nil
}
