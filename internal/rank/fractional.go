// Package rank allocates order keys for task lists.
//
// Keys are base-36 strings over 0-9a-z compared byte-wise, so they sort the
// same in Go and under SQLite's BINARY collation. A key never ends in '0',
// which keeps every pair of distinct keys separable by a third.
package rank

import (
	"errors"
	"fmt"
	"strings"
)

const digits = "0123456789abcdefghijklmnopqrstuvwxyz"

const base = len(digits)

// ErrInvalidKey is returned for malformed keys or out-of-order bounds.
var ErrInvalidKey = errors.New("invalid rank key")

// First is the key given to the only element of an empty list.
func First() string {
	return midpoint("", "")
}

// Validate checks that k is a well-formed key.
func Validate(k string) error {
	if k == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for i := 0; i < len(k); i++ {
		if strings.IndexByte(digits, k[i]) < 0 {
			return fmt.Errorf("%w: %q has byte %q outside 0-9a-z", ErrInvalidKey, k, k[i])
		}
	}
	if k[len(k)-1] == '0' {
		return fmt.Errorf("%w: %q ends in '0'", ErrInvalidKey, k)
	}
	return nil
}

// Between returns a key strictly between prev and next. An empty prev or
// next stands for the open start or end of the list.
func Between(prev, next string) (string, error) {
	if prev != "" {
		if err := Validate(prev); err != nil {
			return "", err
		}
	}
	if next != "" {
		if err := Validate(next); err != nil {
			return "", err
		}
	}
	if prev != "" && next != "" && prev >= next {
		return "", fmt.Errorf("%w: %q is not below %q", ErrInvalidKey, prev, next)
	}
	return midpoint(prev, next), nil
}

// After returns a key that sorts after k.
func After(k string) (string, error) {
	return Between(k, "")
}

// Before returns a key that sorts before k.
func Before(k string) (string, error) {
	return Between("", k)
}

// NBetween returns n strictly increasing keys between prev and next.
func NBetween(prev, next string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	if n == 1 {
		k, err := Between(prev, next)
		if err != nil {
			return nil, err
		}
		return []string{k}, nil
	}

	if next == "" {
		keys := make([]string, 0, n)
		k := prev
		for i := 0; i < n; i++ {
			var err error
			if k, err = After(k); err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
		return keys, nil
	}

	if prev == "" {
		keys := make([]string, n)
		k := next
		for i := n - 1; i >= 0; i-- {
			var err error
			if k, err = Before(k); err != nil {
				return nil, err
			}
			keys[i] = k
		}
		return keys, nil
	}

	mid, err := Between(prev, next)
	if err != nil {
		return nil, err
	}
	half := n / 2
	left, err := NBetween(prev, mid, half)
	if err != nil {
		return nil, err
	}
	right, err := NBetween(mid, next, n-half-1)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, n)
	keys = append(keys, left...)
	keys = append(keys, mid)
	return append(keys, right...), nil
}

// midpoint assumes a < b, or b == "" for an open end. The result is the
// shortest key that fits, so keys stay short when inserts spread out.
func midpoint(a, b string) string {
	if b != "" {
		n := 0
		for n < len(b) && digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			rest := ""
			if n < len(a) {
				rest = a[n:]
			}
			return b[:n] + midpoint(rest, b[n:])
		}
	}

	lo := 0
	if a != "" {
		lo = strings.IndexByte(digits, a[0])
	}
	hi := base
	if b != "" {
		hi = strings.IndexByte(digits, b[0])
	}

	if hi-lo > 1 {
		return string(digits[(lo+hi+1)/2])
	}

	// Adjacent leading digits.
	if len(b) > 1 {
		return b[:1]
	}
	rest := ""
	if len(a) > 1 {
		rest = a[1:]
	}
	return string(digits[lo]) + midpoint(rest, "")
}

// digitAt reads a as if padded with trailing zeros.
func digitAt(a string, i int) byte {
	if i < len(a) {
		return a[i]
	}
	return '0'
}
