// Package errors defines all exported error sentinels for the dphash library.
//
// This is the single source of truth for error values. Both the top-level
// dphash package and internal packages import from here, ensuring errors.Is
// checks work across package boundaries.
package errors

import "errors"

// Construction errors
var (
	ErrNegativeExpected = errors.New("dphash: expected element count is negative")
	ErrInvalidConfig    = errors.New("dphash: invalid configuration")
)

// Fatal errors. The table panics with one of these (wrapped) instead of
// returning it: they mean the perfect-hashing guarantee cannot be upheld.
var (
	ErrInvariantViolated     = errors.New("dphash: perfect hashing invariant violated")
	ErrIndistinguishableKeys = errors.New("dphash: distinct keys share a pre-hash")
)
