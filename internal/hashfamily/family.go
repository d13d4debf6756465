// Package hashfamily implements the affine modular hash family used at both
// levels of the table, together with the prime and randomness sources that
// parameterize it.
//
// A member of the family is
//
//	h(x) = ((a*x + b) mod p) mod m
//
// with p prime, a and b drawn uniformly from [1, p-1], and m the range. For a
// fixed key set every redraw of (a, b) is an independent trial, which is what
// the injective searches in the bucket and table layers rely on.
//
// A multiplicative member (b = 0) is the same family with one coefficient
// pinned; there is a single Family type for both.
package hashfamily

import "math/bits"

// DefaultModulusFloor is the Mersenne prime 2^61 - 1. Using it as the lower
// bound for p keeps pre-hashes of realistic key sets distinct modulo p, so
// the family can separate them.
const DefaultModulusFloor = 1<<61 - 1

// Family is one member of the affine modular hash family.
type Family struct {
	a, b uint64
	p    uint64
	m    uint64
}

// New builds a member from explicit parameters. p must be prime and a in
// [1, p-1]; m must be positive.
func New(a, b, p, m uint64) Family {
	if m == 0 {
		panic("hashfamily: zero range")
	}
	if p < 2 || a == 0 || a >= p {
		panic("hashfamily: coefficient out of range")
	}
	return Family{a: a, b: b, p: p, m: m}
}

// Draw picks a fresh member with range m. The modulus is the smallest prime
// that is at least max(m, floor).
func Draw(rng *RandomSource, primes *PrimeOracle, floor, m uint64) Family {
	p := primes.NextPrime(max(m, floor))
	return New(rng.Between(1, p-1), rng.Between(1, p-1), p, m)
}

// Apply maps a pre-hash into [0, Range()).
func (f Family) Apply(x uint64) uint64 {
	// (2^64-1)^2 + (2^64-1) < 2^128, so a*x + b never overflows the pair.
	hi, lo := bits.Mul64(f.a, x)
	var carry uint64
	lo, carry = bits.Add64(lo, f.b, 0)
	hi += carry
	return bits.Rem64(hi, lo, f.p) % f.m
}

// Modulus returns the prime p.
func (f Family) Modulus() uint64 { return f.p }

// Range returns m.
func (f Family) Range() uint64 { return f.m }
