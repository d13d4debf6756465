package hashfamily

import (
	"math/big"
	"sync"
)

const (
	// maxPrime64 is the largest prime that fits in a uint64 (2^64 - 59).
	maxPrime64 = 18446744073709551557

	// maxCachedPrimes bounds the oracle cache. Tables query a handful of
	// distinct bounds (the modulus floor and its widened successors), so the
	// cache is flushed rather than evicted when it fills up.
	maxCachedPrimes = 64
)

// PrimeOracle returns the smallest prime greater than or equal to a bound.
// It is safe for concurrent use.
type PrimeOracle struct {
	mu    sync.Mutex
	cache map[uint64]uint64
}

// NewPrimeOracle creates an oracle with an empty cache.
func NewPrimeOracle() *PrimeOracle {
	return &PrimeOracle{cache: make(map[uint64]uint64)}
}

// NextPrime returns the smallest prime p >= n.
// Panics if no such prime fits in a uint64.
func (o *PrimeOracle) NextPrime(n uint64) uint64 {
	o.mu.Lock()
	p, ok := o.cache[n]
	o.mu.Unlock()
	if ok {
		return p
	}

	p = nextPrime(n)

	o.mu.Lock()
	if len(o.cache) >= maxCachedPrimes {
		clear(o.cache)
	}
	o.cache[n] = p
	o.mu.Unlock()
	return p
}

func nextPrime(n uint64) uint64 {
	if n <= 2 {
		return 2
	}
	if n > maxPrime64 {
		panic("hashfamily: no 64-bit prime above bound")
	}
	if n%2 == 0 {
		n++
	}
	var z big.Int
	for ; ; n += 2 {
		// ProbablyPrime(0) runs Baillie-PSW only, which is exact below 2^64.
		if z.SetUint64(n).ProbablyPrime(0) {
			return n
		}
	}
}
