package hashfamily

import (
	"math"
	"math/rand/v2"
)

// RandomSource draws uniformly distributed integers for hash parameters.
// It is NOT safe for concurrent use; hand each goroutine its own source via
// Split.
type RandomSource struct {
	rng *rand.Rand
}

// NewRandomSource creates a PCG-backed source from a 128-bit seed.
func NewRandomSource(seed1, seed2 uint64) *RandomSource {
	return &RandomSource{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Between returns a uniform value in the closed range [lo, hi].
func (s *RandomSource) Between(lo, hi uint64) uint64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo
	if span == math.MaxUint64 {
		return s.rng.Uint64()
	}
	return lo + s.rng.Uint64N(span+1)
}

// Split derives an independent source seeded from this one.
func (s *RandomSource) Split() *RandomSource {
	return NewRandomSource(s.rng.Uint64(), s.rng.Uint64())
}
