package bucket

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	dpherrors "github.com/tamirms/dphash/errors"
	"github.com/tamirms/dphash/internal/hashfamily"
)

// Entry is a live key/value pair lifted out of a bucket for a rebuild.
type Entry[K comparable, V any] struct {
	Key     K
	Value   V
	Prehash uint64
}

// SearchStats reports the cost of one or more injective searches.
type SearchStats struct {
	Draws     int // inner hash functions drawn
	Widenings int // times the slot array was widened
}

// Add accumulates other into s.
func (s *SearchStats) Add(other SearchStats) {
	s.Draws += other.Draws
	s.Widenings += other.Widenings
}

// Searcher carries the state an injective search consumes: parameters, a
// random source, the prime oracle, and reusable scratch buffers.
//
// A Searcher is NOT safe for concurrent use. Parallel rebuilds give each
// goroutine its own Searcher via Fork; the prime oracle is shared.
type Searcher struct {
	Config Config
	Rand   *hashfamily.RandomSource
	Primes *hashfamily.PrimeOracle

	marker  *bitset.BitSet // taken slots of the draw under test
	indices []uint64       // slot per entry of the draw under test
}

// NewSearcher creates a searcher. The scratch buffers are allocated lazily.
func NewSearcher(cfg Config, rng *hashfamily.RandomSource, primes *hashfamily.PrimeOracle) *Searcher {
	return &Searcher{Config: cfg, Rand: rng, Primes: primes}
}

// Fork returns a searcher with the same parameters and prime oracle and an
// independent random source split from this one. Call it on the goroutine
// that owns s.
func (s *Searcher) Fork() *Searcher {
	return NewSearcher(s.Config, s.Rand.Split(), s.Primes)
}

// draw returns a fresh inner hash function over slotCount slots.
func (s *Searcher) draw(floor uint64, slotCount int) hashfamily.Family {
	return hashfamily.Draw(s.Rand, s.Primes, floor, uint64(slotCount))
}

// injective tests whether f maps every pre-hash to its own slot. On success
// s.indices holds the slot of each pre-hash, in order.
func (s *Searcher) injective(f hashfamily.Family, prehashes func(i int) uint64, n, slotCount int) bool {
	if s.marker == nil || s.marker.Len() < uint(slotCount) {
		s.marker = bitset.New(uint(slotCount))
	}
	if cap(s.indices) < n {
		s.indices = make([]uint64, n)
	}
	s.indices = s.indices[:n]

	ok := true
	set := 0
	for i := range n {
		idx := f.Apply(prehashes(i))
		if s.marker.Test(uint(idx)) {
			ok = false
			break
		}
		s.marker.Set(uint(idx))
		s.indices[i] = idx
		set++
	}
	// Clear only the bits this draw touched so the marker stays reusable
	// without an O(slots) reset.
	for i := range set {
		s.marker.Clear(uint(s.indices[i]))
	}
	return ok
}

// search draws inner hash functions until one is injective on entries.
//
// After Config.MaxAttempts failed draws the slot array is multiplied by
// Config.WidenFactor and the modulus floor moves past the last prime. The
// first widening also checks the entries for shared pre-hashes, which no
// member of the family can separate.
func search[K comparable, V any](s *Searcher, entries []Entry[K, V], slotCount int) (hashfamily.Family, int, SearchStats, error) {
	var stats SearchStats
	prehashes := func(i int) uint64 { return entries[i].Prehash }
	floor := s.Config.ModulusFloor
	attempts := 0
	for {
		f := s.draw(floor, slotCount)
		stats.Draws++
		if s.injective(f, prehashes, len(entries), slotCount) {
			return f, slotCount, stats, nil
		}

		attempts++
		if attempts < s.Config.MaxAttempts {
			continue
		}
		if stats.Widenings == 0 {
			if err := checkDistinct(entries); err != nil {
				return hashfamily.Family{}, 0, stats, err
			}
		}
		slotCount *= s.Config.WidenFactor
		floor = f.Modulus() + 1
		stats.Widenings++
		attempts = 0
	}
}

func checkDistinct[K comparable, V any](entries []Entry[K, V]) error {
	seen := make(map[uint64]int, len(entries))
	for i := range entries {
		if j, dup := seen[entries[i].Prehash]; dup {
			return fmt.Errorf("%w: keys %v and %v both pre-hash to %#x",
				dpherrors.ErrIndistinguishableKeys, entries[j].Key, entries[i].Key, entries[i].Prehash)
		}
		seen[entries[i].Prehash] = i
	}
	return nil
}
