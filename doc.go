// Package dphash implements a dynamic perfect hashing key/value table.
//
// A Table is a two-level hash table. An outer hash function routes a key to
// a bucket; each bucket owns an inner hash function drawn at random until it
// is collision-free on the bucket's keys. Lookups therefore probe exactly one
// slot in the worst case. Inserts and deletes are amortized: a collision
// rebuilds one bucket, an overfull bucket grows, and after enough mutations
// the whole table is rebuilt around its live keys.
//
// # Basic Usage
//
//	t, err := dphash.New[string, int](1000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	*t.GetOrInsert("apples") += 3
//	t.Set("pears", 7)
//
//	if n, ok := t.Find("apples"); ok {
//	    fmt.Println(n)
//	}
//	t.Erase("pears")
//
// # Keys
//
// Keys are reduced to a 64-bit pre-hash before they enter the table.
// Integer keys use their own value, strings use xxHash3, and any other
// comparable type uses hash/maphash. WithPreHasher replaces the default;
// XXHashString, Murmur3String and HighwayString are ready-made string
// pre-hashers. Two distinct keys with the same pre-hash cannot be stored
// together: the table panics with ErrIndistinguishableKeys.
//
// # Package Structure
//
//   - Public API: table.go (New, GetOrInsert, Find, Erase, Size, Clear)
//   - Configuration: options.go (Option, With* functions)
//   - Full rebuild: rehash.go (outer partition search, potential bound)
//   - Pre-hashing: prehash.go
//   - Rehash events: observer.go (Observer, Counters)
//   - Buckets and inner search: internal/bucket/
//   - Hash family, primes, randomness: internal/hashfamily/
package dphash

import dpherrors "github.com/tamirms/dphash/errors"

// Errors re-exported from the errors package.
var (
	ErrNegativeExpected      = dpherrors.ErrNegativeExpected
	ErrInvalidConfig         = dpherrors.ErrInvalidConfig
	ErrInvariantViolated     = dpherrors.ErrInvariantViolated
	ErrIndistinguishableKeys = dpherrors.ErrIndistinguishableKeys
)
