package dphash

import (
	"fmt"
	"math/rand/v2"

	"github.com/go-logr/logr"

	dpherrors "github.com/tamirms/dphash/errors"
	"github.com/tamirms/dphash/internal/bucket"
	"github.com/tamirms/dphash/internal/hashfamily"
)

// Map is the operation contract shared by Table and the other key/value
// containers the benchmark driver compares it against.
type Map[K comparable, V any] interface {
	GetOrInsert(key K) *V
	Find(key K) (V, bool)
	Erase(key K) bool
	Size() int
	Clear()
}

var _ Map[string, int] = (*Table[string, int])(nil)

// Table is a dynamic perfect hashing table. Lookups probe exactly one slot:
// the outer hash function picks a bucket and the bucket's inner hash
// function, which is collision-free on the bucket's keys, picks the slot.
//
// A Table is NOT safe for concurrent use.
type Table[K comparable, V any] struct {
	cfg      *config
	prehash  func(K) uint64
	searcher *bucket.Searcher
	log      logr.Logger

	threshold int // mutating operations tolerated before a full rebuild
	ops       int
	live      int
	slotSum   int // total slots over all buckets
	outer     hashfamily.Family
	buckets   []bucket.Bucket[K, V]
}

// New creates a table sized for about expected elements.
func New[K comparable, V any](expected int, opts ...Option) (*Table[K, V], error) {
	if expected < 0 {
		return nil, fmt.Errorf("%w: %d", dpherrors.ErrNegativeExpected, expected)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	prehash := defaultPreHasher[K]()
	if cfg.prehasher != nil {
		fn, ok := cfg.prehasher.(func(K) uint64)
		if !ok || fn == nil {
			var zero K
			return nil, fmt.Errorf("%w: pre-hasher %T does not accept keys of type %T",
				dpherrors.ErrInvalidConfig, cfg.prehasher, zero)
		}
		prehash = fn
	}

	if !cfg.seeded {
		cfg.seed1, cfg.seed2 = rand.Uint64(), rand.Uint64()
	}
	rng := hashfamily.NewRandomSource(cfg.seed1, cfg.seed2)

	t := &Table[K, V]{
		cfg:      cfg,
		prehash:  prehash,
		searcher: bucket.NewSearcher(cfg.bucket, rng, hashfamily.NewPrimeOracle()),
		log:      cfg.logger,
	}
	t.reset(expected)
	return t, nil
}

// MustNew is like New but panics on error.
func MustNew[K comparable, V any](expected int, opts ...Option) *Table[K, V] {
	t, err := New[K, V](expected, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// reset replaces the contents with empty buckets planned for expected
// elements.
func (t *Table[K, V]) reset(expected int) {
	nb := t.bucketCount(expected)
	perBucket := (max(expected, minElements) + nb - 1) / nb

	t.threshold = t.thresholdFor(expected)
	t.ops = 0
	t.live = 0
	t.outer = hashfamily.Draw(t.searcher.Rand, t.searcher.Primes, t.cfg.bucket.ModulusFloor, uint64(nb))
	t.buckets = make([]bucket.Bucket[K, V], nb)
	t.slotSum = 0
	for i := range t.buckets {
		t.buckets[i] = bucket.New[K, V](perBucket, t.searcher)
		t.slotSum += t.buckets[i].SlotCount()
	}
}

// thresholdFor returns (1+c)*max(n, 4).
func (t *Table[K, V]) thresholdFor(n int) int {
	return (1 + t.cfg.thresholdFactor) * max(n, minElements)
}

// bucketCount returns max(10, ceil(max(n, 4) / keysPerBucket)).
func (t *Table[K, V]) bucketCount(n int) int {
	n = max(n, minElements)
	return max(minBuckets, (n+t.cfg.keysPerBucket-1)/t.cfg.keysPerBucket)
}

func (t *Table[K, V]) bucketOf(prehash uint64) int {
	return int(t.outer.Apply(prehash))
}

// GetOrInsert returns a pointer to key's value, inserting key with the zero
// value if it is absent. The pointer is valid until the next call that
// mutates the table.
//
// The growth rules run on every call, including for a key that is already
// present: erases can leave a bucket over its capacity, and the next access
// to that bucket resizes it.
func (t *Table[K, V]) GetOrInsert(key K) *V {
	prehash := t.prehash(key)
	i := t.bucketOf(prehash)
	b := &t.buckets[i]

	ref, created, collided := b.Upsert(prehash, key)
	if created {
		t.live++
		t.ops++
	}

	switch {
	case t.ops >= t.threshold:
		t.rehashAll(&pendingKey[K]{key: key, prehash: prehash})
	case b.Ops() <= b.Capacity() && collided:
		t.rehashBucket(i, key, prehash)
	case b.Ops() > b.Capacity():
		if t.fitsAfterGrowth(b) {
			t.resizeBucket(i, key, prehash)
		} else {
			t.rehashAll(&pendingKey[K]{key: key, prehash: prehash})
		}
	default:
		return ref
	}

	ref, ok := t.buckets[t.bucketOf(prehash)].Ref(prehash, key)
	if !ok {
		panic(fmt.Errorf("%w: key %v not resolvable after rehash", dpherrors.ErrInvariantViolated, key))
	}
	return ref
}

// Set stores value under key.
func (t *Table[K, V]) Set(key K, value V) {
	*t.GetOrInsert(key) = value
}

// Find returns the value stored under key.
func (t *Table[K, V]) Find(key K) (V, bool) {
	prehash := t.prehash(key)
	return t.buckets[t.bucketOf(prehash)].Find(prehash, key)
}

// Erase removes key. Returns false if key was not present.
func (t *Table[K, V]) Erase(key K) bool {
	prehash := t.prehash(key)
	if !t.buckets[t.bucketOf(prehash)].Erase(prehash, key) {
		return false
	}
	t.live--
	t.ops++
	if t.ops >= t.threshold {
		t.rehashAll(nil)
	}
	return true
}

// Size returns the number of keys in the table.
func (t *Table[K, V]) Size() int {
	return t.live
}

// Clear removes every key and shrinks the table to its smallest size.
func (t *Table[K, V]) Clear() {
	t.reset(0)
}

// rehashBucket rebuilds bucket i over its current slots, adding key.
func (t *Table[K, V]) rehashBucket(i int, key K, prehash uint64) {
	b := &t.buckets[i]
	live, slots := b.Live(), b.SlotCount()
	stats, err := b.Rehash(key, prehash, t.searcher)
	if err != nil {
		panic(err)
	}
	t.live += b.Live() - live
	t.slotSum += b.SlotCount() - slots
	t.record(RehashEvent{
		Kind:      RehashBucket,
		Bucket:    i,
		Draws:     stats.Draws,
		Widenings: stats.Widenings,
		Buckets:   len(t.buckets),
		Elements:  t.live,
	})
}

// resizeBucket grows bucket i and rebuilds it, adding key.
func (t *Table[K, V]) resizeBucket(i int, key K, prehash uint64) {
	b := &t.buckets[i]
	live, slots := b.Live(), b.SlotCount()
	stats, err := b.ResizeAndRehash(key, prehash, t.searcher)
	if err != nil {
		panic(err)
	}
	t.live += b.Live() - live
	t.slotSum += b.SlotCount() - slots
	t.record(RehashEvent{
		Kind:      ResizeBucket,
		Bucket:    i,
		Draws:     stats.Draws,
		Widenings: stats.Widenings,
		Buckets:   len(t.buckets),
		Elements:  t.live,
	})
}

// fitsAfterGrowth reports whether the table stays within its potential bound
// if b is resized.
func (t *Table[K, V]) fitsAfterGrowth(b *bucket.Bucket[K, V]) bool {
	sum := t.slotSum - b.SlotCount() + b.GrownSlotCount(t.cfg.bucket)
	return uint64(sum) <= potentialBound(t.threshold, len(t.buckets))
}

func (t *Table[K, V]) record(ev RehashEvent) {
	if ev.Kind == RehashTable {
		t.log.V(1).Info("rehashed table",
			"elements", ev.Elements, "buckets", ev.Buckets, "threshold", t.threshold,
			"draws", ev.Draws, "widenings", ev.Widenings,
			"bucketDraws", ev.BucketDraws, "bucketWidenings", ev.BucketWidenings)
	} else {
		t.log.V(2).Info("rehashed bucket", "kind", ev.Kind, "bucket", ev.Bucket,
			"capacity", t.buckets[ev.Bucket].Capacity(), "slots", t.buckets[ev.Bucket].SlotCount(),
			"draws", ev.Draws, "widenings", ev.Widenings)
	}
	if t.cfg.observer != nil {
		t.cfg.observer.Rehashed(ev)
	}
}

// Stats is a snapshot of a table's sizing state.
type Stats struct {
	Elements       int    // live keys
	Ops            int    // mutating operations counted toward Threshold
	Threshold      int    // operations that force a full rebuild
	Buckets        int    // bucket count
	Slots          int    // total slots over all buckets
	PotentialBound uint64 // ceiling on Slots enforced when buckets grow
}

// Stats returns the current sizing state.
func (t *Table[K, V]) Stats() Stats {
	return Stats{
		Elements:       t.live,
		Ops:            t.ops,
		Threshold:      t.threshold,
		Buckets:        len(t.buckets),
		Slots:          t.slotSum,
		PotentialBound: potentialBound(t.threshold, len(t.buckets)),
	}
}

// Verify checks the table's structural invariants: every bucket is perfect
// on its live keys, every key lives in the bucket the outer function picks,
// and the cached counters agree with the buckets. It costs O(slots) and is
// meant for tests and debugging.
func (t *Table[K, V]) Verify() error {
	live, slots := 0, 0
	var entries []bucket.Entry[K, V]
	for i := range t.buckets {
		b := &t.buckets[i]
		if err := b.Check(); err != nil {
			return fmt.Errorf("bucket %d: %w", i, err)
		}
		entries = b.AppendLive(entries[:0])
		for _, e := range entries {
			if j := t.bucketOf(e.Prehash); j != i {
				return fmt.Errorf("%w: key %v in bucket %d, outer hash says %d",
					dpherrors.ErrInvariantViolated, e.Key, i, j)
			}
		}
		live += b.Live()
		slots += b.SlotCount()
	}
	if live != t.live {
		return fmt.Errorf("%w: %d live keys, size says %d", dpherrors.ErrInvariantViolated, live, t.live)
	}
	if slots != t.slotSum {
		return fmt.Errorf("%w: %d slots, cached sum says %d", dpherrors.ErrInvariantViolated, slots, t.slotSum)
	}
	return nil
}
