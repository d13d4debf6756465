// Package bucket implements the second level of the table: a slot array with
// its own inner hash function that is perfect (collision-free) on the keys it
// was last rebuilt with.
//
// A Bucket never resolves collisions itself. Upsert reports them and the
// owning table decides whether to Rehash, ResizeAndRehash, or rebuild the
// whole table.
package bucket

import (
	"fmt"

	dpherrors "github.com/tamirms/dphash/errors"
	"github.com/tamirms/dphash/internal/hashfamily"
)

// Bucket owns a slot array and the inner hash function that indexes it.
//
// The operation counter covers the time since the last full-table rebuild,
// not since the bucket's own last rebuild: Rehash and ResizeAndRehash keep
// it, and only Build starts it at zero.
type Bucket[K comparable, V any] struct {
	capacity int // planned maximum key count; drives slot sizing
	live     int // occupied slots
	ops      int // inserts and deletes since the last full-table rebuild
	slots    []slot[K, V]
	hash     hashfamily.Family
}

// New creates an empty bucket planned for capacity keys.
func New[K comparable, V any](capacity int, s *Searcher) Bucket[K, V] {
	capacity = s.Config.Capacity(capacity)
	n := s.Config.SlotCount(capacity)
	return Bucket[K, V]{
		capacity: capacity,
		slots:    make([]slot[K, V], n),
		hash:     s.draw(s.Config.ModulusFloor, n),
	}
}

// Build creates a bucket holding entries, sized from their count. The keys
// of entries must be distinct.
func Build[K comparable, V any](entries []Entry[K, V], s *Searcher) (Bucket[K, V], SearchStats, error) {
	b := Bucket[K, V]{capacity: s.Config.Capacity(len(entries))}
	stats, err := b.rebuild(entries, s.Config.SlotCount(b.capacity), s)
	return b, stats, err
}

// Capacity returns the planned maximum key count.
func (b *Bucket[K, V]) Capacity() int { return b.capacity }

// Live returns the number of occupied slots.
func (b *Bucket[K, V]) Live() int { return b.live }

// Ops returns the mutating operations counted since the last full rebuild.
func (b *Bucket[K, V]) Ops() int { return b.ops }

// SlotCount returns the length of the slot array.
func (b *Bucket[K, V]) SlotCount() int { return len(b.slots) }

// GrownSlotCount returns the slot count the bucket would have after one
// ResizeAndRehash.
func (b *Bucket[K, V]) GrownSlotCount(cfg Config) int {
	return cfg.SlotCount(b.capacity * cfg.GrowthFactor)
}

// Index returns the slot a pre-hash maps to under the current inner function.
func (b *Bucket[K, V]) Index(prehash uint64) int {
	return int(b.hash.Apply(prehash))
}

// Find returns the value stored for key.
func (b *Bucket[K, V]) Find(prehash uint64, key K) (V, bool) {
	return b.slots[b.Index(prehash)].lookup(key)
}

// Ref returns a pointer to key's value, valid until the next mutating call
// on the bucket.
func (b *Bucket[K, V]) Ref(prehash uint64, key K) (*V, bool) {
	sl := &b.slots[b.Index(prehash)]
	if !sl.occupied() || sl.key != key {
		return nil, false
	}
	return &sl.value, true
}

// Upsert resolves key's slot, claiming it with a zero value when it is empty
// or tombstoned.
//
// collided is true when the slot is occupied by a different key; ref is nil
// in that case and the key is NOT stored. Only a created slot counts as a
// mutating operation. The caller must follow a collision with a rehash that
// carries key.
func (b *Bucket[K, V]) Upsert(prehash uint64, key K) (ref *V, created, collided bool) {
	sl := &b.slots[b.Index(prehash)]
	if !sl.occupied() {
		sl.initialize(key, prehash)
		b.live++
		b.ops++
		return &sl.value, true, false
	}
	if sl.key != key {
		return nil, false, true
	}
	return &sl.value, false, false
}

// Erase tombstones key's slot. Returns false if key is not present.
func (b *Bucket[K, V]) Erase(prehash uint64, key K) bool {
	sl := &b.slots[b.Index(prehash)]
	if !sl.occupied() || sl.key != key {
		return false
	}
	sl.markDeleted()
	b.live--
	b.ops++
	return true
}

// AppendLive appends every live pair to dst.
func (b *Bucket[K, V]) AppendLive(dst []Entry[K, V]) []Entry[K, V] {
	for i := range b.slots {
		sl := &b.slots[i]
		if sl.occupied() {
			dst = append(dst, Entry[K, V]{Key: sl.key, Value: sl.value, Prehash: sl.prehash})
		}
	}
	return dst
}

// Rehash rebuilds the bucket over its current slot count with a fresh inner
// function, adding key with a zero value unless it is already live.
func (b *Bucket[K, V]) Rehash(key K, prehash uint64, s *Searcher) (SearchStats, error) {
	return b.rebuild(b.entriesWith(key, prehash), len(b.slots), s)
}

// ResizeAndRehash grows the capacity by the growth factor, resizes the slot
// array to match, and rehashes.
func (b *Bucket[K, V]) ResizeAndRehash(key K, prehash uint64, s *Searcher) (SearchStats, error) {
	entries := b.entriesWith(key, prehash)
	b.capacity *= s.Config.GrowthFactor
	return b.rebuild(entries, s.Config.SlotCount(b.capacity), s)
}

// entriesWith collects the live pairs plus key, unless key is already live.
func (b *Bucket[K, V]) entriesWith(key K, prehash uint64) []Entry[K, V] {
	entries := b.AppendLive(make([]Entry[K, V], 0, b.live+1))
	for i := range entries {
		if entries[i].Key == key {
			return entries
		}
	}
	return append(entries, Entry[K, V]{Key: key, Prehash: prehash})
}

// rebuild places entries into a fresh slot array of at least slotCount slots.
// On error the bucket is left unchanged.
func (b *Bucket[K, V]) rebuild(entries []Entry[K, V], slotCount int, s *Searcher) (SearchStats, error) {
	f, n, stats, err := search(s, entries, slotCount)
	if err != nil {
		return stats, err
	}
	slots := make([]slot[K, V], n)
	for i := range entries {
		e := &entries[i]
		sl := &slots[s.indices[i]]
		sl.initialize(e.Key, e.Prehash)
		sl.value = e.Value
	}
	b.slots = slots
	b.hash = f
	b.live = len(entries)
	return stats, nil
}

// Check verifies that every live key sits in the slot its pre-hash maps to,
// that no key is live twice, and that the live count matches.
func (b *Bucket[K, V]) Check() error {
	seen := make(map[K]int, b.live)
	live := 0
	for i := range b.slots {
		sl := &b.slots[i]
		if sl.state == slotEmpty || sl.state == slotTombstoned {
			continue
		}
		if want := b.Index(sl.prehash); want != i {
			return fmt.Errorf("%w: key %v in slot %d, inner hash says %d",
				dpherrors.ErrInvariantViolated, sl.key, i, want)
		}
		if j, dup := seen[sl.key]; dup {
			return fmt.Errorf("%w: key %v live in slots %d and %d",
				dpherrors.ErrInvariantViolated, sl.key, j, i)
		}
		seen[sl.key] = i
		live++
	}
	if live != b.live {
		return fmt.Errorf("%w: %d live slots, counter says %d",
			dpherrors.ErrInvariantViolated, live, b.live)
	}
	return nil
}
