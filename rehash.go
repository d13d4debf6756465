package dphash

import (
	"fmt"
	"math"
	"math/bits"

	"golang.org/x/sync/errgroup"

	"github.com/tamirms/dphash/internal/bucket"
	"github.com/tamirms/dphash/internal/hashfamily"
)

// minBucketsPerWorker is the smallest share of buckets worth handing to a
// rebuild goroutine.
const minBucketsPerWorker = 64

// pendingKey is a key that must be present after a full rebuild even though
// it may not be stored yet, because its insert collided.
type pendingKey[K comparable] struct {
	key     K
	prehash uint64
}

// potentialBound returns 32*threshold^2/buckets + 4*threshold, saturating at
// MaxUint64.
func potentialBound(threshold, buckets int) uint64 {
	t := uint64(threshold)
	hi, lo := bits.Mul64(t, t)
	if hi>>59 != 0 {
		return math.MaxUint64
	}
	hi, lo = hi<<5|lo>>59, lo<<5
	nb := uint64(buckets)
	if hi >= nb {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, nb)
	hi, linear := bits.Mul64(t, 4)
	if hi != 0 {
		return math.MaxUint64
	}
	sum, carry := bits.Add64(q, linear, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// rehashAll rebuilds the whole table around its live keys plus pending, if
// given and not already live.
//
// The outer function is redrawn until the quadratic slot counts its
// partition implies fit under the potential bound. After MaxAttempts
// rejected draws the threshold is widened, which raises the bound.
func (t *Table[K, V]) rehashAll(pending *pendingKey[K]) {
	entries := make([]bucket.Entry[K, V], 0, t.live+1)
	for i := range t.buckets {
		entries = t.buckets[i].AppendLive(entries)
	}
	if pending != nil {
		if _, ok := t.buckets[t.bucketOf(pending.prehash)].Ref(pending.prehash, pending.key); !ok {
			entries = append(entries, bucket.Entry[K, V]{Key: pending.key, Prehash: pending.prehash})
		}
	}

	n := len(entries)
	nb := t.bucketCount(n)
	t.threshold = t.thresholdFor(n)

	cfg := t.cfg.bucket
	sizes := make([]int, nb)
	var outer hashfamily.Family
	var ev RehashEvent
	for attempts := 0; ; {
		outer = hashfamily.Draw(t.searcher.Rand, t.searcher.Primes, cfg.ModulusFloor, uint64(nb))
		ev.Draws++

		clear(sizes)
		for i := range entries {
			sizes[outer.Apply(entries[i].Prehash)]++
		}
		var sum uint64
		for _, size := range sizes {
			sum += uint64(cfg.SlotCount(cfg.Capacity(size)))
		}
		if sum <= potentialBound(t.threshold, nb) {
			break
		}

		attempts++
		if attempts >= cfg.MaxAttempts {
			t.threshold *= cfg.WidenFactor
			ev.Widenings++
			attempts = 0
		}
	}

	// Counting sort by bucket; sizes become the partition start offsets.
	start := 0
	for i, size := range sizes {
		sizes[i] = start
		start += size
	}
	sorted := make([]bucket.Entry[K, V], n)
	for i := range entries {
		j := outer.Apply(entries[i].Prehash)
		sorted[sizes[j]] = entries[i]
		sizes[j]++
	}
	partition := func(i int) []bucket.Entry[K, V] {
		lo := 0
		if i > 0 {
			lo = sizes[i-1]
		}
		return sorted[lo:sizes[i]]
	}

	buckets := make([]bucket.Bucket[K, V], nb)
	stats, err := t.buildBuckets(buckets, partition)
	if err != nil {
		panic(err)
	}

	t.outer = outer
	t.buckets = buckets
	t.live = n
	t.ops = n
	t.slotSum = 0
	for i := range buckets {
		t.slotSum += buckets[i].SlotCount()
	}

	ev.Kind = RehashTable
	ev.Bucket = -1
	ev.BucketDraws = stats.Draws
	ev.BucketWidenings = stats.Widenings
	ev.Buckets = nb
	ev.Elements = n
	t.record(ev)
}

// buildBuckets fills buckets[i] from partition(i). Partitions are
// independent, so with WithWorkers they are built in parallel, each worker
// drawing from its own forked searcher.
func (t *Table[K, V]) buildBuckets(buckets []bucket.Bucket[K, V], partition func(int) []bucket.Entry[K, V]) (bucket.SearchStats, error) {
	workers := min(t.cfg.workers, len(buckets)/minBucketsPerWorker)
	if workers <= 1 {
		var total bucket.SearchStats
		for i := range buckets {
			b, stats, err := bucket.Build(partition(i), t.searcher)
			if err != nil {
				return total, fmt.Errorf("bucket %d: %w", i, err)
			}
			buckets[i] = b
			total.Add(stats)
		}
		return total, nil
	}

	// Fork on this goroutine; Searcher is not safe for concurrent use.
	searchers := make([]*bucket.Searcher, workers)
	for w := range searchers {
		searchers[w] = t.searcher.Fork()
	}
	stats := make([]bucket.SearchStats, workers)
	chunk := (len(buckets) + workers - 1) / workers

	var g errgroup.Group
	for w := range workers {
		lo, hi := w*chunk, min((w+1)*chunk, len(buckets))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				b, s, err := bucket.Build(partition(i), searchers[w])
				if err != nil {
					return fmt.Errorf("bucket %d: %w", i, err)
				}
				buckets[i] = b
				stats[w].Add(s)
			}
			return nil
		})
	}
	err := g.Wait()

	var total bucket.SearchStats
	for _, s := range stats {
		total.Add(s)
	}
	return total, err
}
