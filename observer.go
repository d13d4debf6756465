package dphash

import "sync/atomic"

// RehashKind identifies which rebuild a RehashEvent reports.
type RehashKind uint8

const (
	// RehashBucket is a bucket rebuilt over its current slot count.
	RehashBucket RehashKind = iota
	// ResizeBucket is a bucket whose capacity grew before the rebuild.
	ResizeBucket
	// RehashTable is a full rebuild: new outer function and every bucket.
	RehashTable
)

func (k RehashKind) String() string {
	switch k {
	case RehashBucket:
		return "rehash-bucket"
	case ResizeBucket:
		return "resize-bucket"
	case RehashTable:
		return "rehash-table"
	default:
		return "unknown"
	}
}

// RehashEvent describes one completed rebuild.
type RehashEvent struct {
	Kind RehashKind

	// Bucket is the rebuilt bucket, or -1 for RehashTable.
	Bucket int

	// Draws and Widenings count the hash functions drawn and the widenings
	// of the search that selected the new function: the inner search for a
	// bucket event, the outer partition search for RehashTable.
	Draws     int
	Widenings int

	// BucketDraws and BucketWidenings sum the inner searches of every
	// bucket built by a RehashTable.
	BucketDraws     int
	BucketWidenings int

	// Buckets and Elements are the table's bucket count and live element
	// count after the rebuild.
	Buckets  int
	Elements int
}

// Observer receives rehash events. Rehashed is called on the goroutine
// performing the table operation, after the rebuild completed.
type Observer interface {
	Rehashed(RehashEvent)
}

// Counters is an Observer that accumulates rehash statistics. It may be read
// from other goroutines while the table runs.
type Counters struct {
	BucketRehashes atomic.Int64
	BucketResizes  atomic.Int64
	TableRehashes  atomic.Int64
	Draws          atomic.Int64 // all hash draws, inner and outer
	Widenings      atomic.Int64 // all widenings, inner and outer
}

var _ Observer = (*Counters)(nil)

// Rehashed implements Observer.
func (c *Counters) Rehashed(ev RehashEvent) {
	switch ev.Kind {
	case RehashBucket:
		c.BucketRehashes.Add(1)
	case ResizeBucket:
		c.BucketResizes.Add(1)
	case RehashTable:
		c.TableRehashes.Add(1)
	}
	c.Draws.Add(int64(ev.Draws + ev.BucketDraws))
	c.Widenings.Add(int64(ev.Widenings + ev.BucketWidenings))
}
