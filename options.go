package dphash

import (
	"fmt"

	"github.com/go-logr/logr"

	dpherrors "github.com/tamirms/dphash/errors"
	"github.com/tamirms/dphash/internal/bucket"
)

const (
	// DefaultThresholdFactor is c in the global threshold (1+c)*max(n, 4).
	DefaultThresholdFactor = 5

	// DefaultKeysPerBucket is the average partition size the bucket count
	// is planned for.
	DefaultKeysPerBucket = 4

	// minBuckets is the smallest bucket count of any table.
	minBuckets = 10

	// minElements is the element count small tables are sized as.
	minElements = 4
)

// Option is a functional option for configuring a Table.
type Option func(*config)

type config struct {
	bucket          bucket.Config
	thresholdFactor int
	keysPerBucket   int
	workers         int
	seed1, seed2    uint64
	seeded          bool
	prehasher       any // func(K) uint64, checked against K in New
	logger          logr.Logger
	observer        Observer
}

func defaultConfig() *config {
	return &config{
		bucket:          bucket.DefaultConfig(),
		thresholdFactor: DefaultThresholdFactor,
		keysPerBucket:   DefaultKeysPerBucket,
		workers:         0, // Sequential rebuilds; use WithWorkers(n) to parallelize
		logger:          logr.Discard(),
	}
}

func (c *config) validate() error {
	if err := c.bucket.Validate(); err != nil {
		return err
	}
	switch {
	case c.thresholdFactor < 1:
		return fmt.Errorf("%w: threshold factor %d < 1", dpherrors.ErrInvalidConfig, c.thresholdFactor)
	case c.keysPerBucket < 1:
		return fmt.Errorf("%w: keys per bucket %d < 1", dpherrors.ErrInvalidConfig, c.keysPerBucket)
	case c.workers < 0:
		return fmt.Errorf("%w: negative worker count %d", dpherrors.ErrInvalidConfig, c.workers)
	}
	return nil
}

// WithBucketGrowthFactor sets the factor a bucket's capacity is multiplied
// by when it is resized. Must be at least 2.
func WithBucketGrowthFactor(f int) Option {
	return func(c *config) {
		c.bucket.GrowthFactor = f
	}
}

// WithBucketLengthFactor sets k in the bucket slot count k*c*(c-1), where c
// is the bucket capacity.
func WithBucketLengthFactor(k int) Option {
	return func(c *config) {
		c.bucket.LengthFactor = k
	}
}

// WithMaxRehashAttempts sets how many failed hash draws a search tolerates
// before it widens: the slot array for a bucket, the global threshold for
// the outer partition.
func WithMaxRehashAttempts(n int) Option {
	return func(c *config) {
		c.bucket.MaxAttempts = n
	}
}

// WithWidenFactor sets the widening multiplier.
func WithWidenFactor(f int) Option {
	return func(c *config) {
		c.bucket.WidenFactor = f
	}
}

// WithMinBucketCapacity sets the smallest planned capacity of a bucket.
func WithMinBucketCapacity(n int) Option {
	return func(c *config) {
		c.bucket.MinCapacity = n
	}
}

// WithThresholdFactor sets c in the global threshold (1+c)*max(n, 4): the
// number of inserts and deletes tolerated between full rebuilds.
func WithThresholdFactor(factor int) Option {
	return func(c *config) {
		c.thresholdFactor = factor
	}
}

// WithKeysPerBucket sets the average number of keys per bucket the bucket
// count is planned for.
func WithKeysPerBucket(n int) Option {
	return func(c *config) {
		c.keysPerBucket = n
	}
}

// WithSeed makes the table's hash draws reproducible. Without it the table
// seeds itself randomly.
func WithSeed(seed1, seed2 uint64) Option {
	return func(c *config) {
		c.seed1, c.seed2 = seed1, seed2
		c.seeded = true
	}
}

// WithPreHasher replaces the default pre-hash for keys of type K. Distinct
// keys that share a pre-hash cannot be told apart by any hash function of
// the table; inserting both is fatal.
//
// New fails with ErrInvalidConfig if K does not match the table's key type.
func WithPreHasher[K comparable](fn func(K) uint64) Option {
	return func(c *config) {
		c.prehasher = fn
	}
}

// WithLogger sets the logger for rehash events. Full rebuilds are logged at
// V(1), bucket rehashes and resizes at V(2). Default is logr.Discard().
func WithLogger(logger logr.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithObserver registers a sink for rehash events.
func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// WithWorkers sets the number of goroutines that rebuild buckets during a
// full rebuild. The table itself is still single-writer; workers only run
// inside a rebuild and are joined before the operation returns.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}
