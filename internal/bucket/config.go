package bucket

import (
	"fmt"

	dpherrors "github.com/tamirms/dphash/errors"
	"github.com/tamirms/dphash/internal/hashfamily"
)

// Sizing and search defaults.
const (
	// DefaultGrowthFactor multiplies a bucket's capacity on resize.
	DefaultGrowthFactor = 2

	// DefaultLengthFactor is the k in slots = k*c*(c-1). With k = 2 a
	// uniformly drawn function is injective on c keys with probability
	// above 1/2 (birthday bound), so the expected number of draws is < 2.
	DefaultLengthFactor = 2

	// DefaultMaxAttempts is the number of failed draws tolerated before the
	// slot array is widened.
	DefaultMaxAttempts = 5

	// DefaultWidenFactor multiplies the slot count when widening.
	DefaultWidenFactor = 2

	// DefaultMinCapacity is the smallest planned capacity of any bucket.
	DefaultMinCapacity = 4
)

// Config holds the sizing and search parameters shared by every bucket of a
// table.
type Config struct {
	GrowthFactor int
	LengthFactor int
	MaxAttempts  int
	WidenFactor  int
	MinCapacity  int
	ModulusFloor uint64
}

// DefaultConfig returns the default bucket parameters.
func DefaultConfig() Config {
	return Config{
		GrowthFactor: DefaultGrowthFactor,
		LengthFactor: DefaultLengthFactor,
		MaxAttempts:  DefaultMaxAttempts,
		WidenFactor:  DefaultWidenFactor,
		MinCapacity:  DefaultMinCapacity,
		ModulusFloor: hashfamily.DefaultModulusFloor,
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	switch {
	case c.GrowthFactor < 2:
		return fmt.Errorf("%w: bucket growth factor %d < 2", dpherrors.ErrInvalidConfig, c.GrowthFactor)
	case c.LengthFactor < 1:
		return fmt.Errorf("%w: bucket length factor %d < 1", dpherrors.ErrInvalidConfig, c.LengthFactor)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max rehash attempts %d < 1", dpherrors.ErrInvalidConfig, c.MaxAttempts)
	case c.WidenFactor < 2:
		return fmt.Errorf("%w: widen factor %d < 2", dpherrors.ErrInvalidConfig, c.WidenFactor)
	case c.MinCapacity < 1:
		return fmt.Errorf("%w: min bucket capacity %d < 1", dpherrors.ErrInvalidConfig, c.MinCapacity)
	case c.ModulusFloor < 2:
		return fmt.Errorf("%w: modulus floor %d < 2", dpherrors.ErrInvalidConfig, c.ModulusFloor)
	}
	return nil
}

// Capacity returns the planned capacity of a bucket rebuilt around n keys.
func (c Config) Capacity(n int) int {
	return max(c.MinCapacity, n)
}

// SlotCount returns the quadratic slot count for a capacity, never below the
// capacity itself.
func (c Config) SlotCount(capacity int) int {
	n := c.LengthFactor * capacity * (capacity - 1)
	return max(n, capacity, 1)
}
