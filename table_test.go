package dphash

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
	randv2 "math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dpherrors "github.com/tamirms/dphash/errors"
	"github.com/tamirms/dphash/internal/hashfamily"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *randv2.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return randv2.New(randv2.NewPCG(testSeed1^s1, testSeed2^s2))
}

// newTestTable creates a table seeded from the test name.
func newTestTable[K comparable, V any](t testing.TB, expected int, opts ...Option) *Table[K, V] {
	t.Helper()
	rng := newTestRNG(t)
	opts = append([]Option{WithSeed(rng.Uint64(), rng.Uint64())}, opts...)
	tbl, err := New[K, V](expected, opts...)
	require.NoError(t, err)
	return tbl
}

// recoverError runs fn and returns the error it panicked with, if any.
func recoverError(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()
	fn()
	return nil
}

func TestSquaresScenario(t *testing.T) {
	tbl := newTestTable[int, int](t, 100)
	for k := range 96 {
		tbl.Set(k, k*k)
	}

	v, ok := tbl.Find(10)
	require.True(t, ok)
	assert.Equal(t, 100, v)
	assert.Equal(t, 9025, *tbl.GetOrInsert(95))
	_, ok = tbl.Find(96)
	assert.False(t, ok)

	assert.Equal(t, 0, *tbl.GetOrInsert(96), "insert-default yields the zero value")
	v, ok = tbl.Find(96)
	assert.True(t, ok)
	assert.Equal(t, 0, v)

	// Back to keys 0..95 before removing the lower half.
	require.True(t, tbl.Erase(96))
	for k := range 48 {
		require.True(t, tbl.Erase(k), "erase %d", k)
	}
	assert.Equal(t, 48, tbl.Size())
	_, ok = tbl.Find(0)
	assert.False(t, ok)
	v, ok = tbl.Find(48)
	assert.True(t, ok)
	assert.Equal(t, 2304, v)
	require.NoError(t, tbl.Verify())
}

func TestStringKeys(t *testing.T) {
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}
	tbl := newTestTable[string, int](t, len(words))
	for i, w := range words {
		tbl.Set(w, i)
	}
	for i, w := range words {
		v, ok := tbl.Find(w)
		assert.True(t, ok, w)
		assert.Equal(t, i, v, w)
	}
	_, ok := tbl.Find("iota")
	assert.False(t, ok)
	assert.Equal(t, len(words), tbl.Size())
	require.NoError(t, tbl.Verify())
}

func TestIdempotentGetOrInsert(t *testing.T) {
	tbl := newTestTable[int, string](t, 10)
	tbl.Set(7, "seven")

	p1 := tbl.GetOrInsert(7)
	p2 := tbl.GetOrInsert(7)
	assert.Same(t, p1, p2)
	assert.Equal(t, "seven", *p2)
	assert.Equal(t, 1, tbl.Size())
}

func TestTombstones(t *testing.T) {
	tbl := newTestTable[int, int](t, 16)
	tbl.Set(1, 10)
	tbl.Set(2, 20)

	t.Run("erase present key; should report removal", func(t *testing.T) {
		assert.True(t, tbl.Erase(1))
		_, ok := tbl.Find(1)
		assert.False(t, ok)
		assert.Equal(t, 1, tbl.Size())
	})

	t.Run("erase absent key; should be a no-op", func(t *testing.T) {
		ops := tbl.Stats().Ops
		assert.False(t, tbl.Erase(1))
		assert.False(t, tbl.Erase(99))
		assert.Equal(t, ops, tbl.Stats().Ops)
	})

	t.Run("reinsert; should start from zero value", func(t *testing.T) {
		assert.Equal(t, 0, *tbl.GetOrInsert(1))
		v, ok := tbl.Find(2)
		assert.True(t, ok)
		assert.Equal(t, 20, v)
	})
	require.NoError(t, tbl.Verify())
}

// TestRandomOperations drives a table and a builtin map with the same random
// operations and checks that they agree, verifying the structure after
// every mutation.
func TestRandomOperations(t *testing.T) {
	rng := newTestRNG(t)
	tbl := newTestTable[uint64, uint64](t, 0)
	model := make(map[uint64]uint64)

	const keySpace = 500
	ops := 20_000
	if testing.Short() {
		ops = 2_000
	}
	for i := range ops {
		k := rng.Uint64N(keySpace)
		switch rng.IntN(4) {
		case 0:
			_, present := model[k]
			assert.Equal(t, present, tbl.Erase(k), "op %d: erase %d", i, k)
			delete(model, k)
		case 1:
			v, ok := tbl.Find(k)
			want, present := model[k]
			assert.Equal(t, present, ok, "op %d: find %d", i, k)
			assert.Equal(t, want, v, "op %d: find %d", i, k)
			continue
		default:
			v := rng.Uint64()
			tbl.Set(k, v)
			model[k] = v
		}
		require.Equal(t, len(model), tbl.Size(), "op %d", i)
		require.NoError(t, tbl.Verify(), "op %d", i)
	}

	for k, want := range model {
		v, ok := tbl.Find(k)
		require.True(t, ok, "key %d", k)
		require.Equal(t, want, v, "key %d", k)
	}
}

// TestValuesSurviveRehash checks values written before many full rebuilds.
func TestValuesSurviveRehash(t *testing.T) {
	c := new(Counters)
	tbl := newTestTable[int, int](t, 0, WithObserver(c))
	tbl.Set(-1, 12345)

	for k := range 5_000 {
		tbl.Set(k, k+1)
	}
	assert.Greater(t, c.TableRehashes.Load(), int64(2))

	v, ok := tbl.Find(-1)
	require.True(t, ok)
	assert.Equal(t, 12345, v)
	for k := range 5_000 {
		v, ok := tbl.Find(k)
		require.True(t, ok, "key %d", k)
		require.Equal(t, k+1, v, "key %d", k)
	}
	require.NoError(t, tbl.Verify())
}

func TestStress(t *testing.T) {
	runs, n := 10, 450_000
	if testing.Short() {
		runs, n = 1, 10_000
	}
	for run := range runs {
		tbl := newTestTable[int, int](t, 0)
		for k := range n {
			*tbl.GetOrInsert(k) = k * k
		}
		require.Equal(t, n, tbl.Size(), "run %d", run)
		for _, k := range []int{0, 100, 4000} {
			v, ok := tbl.Find(k)
			require.True(t, ok, "run %d: key %d", run, k)
			require.Equal(t, k*k, v, "run %d: key %d", run, k)
		}
	}
}

// TestCongruentPrehashes stores keys whose pre-hashes are equal modulo the
// default modulus floor, which only a widened search can separate.
func TestCongruentPrehashes(t *testing.T) {
	const p = hashfamily.DefaultModulusFloor
	tbl := newTestTable[uint64, uint64](t, 4, WithPreHasher(func(k uint64) uint64 {
		return 7 + k*p
	}))
	keys := []uint64{0, 3, 5, 7}
	for _, k := range keys {
		tbl.Set(k, k+100)
		require.NoError(t, tbl.Verify())
	}
	for _, k := range keys {
		v, ok := tbl.Find(k)
		require.True(t, ok, "key %d", k)
		assert.Equal(t, k+100, v)
	}
}

func TestIndistinguishableKeysPanic(t *testing.T) {
	tbl := newTestTable[string, int](t, 4, WithPreHasher(func(string) uint64 { return 42 }))
	tbl.Set("a", 1)

	err := recoverError(func() { tbl.Set("b", 2) })
	require.Error(t, err)
	assert.True(t, errors.Is(err, dpherrors.ErrIndistinguishableKeys), "got %v", err)
}

func TestEraseTriggersRehash(t *testing.T) {
	c := new(Counters)
	tbl := newTestTable[int, int](t, 0, WithObserver(c))
	tbl.Set(-1, 1)
	tbl.Set(-2, 2)

	atThreshold := func() bool {
		st := tbl.Stats()
		return st.Ops == st.Threshold-1
	}
	eraseAndCheck := func(key int) {
		before := c.TableRehashes.Load()
		require.True(t, tbl.Erase(key))
		require.Equal(t, before+1, c.TableRehashes.Load(), "erase reaching the threshold rebuilds")
		st := tbl.Stats()
		assert.Equal(t, tbl.Size(), st.Elements)
		assert.Equal(t, st.Elements, st.Ops, "counter restarts from the live count")
		_, ok := tbl.Find(key)
		assert.False(t, ok)
		require.NoError(t, tbl.Verify())
	}

	// Insert and erase fresh keys until the next erase is the operation that
	// reaches the threshold.
	for k := range 1_000 {
		tbl.Set(k, k)
		if atThreshold() {
			eraseAndCheck(k)
			return
		}
		require.True(t, tbl.Erase(k))
		if atThreshold() {
			eraseAndCheck(-1)
			return
		}
	}
	t.Fatal("operation count never reached the threshold")
}

// sameSlotKey returns a key that the current hash functions route to the
// same bucket and slot as key. Integer keys pre-hash to themselves.
func sameSlotKey(t *testing.T, tbl *Table[int, int], key int) int {
	t.Helper()
	i := tbl.bucketOf(uint64(key))
	slot := tbl.buckets[i].Index(uint64(key))
	for y := key + 1; y < key+10_000_000; y++ {
		if tbl.bucketOf(uint64(y)) == i && tbl.buckets[i].Index(uint64(y)) == slot {
			return y
		}
	}
	t.Fatal("no key shares the slot")
	return 0
}

func TestCollidingInsertIsNotCounted(t *testing.T) {
	rec := new(recordingObserver)
	tbl := newTestTable[int, int](t, 0, WithObserver(rec))
	tbl.Set(1, 10)
	other := sameSlotKey(t, tbl, 1)
	ops := tbl.Stats().Ops

	tbl.Set(other, 20)
	assert.Equal(t, ops, tbl.Stats().Ops, "only a created slot is an operation")
	require.NotEmpty(t, rec.events)
	assert.Equal(t, RehashBucket, rec.events[len(rec.events)-1].Kind)

	assert.Equal(t, 2, tbl.Size())
	v, ok := tbl.Find(1)
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	v, ok = tbl.Find(other)
	assert.True(t, ok)
	assert.Equal(t, 20, v)
	require.NoError(t, tbl.Verify())
}

// TestAccessResizesBucketAfterErases pushes a bucket over its capacity with
// erases alone; the next access to a present key in that bucket resizes it.
func TestAccessResizesBucketAfterErases(t *testing.T) {
	rec := new(recordingObserver)
	tbl := newTestTable[int, int](t, 0, WithObserver(rec))

	const target = 0
	i := tbl.bucketOf(target)
	capacity := tbl.buckets[i].Capacity()
	var keys []int
	for k := 0; len(keys) < capacity; k++ {
		if tbl.bucketOf(uint64(k)) == i {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		tbl.Set(k, k+1)
	}
	for _, k := range keys[1:] {
		require.True(t, tbl.Erase(k))
	}
	b := &tbl.buckets[i]
	require.Greater(t, b.Ops(), b.Capacity())
	require.Less(t, tbl.Stats().Ops, tbl.Stats().Threshold)

	events := len(rec.events)
	v := tbl.GetOrInsert(keys[0])
	assert.Equal(t, keys[0]+1, *v)
	require.Len(t, rec.events, events+1)
	ev := rec.events[events]
	assert.Equal(t, ResizeBucket, ev.Kind)
	assert.Equal(t, i, ev.Bucket)
	assert.Equal(t, 2*capacity, tbl.buckets[i].Capacity())
	assert.Equal(t, 1, tbl.Size())
	require.NoError(t, tbl.Verify())
}

func TestClear(t *testing.T) {
	tbl := newTestTable[int, int](t, 1000)
	for k := range 1000 {
		tbl.Set(k, k)
	}
	tbl.Clear()

	assert.Zero(t, tbl.Size())
	_, ok := tbl.Find(5)
	assert.False(t, ok)
	st := tbl.Stats()
	assert.Equal(t, minBuckets, st.Buckets)
	assert.Zero(t, st.Ops)
	assert.Equal(t, (1+DefaultThresholdFactor)*minElements, st.Threshold)

	tbl.Set(5, 50)
	v, ok := tbl.Find(5)
	assert.True(t, ok)
	assert.Equal(t, 50, v)
	require.NoError(t, tbl.Verify())
}

func TestParallelRebuild(t *testing.T) {
	n := 100_000
	if testing.Short() {
		n = 20_000
	}
	c := new(Counters)
	tbl := newTestTable[int, int](t, 0, WithWorkers(4), WithObserver(c))
	for k := range n {
		tbl.Set(k, -k)
	}
	require.Positive(t, c.TableRehashes.Load())
	require.NoError(t, tbl.Verify())
	for k := 0; k < n; k += 97 {
		v, ok := tbl.Find(k)
		require.True(t, ok, "key %d", k)
		require.Equal(t, -k, v)
	}
}

func TestSeedDeterminism(t *testing.T) {
	build := func() Stats {
		tbl, err := New[int, int](0, WithSeed(1, 2))
		require.NoError(t, err)
		for k := range 2_000 {
			tbl.Set(k*31, k)
		}
		return tbl.Stats()
	}
	assert.Equal(t, build(), build())
}

func TestStatsPotentialBound(t *testing.T) {
	tbl := newTestTable[int, int](t, 0)
	st := tbl.Stats()
	assert.Equal(t, potentialBound(st.Threshold, st.Buckets), st.PotentialBound)
	assert.LessOrEqual(t, uint64(st.Slots), st.PotentialBound)
}

func TestMapContract(t *testing.T) {
	var m Map[string, int] = newTestTable[string, int](t, 0)
	*m.GetOrInsert("x")++
	*m.GetOrInsert("x")++
	v, ok := m.Find("x")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.True(t, m.Erase("x"))
	assert.Zero(t, m.Size())
	m.Clear()
}
