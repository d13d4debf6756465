package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"

	"github.com/tamirms/dphash"
)

// phase is one timed step of a workload.
type phase struct {
	name     string
	ops      int
	duration time.Duration
}

// result is what one contender produced on one workload. digest folds the
// values read back in the verification phase, so contenders that behave
// identically report identical digests.
type result struct {
	phases []phase
	size   int
	digest uint64
}

func timed(name string, ops int, fn func()) phase {
	start := time.Now()
	fn()
	return phase{name: name, ops: ops, duration: time.Since(start)}
}

// runIntegers inserts keys with value key*key, reads every key back, and
// erases the first half.
func runIntegers(m dphash.Map[uint64, uint64], keys []uint64) result {
	var r result
	r.phases = append(r.phases, timed("insert", len(keys), func() {
		for _, k := range keys {
			*m.GetOrInsert(k) = k * k
		}
	}))

	d := xxhash.New()
	var buf [8]byte
	r.phases = append(r.phases, timed("find", len(keys), func() {
		for _, k := range keys {
			v, _ := m.Find(k)
			binary.LittleEndian.PutUint64(buf[:], v)
			_, _ = d.Write(buf[:])
		}
	}))

	half := keys[:len(keys)/2]
	r.phases = append(r.phases, timed("erase", len(half), func() {
		for _, k := range half {
			m.Erase(k)
		}
	}))
	r.size = m.Size()
	r.digest = d.Sum64()
	return r
}

func sequentialKeys(n int) []uint64 {
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i)
	}
	return keys
}

// randomKeys returns up to n distinct keys scrambled with MurmurHash3.
func randomKeys(n int, seed uint64) []uint64 {
	keys := make([]uint64, n)
	var buf [8]byte
	for i := range keys {
		binary.LittleEndian.PutUint64(buf[:], uint64(i)^seed)
		h1, _ := murmur3.Sum128WithSeed(buf[:], uint32(seed))
		keys[i] = h1
	}
	seen := make(map[uint64]struct{}, n)
	out := keys[:0]
	for _, k := range keys {
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// runWordcount counts word occurrences, map[word]++ style.
func runWordcount(m dphash.Map[string, uint64], words []string) result {
	var r result
	r.phases = append(r.phases, timed("count", len(words), func() {
		for _, w := range words {
			*m.GetOrInsert(w)++
		}
	}))

	d := xxhash.New()
	var buf [8]byte
	r.phases = append(r.phases, timed("find", len(words), func() {
		for _, w := range words {
			v, _ := m.Find(w)
			binary.LittleEndian.PutUint64(buf[:], v)
			_, _ = d.Write(buf[:])
		}
	}))
	r.size = m.Size()
	r.digest = d.Sum64()
	return r
}

// loadWords reads whitespace-separated words from path.
func loadWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var words []string
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		words = append(words, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return words, nil
}

// zipfWords generates n words whose frequencies follow a Zipf law over a
// vocabulary of vocab words, approximating natural text.
func zipfWords(n, vocab int, seed uint64) []string {
	rng := mrand.New(mrand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	z := mrand.NewZipf(rng, 1.1, 1, uint64(vocab-1))
	words := make([]string, n)
	for i := range words {
		words[i] = "w" + strconv.FormatUint(z.Uint64(), 36)
	}
	return words
}
