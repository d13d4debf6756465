package dphash

import (
	"fmt"
	"hash/maphash"
	"reflect"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/minio/highwayhash"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"

	dpherrors "github.com/tamirms/dphash/errors"
)

// defaultPreHasher returns the pre-hash used when no WithPreHasher option is
// given:
//
//   - integer kinds (including named ones) map to their own bit pattern,
//     which is injective, so distinct integer keys never share a pre-hash
//   - string kinds use xxHash3
//   - every other comparable type uses hash/maphash with a per-table seed
//
// The affine hash family randomizes the pre-hash, so the identity is as good
// as any mixing function for integers.
func defaultPreHasher[K comparable]() func(K) uint64 {
	var zero K
	switch reflect.TypeFor[K]().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		switch unsafe.Sizeof(zero) {
		case 8:
			return func(k K) uint64 { return *(*uint64)(unsafe.Pointer(&k)) }
		case 4:
			return func(k K) uint64 { return uint64(*(*uint32)(unsafe.Pointer(&k))) }
		case 2:
			return func(k K) uint64 { return uint64(*(*uint16)(unsafe.Pointer(&k))) }
		case 1:
			return func(k K) uint64 { return uint64(*(*uint8)(unsafe.Pointer(&k))) }
		}
	case reflect.String:
		return func(k K) uint64 { return xxh3.HashString(*(*string)(unsafe.Pointer(&k))) }
	}
	seed := maphash.MakeSeed()
	return func(k K) uint64 { return maphash.Comparable(seed, k) }
}

// XXH3String pre-hashes a string with xxHash3. It is the default for string
// keys.
func XXH3String(s string) uint64 {
	return xxh3.HashString(s)
}

// XXHashString pre-hashes a string with xxHash64.
func XXHashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Murmur3String returns a pre-hash computing seeded 64-bit MurmurHash3.
func Murmur3String(seed uint32) func(string) uint64 {
	return func(s string) uint64 {
		return murmur3.Sum64WithSeed([]byte(s), seed)
	}
}

// HighwayString returns a pre-hash computing keyed HighwayHash-64. Use it
// when keys may be chosen by an adversary who knows the unkeyed pre-hashes
// and could force shared pre-hashes. The key must be 32 bytes; it is copied.
func HighwayString(key []byte) (func(string) uint64, error) {
	if _, err := highwayhash.New64(key); err != nil {
		return nil, fmt.Errorf("%w: highwayhash key: %v", dpherrors.ErrInvalidConfig, err)
	}
	key = append([]byte(nil), key...)
	return func(s string) uint64 {
		return highwayhash.Sum64([]byte(s), key)
	}, nil
}
