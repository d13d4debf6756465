package main

import (
	"fmt"
	"sort"

	"github.com/tamirms/dphash"
)

// contender is a table implementation the driver can measure.
type contender[K comparable] struct {
	key         string
	description string
	new         func(expected int) (dphash.Map[K, uint64], error)
}

// contenders returns the registered tables, keyed by name. opts configure
// the dphash contender.
func contenders[K comparable](opts []dphash.Option) map[string]contender[K] {
	list := []contender[K]{
		{
			key:         "dphash",
			description: "dynamic perfect hashing, two-level",
			new: func(expected int) (dphash.Map[K, uint64], error) {
				return dphash.New[K, uint64](expected, opts...)
			},
		},
		{
			key:         "builtin",
			description: "Go map of value pointers",
			new: func(expected int) (dphash.Map[K, uint64], error) {
				return newBuiltinMap[K, uint64](expected), nil
			},
		},
	}
	m := make(map[string]contender[K], len(list))
	for _, c := range list {
		m[c.key] = c
	}
	return m
}

// selectContenders resolves a list of names against the registry. An empty
// list selects every contender, in name order.
func selectContenders[K comparable](registry map[string]contender[K], names []string) ([]contender[K], error) {
	if len(names) == 0 {
		for name := range registry {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	out := make([]contender[K], 0, len(names))
	for _, name := range names {
		c, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown contender %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

// builtinMap adapts a Go map to the Map contract. Values are boxed so that
// GetOrInsert can hand out a stable pointer.
type builtinMap[K comparable, V any] struct {
	m map[K]*V
}

func newBuiltinMap[K comparable, V any](expected int) *builtinMap[K, V] {
	return &builtinMap[K, V]{m: make(map[K]*V, expected)}
}

func (b *builtinMap[K, V]) GetOrInsert(key K) *V {
	p, ok := b.m[key]
	if !ok {
		p = new(V)
		b.m[key] = p
	}
	return p
}

func (b *builtinMap[K, V]) Find(key K) (V, bool) {
	if p, ok := b.m[key]; ok {
		return *p, true
	}
	var zero V
	return zero, false
}

func (b *builtinMap[K, V]) Erase(key K) bool {
	if _, ok := b.m[key]; !ok {
		return false
	}
	delete(b.m, key)
	return true
}

func (b *builtinMap[K, V]) Size() int { return len(b.m) }

func (b *builtinMap[K, V]) Clear() { clear(b.m) }
