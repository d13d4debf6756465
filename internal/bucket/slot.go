package bucket

type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
	slotTombstoned
)

// slot holds at most one key/value pair. The pre-hash is cached so rebuilds
// never call back into the caller's hasher.
type slot[K comparable, V any] struct {
	key     K
	value   V
	prehash uint64
	state   slotState
}

// initialize claims an empty or tombstoned slot for key with a zero value.
func (s *slot[K, V]) initialize(key K, prehash uint64) {
	var zero V
	s.key = key
	s.value = zero
	s.prehash = prehash
	s.state = slotOccupied
}

func (s *slot[K, V]) occupied() bool {
	return s.state == slotOccupied
}

// markDeleted tombstones the slot. The value stays in place but is inert.
func (s *slot[K, V]) markDeleted() {
	s.state = slotTombstoned
}

// lookup returns the value iff the slot is occupied by key.
func (s *slot[K, V]) lookup(key K) (V, bool) {
	if s.state == slotOccupied && s.key == key {
		return s.value, true
	}
	var zero V
	return zero, false
}
