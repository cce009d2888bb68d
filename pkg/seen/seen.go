// Package seen holds the set of line fingerprints already written to output.
//
// Both implementations store fingerprints only, never line text, in flat
// []uint64 open-addressing tables: memory is 8 bytes per slot with the load
// kept between 3/8 and 3/4, so roughly 11-21 bytes per distinct line. Entries
// are never evicted. A table grows by doubling, which briefly needs the old
// and the new slot arrays at once.
package seen

import (
	"math/bits"
	"sync"

	"github.com/MrMahile/rsort/pkg/fingerprint"
)

// DefaultShards is the shard count used by New for concurrent sets.
const DefaultShards = 64

const minSlots = 16

// Set records fingerprints.
type Set interface {
	// ContainsOrInsert reports whether fp was already present and inserts it
	// if it was not, as one operation.
	ContainsOrInsert(fp fingerprint.Fingerprint) bool
	// Len returns the number of distinct fingerprints recorded.
	Len() int
	// MemoryBytes returns the bytes held by the slot arrays.
	MemoryBytes() uint64
}

// New returns a single-owner Table when workers <= 1 and a Sharded set
// otherwise.
func New(workers int) Set {
	if workers <= 1 {
		return NewTable(0)
	}
	return NewSharded(DefaultShards, 0)
}

// Table is a linear-probing hash set of fingerprints. It is not safe for
// concurrent use.
//
// Slots are indexed by the low bits of the fingerprint, which relies on
// fingerprints being well mixed hash values. A zero slot marks an empty
// position, so the zero fingerprint is tracked separately.
type Table struct {
	slots   []uint64
	mask    uint64
	used    int // non-zero fingerprints stored in slots
	hasZero bool
}

// NewTable returns a Table sized to hold capacity fingerprints without
// growing.
func NewTable(capacity int) *Table {
	n := minSlots
	for n*3/4 < capacity {
		n <<= 1
	}
	return &Table{
		slots: make([]uint64, n),
		mask:  uint64(n - 1),
	}
}

// ContainsOrInsert implements Set.
func (t *Table) ContainsOrInsert(fp fingerprint.Fingerprint) bool {
	h := uint64(fp)
	if h == 0 {
		if t.hasZero {
			return true
		}
		t.hasZero = true
		return false
	}

	if (t.used+1)*4 > len(t.slots)*3 {
		t.grow()
	}

	for i := h & t.mask; ; i = (i + 1) & t.mask {
		switch t.slots[i] {
		case h:
			return true
		case 0:
			t.slots[i] = h
			t.used++
			return false
		}
	}
}

// Len implements Set.
func (t *Table) Len() int {
	if t.hasZero {
		return t.used + 1
	}
	return t.used
}

// MemoryBytes implements Set.
func (t *Table) MemoryBytes() uint64 {
	return uint64(len(t.slots)) * 8
}

func (t *Table) grow() {
	old := t.slots
	t.slots = make([]uint64, len(old)*2)
	t.mask = uint64(len(t.slots) - 1)
	for _, h := range old {
		if h == 0 {
			continue
		}
		i := h & t.mask
		for t.slots[i] != 0 {
			i = (i + 1) & t.mask
		}
		t.slots[i] = h
	}
}

// Sharded is a Set safe for concurrent use. Fingerprints are routed to one of
// a power-of-two number of Tables by their top bits, each behind its own
// mutex, so goroutines contend only when they hit the same shard.
type Sharded struct {
	shards []shard
	shift  uint
}

type shard struct {
	mu sync.Mutex
	t  *Table
	_  [48]byte // keep neighbouring shard locks off one cache line
}

// NewSharded returns a Sharded set with n shards (rounded up to a power of
// two) and room for capacity fingerprints in total.
func NewSharded(n, capacity int) *Sharded {
	if n < 1 {
		n = 1
	}
	n = 1 << bits.Len(uint(n-1))
	s := &Sharded{
		shards: make([]shard, n),
		shift:  uint(64 - bits.TrailingZeros(uint(n))),
	}
	per := capacity / n
	for i := range s.shards {
		s.shards[i].t = NewTable(per)
	}
	return s
}

// ContainsOrInsert implements Set.
func (s *Sharded) ContainsOrInsert(fp fingerprint.Fingerprint) bool {
	sh := &s.shards[s.index(fp)]
	sh.mu.Lock()
	found := sh.t.ContainsOrInsert(fp)
	sh.mu.Unlock()
	return found
}

func (s *Sharded) index(fp fingerprint.Fingerprint) int {
	if s.shift == 64 {
		return 0
	}
	return int(uint64(fp) >> s.shift)
}

// Len implements Set.
func (s *Sharded) Len() int {
	var n int
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += sh.t.Len()
		sh.mu.Unlock()
	}
	return n
}

// MemoryBytes implements Set.
func (s *Sharded) MemoryBytes() uint64 {
	var n uint64
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += sh.t.MemoryBytes()
		sh.mu.Unlock()
	}
	return n
}

// Shards returns the shard count.
func (s *Sharded) Shards() int {
	return len(s.shards)
}
