package opt

import "math/rand"

// Buffer is a fixed-capacity ring of tap handles. Once full, each Insert
// overwrites the oldest entry.
type Buffer struct {
	data []int
	pos  int // next slot to write once the ring is full
	size int
}

// NewBuffer returns an empty buffer holding at most size entries.
func NewBuffer(size int) Buffer {
	if size < 1 {
		size = 1
	}
	return Buffer{data: make([]int, 0, size), size: size}
}

// Insert records tap as the most recent entry.
func (b *Buffer) Insert(tap int) {
	if len(b.data) < b.size {
		b.data = append(b.data, tap)
		b.pos = len(b.data) % b.size
		return
	}
	b.data[b.pos] = tap
	b.pos++
	if b.pos == b.size {
		b.pos = 0
	}
}

// Rand returns a uniformly chosen entry. Sampling an empty buffer means a
// house was attached without being seeded and is treated as fatal.
func (b *Buffer) Rand(rng *rand.Rand) int {
	if len(b.data) == 0 {
		panic("opt: sample from empty locality buffer")
	}
	return b.data[rng.Intn(len(b.data))]
}

// Recent returns the i-th most recent entry, i == 0 being the newest.
func (b *Buffer) Recent(i int) (int, bool) {
	n := len(b.data)
	if i < 0 || i >= n {
		return 0, false
	}
	newest := n - 1
	if n == b.size {
		newest = b.pos - 1
	}
	idx := newest - i
	if idx < 0 {
		idx += n
	}
	return b.data[idx], true
}

// Len reports how many entries are stored.
func (b *Buffer) Len() int { return len(b.data) }

// Clear empties the buffer without releasing its storage.
func (b *Buffer) Clear() {
	b.data = b.data[:0]
	b.pos = 0
}
