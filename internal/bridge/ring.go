package bridge

import (
	"math/bits"
	"sync/atomic"
)

// A lock-free single-producer, single-consumer byte ring.
//
// Exactly one goroutine may call the producer methods (Write, WriteAvailable)
// and exactly one goroutine may call the consumer methods (Read, Peek,
// ReadAvailable, Reset). Writes and reads are all-or-nothing.
type Ring struct {
	buf  []byte
	mask uint64

	// Monotonic byte counters. The producer owns write, the consumer owns read.
	write atomic.Uint64
	read  atomic.Uint64
}

// Make a ring holding at least capacity bytes, rounded up to a power of two.
func NewRing(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}
	size := 1 << bits.Len(uint(capacity-1))
	return &Ring{
		buf:  make([]byte, size),
		mask: uint64(size - 1),
	}
}

func (r *Ring) Cap() int {
	return len(r.buf)
}

func (r *Ring) ReadAvailable() int {
	return int(r.write.Load() - r.read.Load())
}

func (r *Ring) WriteAvailable() int {
	return len(r.buf) - r.ReadAvailable()
}

// Append all of p, or nothing if there is not enough room.
func (r *Ring) Write(p []byte) bool {
	w := r.write.Load()
	used := w - r.read.Load()
	if uint64(len(r.buf))-used < uint64(len(p)) {
		return false
	}

	start := w & r.mask
	n := copy(r.buf[start:], p)
	copy(r.buf, p[n:])

	// Publish only after the bytes are in place.
	r.write.Store(w + uint64(len(p)))
	return true
}

// Copy len(p) bytes into p without consuming them.
func (r *Ring) Peek(p []byte) bool {
	rd := r.read.Load()
	if r.write.Load()-rd < uint64(len(p)) {
		return false
	}

	start := rd & r.mask
	n := copy(p, r.buf[start:])
	copy(p[n:], r.buf)
	return true
}

// Consume len(p) bytes into p, or nothing if fewer are available.
func (r *Ring) Read(p []byte) bool {
	if !r.Peek(p) {
		return false
	}
	r.read.Add(uint64(len(p)))
	return true
}

// Discard everything currently readable.
func (r *Ring) Reset() {
	r.read.Store(r.write.Load())
}
