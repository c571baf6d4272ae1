// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segq

// Options configures queue creation.
type Options struct {
	// Initial capacity (Ring: rounds up to next power of 2;
	// Unbounded: selects the starting segment tier)
	capacity int

	// Segment tiers an Unbounded queue may chain
	maxSegments int
}

// Builder creates queues with fluent configuration.
//
// Example:
//
//	// Growable queue, all tiers
//	q := segq.Build[Event](segq.New(0))
//
//	// Growable queue starting at the 32768 tier, capped at 4 tiers
//	q := segq.Build[Event](segq.New(20000).MaxSegments(4))
//
//	// Fixed ring segment
//	r := segq.BuildRing[Event](segq.New(1024))
type Builder struct {
	opts Options
}

// New creates a queue builder with the given initial capacity.
// Panics if capacity < 0.
func New(capacity int) *Builder {
	if capacity < 0 {
		panic("segq: capacity must be >= 0")
	}
	return &Builder{opts: Options{capacity: capacity, maxSegments: MaxSegments}}
}

// MaxSegments limits how many segment tiers an Unbounded queue may chain.
//
// The ceiling bounds memory: once the last allowed tier is full, Push
// spins until room is made and Enqueue returns ErrWouldBlock.
// Panics if n is not in [1, MaxSegments].
func (b *Builder) MaxSegments(n int) *Builder {
	if n < 1 || n > MaxSegments {
		panic("segq: segment limit must be in [1, MaxSegments]")
	}
	b.opts.maxSegments = n
	return b
}

// Build creates an Unbounded queue.
func Build[T any](b *Builder) *Unbounded[T] {
	return newUnbounded[T](b.opts.capacity, b.opts.maxSegments)
}

// BuildRing creates a fixed-capacity Ring.
// MaxSegments does not apply. Panics if the capacity is 0.
func BuildRing[T any](b *Builder) *Ring[T] {
	return NewRing[T](b.opts.capacity)
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// padShort is padding to fill cache line after 8-byte field.
type padShort [64 - 8]byte
