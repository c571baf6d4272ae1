// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segq

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

const (
	// MaxSegments is the number of segment tiers an Unbounded queue can chain.
	MaxSegments = 6

	// BaseSegmentCap is the capacity of the first segment tier.
	// Each following tier is four times larger.
	BaseSegmentCap = 2048
)

// TierCap returns the capacity of segment tier i.
func TierCap(i int) int {
	return BaseSegmentCap << (2 * i)
}

// Unbounded is a growable multi-producer multi-consumer queue.
//
// It chains up to [MaxSegments] [Ring] segments of increasing capacity
// (2048, 8192, 32768, ...). Producers push into the newest segment and
// allocate the next tier when it is full; consumers pop from the oldest
// live segment forward. Each segment has a writer gate and a reader gate
// counting in-flight operations. When a segment has been closed to
// writers and drained, the consumer that leaves it last retires it
// exactly once and releases its memory.
//
// Segments are never reused after retirement. Once the last tier exists,
// the queue behaves like a bounded queue of that tier's capacity: Push
// spins until a consumer makes room, Enqueue returns [ErrWouldBlock].
//
// Within a segment, elements are claimed in cursor order; across segments,
// an older segment is always scanned before a newer one, so ordering is
// only approximately FIFO while the queue grows.
type Unbounded[T any] struct {
	_         pad
	pushIndex atomix.Uint64 // Newest segment
	_         pad
	popIndex  atomix.Uint64 // Oldest segment not yet retired
	_         pad
	createMu  spinLock
	_         pad
	created   atomix.Uint64
	retired   atomix.Uint64
	capacity  atomix.Uint64 // Sum of every tier allocated so far
	limit     uint64 // usable segment tiers
	segs      [MaxSegments]segment[T]
}

type segment[T any] struct {
	buf     atomic.Pointer[Ring[T]]
	writers writerGate
	_       padShort
	readers readerGate
	_       padShort
}

// NewUnbounded creates a growable queue with all segment tiers available.
//
// The first segment is the smallest tier whose capacity is at least
// capacity; capacity <= 0 starts at the base tier. Capacities beyond the
// last tier start at the last tier.
func NewUnbounded[T any](capacity int) *Unbounded[T] {
	return newUnbounded[T](capacity, MaxSegments)
}

func newUnbounded[T any](capacity, limit int) *Unbounded[T] {
	if limit < 1 || limit > MaxSegments {
		panic("segq: segment limit must be in [1, MaxSegments]")
	}

	q := &Unbounded[T]{limit: uint64(limit)}
	start := 0
	for start+1 < limit && capacity > TierCap(start) {
		start++
	}

	for i := range q.segs {
		q.segs[i].readers.v.StoreRelaxed(gateOpen)
	}
	// Tiers skipped by a pre-sized queue look retired from the start
	for i := range start {
		q.segs[i].writers.v.StoreRelaxed(gateClosed)
		q.segs[i].readers.v.StoreRelaxed(gateRetired)
	}

	q.segs[start].buf.Store(NewRing[T](TierCap(start)))
	q.created.StoreRelaxed(1)
	q.capacity.StoreRelaxed(uint64(TierCap(start)))
	q.pushIndex.StoreRelaxed(uint64(start))
	q.popIndex.StoreRelease(uint64(start))
	return q
}

// Push adds an element to the queue, growing it when needed.
//
// Push never fails. When the last segment tier is full it spins until a
// consumer makes room; use Enqueue to get ErrWouldBlock instead.
func (q *Unbounded[T]) Push(elem *T) {
	sw := spin.Wait{}
	for !q.push(elem) {
		sw.Once()
	}
}

// Enqueue adds an element to the queue, growing it when needed.
// Returns ErrWouldBlock only if the last segment tier is full.
func (q *Unbounded[T]) Enqueue(elem *T) error {
	if !q.push(elem) {
		return ErrWouldBlock
	}
	return nil
}

// push returns false only when the last allowed tier is full.
func (q *Unbounded[T]) push(elem *T) bool {
	sw := spin.Wait{}
	for {
		idx := q.pushIndex.LoadAcquire()
		seg := &q.segs[idx]
		buf := seg.buf.Load()
		if buf == nil {
			sw.Once()
			continue
		}

		if seg.writers.enter() {
			ok := buf.TryPush(elem)
			seg.writers.leave()
			if ok {
				return true
			}
		}

		if idx+1 >= q.limit {
			return false
		}
		q.createBuffer(idx + 1)
	}
}

// createBuffer allocates segment idx and closes idx-1 to writers.
// Concurrent calls for the same index allocate once.
func (q *Unbounded[T]) createBuffer(idx uint64) {
	if idx >= q.limit {
		return
	}

	q.createMu.lock()
	if q.pushIndex.LoadRelaxed() >= idx {
		q.createMu.unlock()
		return
	}
	q.segs[idx].buf.Store(NewRing[T](TierCap(int(idx))))
	q.pushIndex.StoreRelease(idx)
	q.createMu.unlock()

	q.created.AddAcqRel(1)
	q.capacity.AddAcqRel(uint64(TierCap(int(idx))))
	q.segs[idx-1].writers.close()
}

// TryPop removes and returns the oldest reachable element.
// Returns (zero-value, false) if the queue is empty.
func (q *Unbounded[T]) TryPop() (T, bool) {
	for idx := q.popIndex.LoadAcquire(); idx < q.limit; idx++ {
		seg := &q.segs[idx]
		buf := seg.buf.Load()
		if buf == nil {
			if seg.readers.retired() {
				continue
			}
			break // not allocated yet, nothing beyond
		}
		if !seg.readers.enter() {
			continue
		}

		elem, ok := buf.TryPop()
		q.leavePop(idx, buf)
		if ok {
			return elem, true
		}
	}

	var zero T
	return zero, false
}

// leavePop checks a consumer out of segment idx and retires the segment
// if it was the last consumer of a drained, writer-closed segment.
func (q *Unbounded[T]) leavePop(idx uint64, buf *Ring[T]) {
	seg := &q.segs[idx]
	if seg.readers.leave()&gateCount != 0 {
		return
	}
	if !seg.writers.idle() || buf.Len() != 0 || !buf.ConfirmEmpty() {
		return
	}
	if !seg.readers.retire() {
		// A consumer re-entered, or another one retired it
		return
	}

	if old := seg.buf.Swap(nil); old != nil {
		for old.TryDelete() {
		}
	}
	q.retired.AddAcqRel(1)
	q.advancePopIndex()
}

// advancePopIndex moves popIndex past every consecutive retired segment.
func (q *Unbounded[T]) advancePopIndex() {
	for {
		idx := q.popIndex.LoadAcquire()
		if idx >= q.limit || !q.segs[idx].readers.retired() {
			return
		}
		q.popIndex.CompareAndSwapAcqRel(idx, idx+1)
	}
}

// Dequeue removes and returns the oldest reachable element.
// Returns (zero-value, ErrWouldBlock) if the queue is empty.
func (q *Unbounded[T]) Dequeue() (T, error) {
	elem, ok := q.TryPop()
	if !ok {
		return elem, ErrWouldBlock
	}
	return elem, nil
}

// CapacityApprox returns the total capacity of every segment allocated
// so far. It only grows: retiring a drained segment does not shrink it.
func (q *Unbounded[T]) CapacityApprox() int {
	return int(q.capacity.LoadAcquire())
}

// SizeApprox returns an approximate element count.
func (q *Unbounded[T]) SizeApprox() int {
	n := 0
	for i := range q.segs {
		if buf := q.segs[i].buf.Load(); buf != nil {
			n += buf.Len()
		}
	}
	return n
}

// EmptyApprox reports whether the queue appears empty.
func (q *Unbounded[T]) EmptyApprox() bool {
	return q.SizeApprox() == 0
}

// MaxSize returns the capacity of the last segment tier: the most
// elements the queue can hold once earlier tiers have been retired.
func (q *Unbounded[T]) MaxSize() int {
	return TierCap(int(q.limit) - 1)
}

// Cap returns CapacityApprox.
func (q *Unbounded[T]) Cap() int {
	return q.CapacityApprox()
}

// Stats is a point-in-time diagnostic snapshot of an Unbounded queue.
// Fields are read without synchronization and may be mutually
// inconsistent under concurrent use.
type Stats struct {
	Capacity  int    // CapacityApprox
	Size      int    // Approximate element count
	Segments  int    // Live segments
	PushIndex int    // Newest segment tier
	PopIndex  int    // Oldest segment tier not yet retired
	Created   uint64 // Segments allocated so far
	Retired   uint64 // Segments retired so far
}

// Stats returns a diagnostic snapshot.
func (q *Unbounded[T]) Stats() Stats {
	s := Stats{
		PushIndex: int(q.pushIndex.LoadRelaxed()),
		PopIndex:  int(q.popIndex.LoadRelaxed()),
		Created:   q.created.LoadRelaxed(),
		Retired:   q.retired.LoadRelaxed(),
		Capacity:  int(q.capacity.LoadRelaxed()),
	}
	for i := range q.segs {
		if buf := q.segs[i].buf.Load(); buf != nil {
			s.Segments++
			s.Size += buf.Len()
		}
	}
	return s
}
