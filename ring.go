// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segq

import (
	"math/bits"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Slot state word layout.
//
//	bits [31:30] data state
//	bits [29:0]  generation (lap of the cursor that last owned the slot)
const (
	stateDead    = 0 // empty, can be pushed
	statePushing = 1 // claimed by a producer, value being written
	stateLive    = 2 // holds a value, can be popped
	statePopping = 3 // claimed by a consumer, value being read

	dataShift = 30
	genBits   = 30
	genMask   = 1<<genBits - 1
	genHalf   = 1 << (genBits - 1)

	// slotStride spreads logically adjacent cursors across cache lines.
	// Any odd stride is a bijection over a power-of-2 slot count.
	slotStride = 3

	minRingCap = 4
)

func makeState(gen, data uint64) uint64 {
	return data<<dataShift | gen&genMask
}

func stateData(s uint64) uint64 { return s >> dataShift & 3 }

func stateGen(s uint64) uint64 { return s & genMask }

// genCmp compares generations modulo 2^30.
// Returns 0 if equal, 1 if a is ahead of b, -1 if a is behind b.
func genCmp(a, b uint64) int {
	d := (a - b) & genMask
	switch {
	case d == 0:
		return 0
	case d < genHalf:
		return 1
	default:
		return -1
	}
}

// Ring is a fixed-capacity multi-producer multi-consumer queue segment.
//
// Each slot carries a state word with a data state and a generation.
// Producers and consumers walk forward from the tail/head cursors and
// claim slots with a single CAS on the state word; the cursors are only
// hints. A value becomes visible to consumers through the release store
// that publishes the live state.
//
// Ring is the building block of [Unbounded], but it is also usable on its
// own as a bounded queue.
//
// Memory: n slots for capacity n (8 bytes + sizeof(T) per slot)
type Ring[T any] struct {
	_     pad
	tail  atomix.Uint64 // Producer cursor hint
	_     pad
	head  atomix.Uint64 // Consumer cursor hint
	_     pad
	slots []ringSlot[T]
	mask  uint64
	shift uint // log2(len(slots))
}

type ringSlot[T any] struct {
	state atomix.Uint64
	data  T
}

// NewRing creates a new ring segment.
// Capacity rounds up to the next power of 2, with a minimum of 4.
// Panics if capacity < 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic("segq: capacity must be >= 1")
	}

	n := uint64(roundToPow2(max(capacity, minRingCap)))
	return &Ring[T]{
		slots: make([]ringSlot[T], n),
		mask:  n - 1,
		shift: uint(bits.TrailingZeros64(n)),
	}
}

func (q *Ring[T]) slot(i uint64) *ringSlot[T] {
	return &q.slots[(i*slotStride)&q.mask]
}

func (q *Ring[T]) lap(i uint64) uint64 {
	return (i >> q.shift) & genMask
}

// TryPush copies *elem into the ring.
// Returns false if the ring is full.
func (q *Ring[T]) TryPush(elem *T) bool {
	sw := spin.Wait{}
	for {
		i, ok, full := q.findTail()
		if full {
			return false
		}
		if !ok {
			sw.Once()
			continue
		}

		s := q.slot(i)
		gen := q.lap(i)
		if !s.state.CompareAndSwapAcqRel(makeState(gen, stateDead), makeState(gen, statePushing)) {
			// Another producer took the slot first
			sw.Once()
			continue
		}

		advance(&q.tail, i+1)
		s.data = *elem
		s.state.StoreRelease(makeState(gen, stateLive))
		return true
	}
}

// findTail walks from the tail hint to the first slot that is dead on the
// cursor's own lap. It reports full when the walk meets a slot that still
// holds a value from the previous lap, and !ok when the caller should
// reload the cursor and walk again.
func (q *Ring[T]) findTail() (i uint64, ok, full bool) {
	i = q.tail.LoadRelaxed()
	for steps := 2 * len(q.slots); steps > 0; steps-- {
		st := q.slot(i).state.LoadAcquire()
		switch genCmp(stateGen(st), q.lap(i)) {
		case 0:
			if stateData(st) == stateDead {
				return i, true, false
			}
			// Claimed on this lap by another producer
		case 1:
			// Stale cursor: slot already consumed on this lap
		default:
			if stateData(st) == statePopping {
				// Previous lap is being released right now
				return 0, false, false
			}
			return 0, false, true
		}
		i++
	}
	return 0, false, false
}

// TryPop removes and returns the oldest claimable element.
// Returns (zero-value, false) if no element is available.
func (q *Ring[T]) TryPop() (T, bool) {
	var zero T
	sw := spin.Wait{}
	for {
		i, moveHead, ok := q.findHead()
		if !ok {
			return zero, false
		}

		s := q.slot(i)
		gen := q.lap(i)
		if !s.state.CompareAndSwapAcqRel(makeState(gen, stateLive), makeState(gen, statePopping)) {
			sw.Once()
			continue
		}

		if moveHead {
			advance(&q.head, i+1)
		}
		elem := s.data
		s.data = zero
		s.state.StoreRelease(makeState(gen+1, stateDead))
		return elem, true
	}
}

// findHead walks from the head hint to the first live slot of the cursor's
// lap. Slots still being written are stepped over but pin the head: an
// element claimed past one of them must not move the head, otherwise the
// pending slot would be left behind the consumer cursor.
func (q *Ring[T]) findHead() (i uint64, moveHead, ok bool) {
	i = q.head.LoadRelaxed()
	blocked := false
	for steps := 2 * len(q.slots); steps > 0; steps-- {
		st := q.slot(i).state.LoadAcquire()
		switch genCmp(stateGen(st), q.lap(i)) {
		case 0:
			switch stateData(st) {
			case stateLive:
				return i, !blocked, true
			case stateDead:
				if !blocked {
					advance(&q.head, i)
				}
				return 0, false, false
			case statePushing:
				blocked = true
			}
			// statePopping: taken by another consumer
		case 1:
			// Already consumed on this lap
		default:
			// Previous lap not released yet: nothing pushed here
			return 0, false, false
		}
		i++
	}
	return 0, false, false
}

// TryDelete removes the oldest claimable element and discards it.
// Returns false if no element is available.
func (q *Ring[T]) TryDelete() bool {
	_, ok := q.TryPop()
	return ok
}

// ConfirmEmpty reports whether every slot is dead.
//
// The scan is not atomic as a whole; a concurrent push may land behind it.
// Callers must only rely on it once producers are excluded.
func (q *Ring[T]) ConfirmEmpty() bool {
	for i := range q.slots {
		if stateData(q.slots[i].state.LoadAcquire()) != stateDead {
			return false
		}
	}
	return true
}

// Len returns an approximate element count.
func (q *Ring[T]) Len() int {
	tail := q.tail.LoadRelaxed()
	head := q.head.LoadRelaxed()
	if tail <= head {
		return 0
	}
	return int(min(tail-head, uint64(len(q.slots))))
}

// Cap returns the ring capacity.
func (q *Ring[T]) Cap() int {
	return len(q.slots)
}

// Enqueue adds an element to the ring.
// Returns ErrWouldBlock if the ring is full.
func (q *Ring[T]) Enqueue(elem *T) error {
	if !q.TryPush(elem) {
		return ErrWouldBlock
	}
	return nil
}

// Dequeue removes and returns an element from the ring.
// Returns (zero-value, ErrWouldBlock) if the ring is empty.
func (q *Ring[T]) Dequeue() (T, error) {
	elem, ok := q.TryPop()
	if !ok {
		return elem, ErrWouldBlock
	}
	return elem, nil
}

// advance moves a cursor hint forward to next; it never moves it back.
func advance(c *atomix.Uint64, next uint64) {
	for cur := c.LoadRelaxed(); cur < next; cur = c.LoadRelaxed() {
		if c.CompareAndSwapRelaxed(cur, next) {
			return
		}
	}
}
