// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package segq provides a growable lock-free multi-producer
// multi-consumer FIFO queue.
//
// Two types are offered:
//
//   - Ring: a fixed-capacity MPMC ring segment
//   - Unbounded: a chain of up to six Ring segments of growing capacity
//
// # Quick Start
//
//	q := segq.NewUnbounded[Event](0)
//
//	// Producers never fail
//	ev := Event{ID: 1}
//	q.Push(&ev)
//
//	// Consumers poll
//	if ev, ok := q.TryPop(); ok {
//	    handle(ev)
//	}
//
// # Ring Segments
//
// A Ring has a power-of-2 number of slots. Every slot carries a state word
// packing a data state (dead, pushing, live, popping) with a 30-bit
// generation, the lap of the cursor that owns the slot. Producers walk
// forward from the tail cursor to the first slot that is dead on their
// lap and claim it with one CAS; consumers do the same from the head
// cursor for live slots. The cursors are hints and may lag. A value is
// published by the release store of the live state, and the slot is
// handed back by the release store of the dead state of the next lap.
//
// Logical cursor i maps to slot (i*3) & (n-1), which spreads neighbouring
// operations across cache lines without per-slot padding.
//
// # Growth and Retirement
//
// Unbounded starts with a 2048-slot segment. When producers find the
// newest segment full, one of them allocates the next tier (4x larger)
// under a short spin lock, publishes it, and closes the previous segment
// to writers. Consumers always scan from the oldest live segment forward,
// so an older segment drains before a newer one.
//
// Each segment has two participation gates: a writer gate counting
// in-flight producers, with a closed bit, and a reader gate counting
// in-flight consumers, with open and retired bits. The consumer that
// leaves a writer-closed, drained segment last retires it: one CAS on the
// reader gate decides the single winner, which unlinks the segment and
// advances the pop index past every retired tier.
//
// # Capacity Ceiling
//
// Six tiers give a last segment of 2048<<10 elements ([Unbounded.MaxSize]).
// Retired tiers are never reallocated. When the last allowed tier is full,
// Push spins until a consumer makes room; it does not fail and does not
// drop data. Enqueue reports [ErrWouldBlock] in the same situation for
// callers that need to apply backpressure. The ceiling can be lowered
// with [Builder.MaxSegments].
//
// # Ordering
//
// Ordering is approximately FIFO. Within one segment, elements are
// claimed in cursor order. Across the chain it is coarse-grained: older
// segments are scanned before newer ones, but a consumer that finds a
// segment momentarily empty moves on. If a producer then publishes into
// the older segment and pushes its next element into the newer one, that
// later element can be popped first. The window only exists while the
// queue is growing.
//
// # Diagnostics
//
// CapacityApprox, SizeApprox, EmptyApprox and Stats read cursors without
// synchronization. They are meant for metrics, not for control flow.
//
// # Race Detection
//
// Slot values are plain memory guarded by the slot state word. Go's race
// detector cannot see that ordering and reports false positives, so the
// concurrent tests over generic values are skipped when [RaceEnabled] is
// set.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for atomic primitives with
// explicit memory ordering, [code.hybscloud.com/spin] for CPU pause in
// retry loops, and [code.hybscloud.com/iox] for semantic errors.
package segq
