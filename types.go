// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segq

// Queue is the combined producer-consumer interface shared by [Ring] and
// [Unbounded].
//
// Both operations are non-blocking and return ErrWouldBlock when they
// cannot proceed. For Unbounded, Enqueue only blocks at the last segment
// tier; Cap reports the capacity of every segment allocated so far.
type Queue[T any] interface {
	Producer[T]
	Consumer[T]
	Cap() int
}

// Producer is the interface for enqueueing elements.
//
// The element is passed by pointer to avoid copying large structs. The
// queue stores a copy of the pointed-to value, so the original can be
// modified after Enqueue returns.
type Producer[T any] interface {
	// Enqueue adds an element to the queue (non-blocking).
	// Returns nil on success, ErrWouldBlock if no room is available.
	Enqueue(elem *T) error
}

// Consumer is the interface for dequeueing elements.
//
// The slot is cleared on dequeue to allow garbage collection of
// referenced objects.
type Consumer[T any] interface {
	// Dequeue removes and returns an element from the queue (non-blocking).
	// Returns (zero-value, ErrWouldBlock) if the queue is empty.
	Dequeue() (T, error)
}

// Pusher is implemented by queues whose producers never fail.
type Pusher[T any] interface {
	Push(elem *T)
	TryPop() (T, bool)
}

var (
	_ Queue[int]  = (*Ring[int])(nil)
	_ Queue[int]  = (*Unbounded[int])(nil)
	_ Pusher[int] = (*Unbounded[int])(nil)
)
