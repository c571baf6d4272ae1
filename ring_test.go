// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segq_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/segq"
)

// =============================================================================
// Ring - Basic Operations
// =============================================================================

// TestRingBasic tests fill, full detection and FIFO drain.
func TestRingBasic(t *testing.T) {
	q := segq.NewRing[int](8)

	if q.Cap() != 8 {
		t.Fatalf("Cap: got %d, want 8", q.Cap())
	}

	for i := range 8 {
		v := i + 100
		if !q.TryPush(&v) {
			t.Fatalf("TryPush(%d): ring reported full", i)
		}
	}

	v := 999
	if q.TryPush(&v) {
		t.Fatalf("TryPush on full: got true, want false")
	}
	if err := q.Enqueue(&v); !errors.Is(err, segq.ErrWouldBlock) {
		t.Fatalf("Enqueue on full: got %v, want ErrWouldBlock", err)
	}

	for i := range 8 {
		val, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop(%d): ring reported empty", i)
		}
		if val != i+100 {
			t.Fatalf("TryPop(%d): got %d, want %d", i, val, i+100)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Fatalf("TryPop on empty: got true, want false")
	}
	if _, err := q.Dequeue(); !errors.Is(err, segq.ErrWouldBlock) {
		t.Fatalf("Dequeue on empty: got %v, want ErrWouldBlock", err)
	}
}

// TestRingCapacityRounding tests power-of-2 rounding and the minimum size.
func TestRingCapacityRounding(t *testing.T) {
	tests := []struct {
		capacity int
		want     int
	}{
		{1, 4},
		{3, 4},
		{4, 4},
		{5, 8},
		{1000, 1024},
		{2048, 2048},
	}
	for _, tt := range tests {
		if got := segq.NewRing[int](tt.capacity).Cap(); got != tt.want {
			t.Errorf("NewRing(%d).Cap: got %d, want %d", tt.capacity, got, tt.want)
		}
	}
}

// TestRingInvalidCapacity tests that a zero capacity panics.
func TestRingInvalidCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewRing(0): expected panic")
		}
	}()
	segq.NewRing[int](0)
}

// TestRingWrapAround pushes and pops across many laps with a partially
// filled ring, so the generation in every slot advances many times.
func TestRingWrapAround(t *testing.T) {
	q := segq.NewRing[int](4)

	next, want := 0, 0
	for range 3 {
		v := next
		q.TryPush(&v)
		next++
	}

	for lap := range 5000 {
		v := next
		if !q.TryPush(&v) {
			t.Fatalf("lap %d: TryPush reported full with %d queued", lap, next-want)
		}
		next++

		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("lap %d: TryPop reported empty", lap)
		}
		if got != want {
			t.Fatalf("lap %d: got %d, want %d", lap, got, want)
		}
		want++
	}

	if q.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", q.Len())
	}
}

// TestRingRefillAfterDrain alternates full fills and full drains.
func TestRingRefillAfterDrain(t *testing.T) {
	q := segq.NewRing[string](16)

	for round := range 50 {
		for i := range 16 {
			v := string(rune('a' + i))
			if !q.TryPush(&v) {
				t.Fatalf("round %d: TryPush(%d) reported full", round, i)
			}
		}
		if q.Len() != 16 {
			t.Fatalf("round %d: Len: got %d, want 16", round, q.Len())
		}
		for i := range 16 {
			v, ok := q.TryPop()
			if !ok || v != string(rune('a'+i)) {
				t.Fatalf("round %d: TryPop(%d): got %q, %v", round, i, v, ok)
			}
		}
		if !q.ConfirmEmpty() {
			t.Fatalf("round %d: ConfirmEmpty: got false after drain", round)
		}
	}
}

// TestRingTryDelete tests discarding elements and the empty confirmation.
func TestRingTryDelete(t *testing.T) {
	q := segq.NewRing[*int](8)

	if !q.ConfirmEmpty() {
		t.Fatal("ConfirmEmpty on new ring: got false")
	}

	for i := range 5 {
		v := i
		p := &v
		q.TryPush(&p)
	}
	if q.ConfirmEmpty() {
		t.Fatal("ConfirmEmpty with elements: got true")
	}

	deleted := 0
	for q.TryDelete() {
		deleted++
	}
	if deleted != 5 {
		t.Fatalf("TryDelete: deleted %d, want 5", deleted)
	}
	if !q.ConfirmEmpty() {
		t.Fatal("ConfirmEmpty after delete: got false")
	}
	if q.Len() != 0 {
		t.Fatalf("Len after delete: got %d, want 0", q.Len())
	}
}

// TestRingLen tests the approximate length on a quiescent ring.
func TestRingLen(t *testing.T) {
	q := segq.NewRing[int](32)

	for i := range 20 {
		v := i
		q.TryPush(&v)
		if q.Len() != i+1 {
			t.Fatalf("Len after %d pushes: got %d", i+1, q.Len())
		}
	}
	for i := range 20 {
		q.TryPop()
		if q.Len() != 19-i {
			t.Fatalf("Len after %d pops: got %d, want %d", i+1, q.Len(), 19-i)
		}
	}
}

// TestRingBuilder tests BuildRing.
func TestRingBuilder(t *testing.T) {
	q := segq.BuildRing[int](segq.New(100))
	if q.Cap() != 128 {
		t.Fatalf("Cap: got %d, want 128", q.Cap())
	}

	var _ segq.Queue[int] = q
}

// =============================================================================
// Ring - Concurrency
// =============================================================================

// TestRingConcurrent verifies no loss and no duplication on a small ring
// under heavy wraparound.
func TestRingConcurrent(t *testing.T) {
	if segq.RaceEnabled {
		t.Skip("skip: generic slot values are ordered by the state word")
	}

	const (
		numProducers = 4
		numConsumers = 4
		itemsPerProd = 20000
		timeout      = 20 * time.Second
	)

	q := segq.NewRing[int](64)
	total := numProducers * itemsPerProd
	seen := make([]atomix.Int32, total)

	var wg sync.WaitGroup
	var consumed atomix.Int64
	var timedOut atomix.Bool
	deadline := time.Now().Add(timeout)

	for p := range numProducers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			backoff := iox.Backoff{}
			for i := range itemsPerProd {
				v := id*itemsPerProd + i
				for !q.TryPush(&v) {
					if time.Now().After(deadline) {
						timedOut.Store(true)
						return
					}
					backoff.Wait()
				}
				backoff.Reset()
			}
		}(p)
	}

	for range numConsumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			backoff := iox.Backoff{}
			for consumed.Load() < int64(total) {
				v, ok := q.TryPop()
				if !ok {
					if time.Now().After(deadline) {
						timedOut.Store(true)
						return
					}
					backoff.Wait()
					continue
				}
				seen[v].Add(1)
				consumed.Add(1)
				backoff.Reset()
			}
		}()
	}

	wg.Wait()

	if timedOut.Load() {
		t.Fatalf("timeout: consumed=%d/%d", consumed.Load(), total)
	}
	for i := range total {
		if c := seen[i].Load(); c != 1 {
			t.Fatalf("value %d seen %d times, want 1", i, c)
		}
	}
	if !q.ConfirmEmpty() {
		t.Fatal("ConfirmEmpty after drain: got false")
	}
}
